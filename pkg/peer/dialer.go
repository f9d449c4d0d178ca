package peer

import (
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cuemby/dcc/pkg/rpc"
)

// dialer caches one gRPC connection per peer URI. Both the assignment loop
// (talking to whoever is leader) and the liveness probe (talking to
// whoever currently claims a bucket) address peers by URI repeatedly, so a
// fresh dial per call would be wasteful and would defeat grpc's own
// connection backoff/keepalive handling.
type dialer struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

func newDialer() *dialer {
	return &dialer{conns: make(map[string]*grpc.ClientConn)}
}

// client returns a CoordinatorClient for uri, dialing lazily and reusing
// the connection on subsequent calls.
func (d *dialer) client(uri string) (rpc.CoordinatorClient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, ok := d.conns[uri]
	if !ok {
		var err error
		conn, err = grpc.NewClient(uri,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")),
		)
		if err != nil {
			return nil, err
		}
		d.conns[uri] = conn
	}
	return rpc.NewCoordinatorClient(conn), nil
}

// forget drops a cached connection, e.g. after it returns a transport
// error, so the next call re-dials instead of reusing a likely-broken conn.
func (d *dialer) forget(uri string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if conn, ok := d.conns[uri]; ok {
		_ = conn.Close()
		delete(d.conns, uri)
	}
}

// close tears down every cached connection.
func (d *dialer) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for uri, conn := range d.conns {
		_ = conn.Close()
		delete(d.conns, uri)
	}
}
