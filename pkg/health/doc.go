/*
Package health provides a small Checker abstraction (HTTP, TCP) used for
operator-facing diagnostics rather than container liveness: "dcc peer
status" uses TCPChecker to probe a peer's listen address before trusting its
/healthz response, and "dcc project validate" uses HTTPChecker to confirm a
project's source URL is reachable before the scanner ever queues a bucket
against it.

The scheduler's own Liveness Probe — "is this worker still processing its
claimed bucket" — is answered by the Coordinator.Processing RPC in pkg/rpc,
not by this package; these checkers exist for the operator tooling layer
above it.

	status := health.NewTCPChecker(peerAddr).Check(ctx)
	if !status.Healthy {
		fmt.Println("peer unreachable:", status.Message)
	}
*/
package health
