package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"

	"github.com/cuemby/dcc/pkg/config"
	"github.com/cuemby/dcc/pkg/coordination"
	"github.com/cuemby/dcc/pkg/election"
	"github.com/cuemby/dcc/pkg/envelope"
	"github.com/cuemby/dcc/pkg/events"
	"github.com/cuemby/dcc/pkg/executor"
	"github.com/cuemby/dcc/pkg/log"
	"github.com/cuemby/dcc/pkg/metrics"
	"github.com/cuemby/dcc/pkg/notify"
	"github.com/cuemby/dcc/pkg/queue"
	"github.com/cuemby/dcc/pkg/rpc"
	"github.com/cuemby/dcc/pkg/runtime"
	"github.com/cuemby/dcc/pkg/scanner"
	"github.com/cuemby/dcc/pkg/storage"
)

const (
	// scanTickInterval is how often the leader's scanner re-evaluates every
	// project, independent of the (faster) election tick.
	scanTickInterval = 5 * time.Second
	// discoveryRegisterInterval is how often a peer re-publishes its own
	// discovery tag. Tags do not expire, so the entry of a peer that stops
	// without clearing it stays behind.
	discoveryRegisterInterval = 30 * time.Second
	// assignmentBackOff is the sleep between assignment polls when no
	// leader is currently known, or when a dial/RPC attempt itself fails.
	assignmentBackOff = 3 * time.Second
)

// Config is everything a peer needs to join a group and start working.
type Config struct {
	Group    string // coordination group name, e.g. "ci-fleet"
	SelfURI  string // this peer's own dial address, e.g. "10.0.1.4:7420"
	Hostname string
	DataDir  string

	ConfigPath           string
	ConfigReloadInterval time.Duration // default 30s

	Tyrant bool

	ContainerdSocket string
	LogPollInterval  time.Duration // default 10s

	HTTPAddr string // serves /healthz, /readyz, /livez, /metrics

	OperatorEmail string
	GUIBaseURL    string // guiURL = GUIBaseURL + "/" + project + "/" + bucketID

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	ChatWebhookURL string
	ChatRoom       string
	ChatToken      string
}

func (c Config) withDefaults() Config {
	if c.ConfigReloadInterval == 0 {
		c.ConfigReloadInterval = 30 * time.Second
	}
	if c.LogPollInterval == 0 {
		c.LogPollInterval = 10 * time.Second
	}
	return c
}

// Peer is one running group member: it always runs the election loop, the
// assignment loop and the discovery heartbeat; it only runs the scanner's
// tick loop while it holds the lease.
type Peer struct {
	cfg Config

	store   *storage.BoltStore
	coord   *coordination.Coordinator
	runtime *runtime.ContainerdRuntime

	broker   *events.Broker
	tracker  *rpc.Tracker
	queue    *queue.Queue
	scanner  *scanner.Scanner
	elector  *election.Elector
	exec     *executor.Executor
	env      *envelope.Envelope
	notifier *notify.Notifier
	metricsC *metrics.Collector
	dial     *dialer

	grpcServer *grpc.Server
	httpServer *http.Server

	mu          sync.Mutex
	scanCancel  context.CancelFunc
	scanStopped chan struct{}
	wg          sync.WaitGroup
}

// New builds a Peer and everything it owns, but does not start any
// goroutines or listeners - call Start for that.
func New(cfg Config) (*Peer, error) {
	cfg = cfg.withDefaults()

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	coord, err := coordination.Open(cfg.DataDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open coordination database: %w", err)
	}

	rt, err := runtime.NewContainerdRuntime(cfg.ContainerdSocket)
	if err != nil {
		store.Close()
		coord.Close()
		metrics.RegisterComponent("executor", false, err.Error())
		return nil, fmt.Errorf("failed to initialize containerd runtime: %w", err)
	}

	metrics.RegisterComponent("store", true, "")
	metrics.RegisterComponent("coordination", true, "")
	metrics.RegisterComponent("executor", true, "")

	broker := events.NewBroker()
	tracker := rpc.NewTracker()
	q := queue.New()

	var mailer *notify.MailAdapter
	if cfg.SMTPHost != "" {
		mailer = notify.NewMailAdapter(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
	}
	var chat *notify.ChatAdapter
	if cfg.ChatWebhookURL != "" {
		chat = notify.NewChatAdapter(cfg.ChatWebhookURL, cfg.ChatRoom, cfg.ChatToken)
	}

	guiURL := func(project, bucketID string) string {
		if cfg.GUIBaseURL == "" {
			return ""
		}
		return cfg.GUIBaseURL + "/" + project + "/" + bucketID
	}
	notifier := notify.NewNotifier(broker, mailer, chat, cfg.OperatorEmail, guiURL)

	taskRunner := executor.NewTaskRunner(rt, store, cfg.LogPollInterval)
	exec := executor.New(store, taskRunner, tracker, cfg.SelfURI, cfg.Hostname, executor.WithEvents(broker))

	p := &Peer{
		cfg:         cfg,
		store:       store,
		coord:       coord,
		runtime:     rt,
		broker:      broker,
		tracker:     tracker,
		queue:       q,
		exec:        exec,
		notifier:    notifier,
		dial:        newDialer(),
		scanStopped: make(chan struct{}),
	}

	p.env = envelope.New(store, store, mailer, func() string { return cfg.SelfURI }, p.leaderURI)
	p.scanner = scanner.New(store, q, cfg.SelfURI, p.probeWorker)

	electorOpts := []election.Option{
		election.WithOnBecomeLeader(p.onBecomeLeader),
		election.WithOnResign(p.onResign),
	}
	if cfg.Tyrant {
		p.elector = election.NewTyrant(coord, cfg.Group, cfg.SelfURI, electorOpts...)
	} else {
		p.elector = election.New(coord, cfg.Group, cfg.SelfURI, electorOpts...)
	}

	rpcServer := rpc.NewServer(p.elector, p.scanner, store, tracker, cfg.SelfURI)
	p.grpcServer = grpc.NewServer()
	rpc.RegisterCoordinatorServer(p.grpcServer, rpcServer)

	p.metricsC = metrics.NewCollector(store, p.elector.IsLeader, p.queue.Depths)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", p.serveHealthz)
	mux.Handle("/readyz", metrics.ReadyHandler())
	mux.Handle("/livez", metrics.LivenessHandler())
	mux.Handle("/metrics", metrics.Handler())
	p.httpServer = &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	return p, nil
}

// Start loads the project config, opens the gRPC and HTTP listeners, and
// launches every background loop. It returns once the listeners are up;
// the loops keep running until Stop is called.
func (p *Peer) Start(ctx context.Context) error {
	if err := p.reloadConfig(); err != nil {
		log.Logger.Error().Err(err).Msg("initial project config load failed")
	}

	lis, err := net.Listen("tcp", p.cfg.SelfURI)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", p.cfg.SelfURI, err)
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.grpcServer.Serve(lis); err != nil {
			log.Logger.Error().Err(err).Msg("grpc server stopped")
		}
	}()

	if p.cfg.HTTPAddr != "" {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := p.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Logger.Error().Err(err).Msg("health/metrics server stopped")
			}
		}()
	}

	p.notifier.Start()
	p.metricsC.Start()

	p.wg.Add(3)
	go func() { defer p.wg.Done(); p.elector.Run(ctx) }()
	go func() { defer p.wg.Done(); p.assignmentLoop(ctx) }()
	go func() { defer p.wg.Done(); p.discoveryLoop(ctx) }()

	if p.cfg.ConfigReloadInterval > 0 {
		p.wg.Add(1)
		go func() { defer p.wg.Done(); p.configReloadLoop(ctx) }()
	}

	return nil
}

// Stop shuts everything down: the scanner tick loop if running, the
// election/assignment/discovery loops, both listeners, the notifier and
// metrics collector, the discovery tag, and finally the store/coordination
// database handles.
func (p *Peer) Stop(ctx context.Context) {
	_ = p.coord.ClearDiscovery(p.cfg.Group, discoveryTag(p.cfg.Group, p.cfg.SelfURI))
	_ = p.coord.Release(p.cfg.Group, p.cfg.SelfURI)

	p.stopScanLoop()

	p.grpcServer.GracefulStop()
	if p.httpServer != nil {
		_ = p.httpServer.Shutdown(ctx)
	}

	p.notifier.Stop()
	p.metricsC.Stop()
	p.dial.close()

	p.wg.Wait()

	p.runtime.Close()
	p.coord.Close()
	p.store.Close()
}

func (p *Peer) reloadConfig() error {
	set, err := config.LoadProjectSet(p.cfg.ConfigPath)
	if err != nil {
		return err
	}
	return syncConfig(p.store, set)
}

func (p *Peer) configReloadLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.ConfigReloadInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.reloadConfig(); err != nil {
				log.Logger.Warn().Err(err).Msg("project config reload failed")
			}
		}
	}
}

// onBecomeLeader starts the scanner's tick loop. Called by the elector
// exactly once on a follower -> leader transition.
func (p *Peer) onBecomeLeader() {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	p.scanCancel = cancel
	stopped := make(chan struct{})
	p.scanStopped = stopped

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(scanTickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				timer := metrics.NewTimer()
				p.scanner.Tick(ctx)
				timer.ObserveDuration(metrics.ScanDuration)
				metrics.ScanCyclesTotal.Inc()
			}
		}
	}()

	log.Logger.Info().Str("group", p.cfg.Group).Msg("became leader, scanner tick loop started")
}

// onResign stops the scanner tick loop and discards the in-memory queue.
// Called exactly once on a leader -> follower transition.
func (p *Peer) onResign() {
	p.stopScanLoop()
	p.queue.Clear()
	log.Logger.Info().Str("group", p.cfg.Group).Msg("resigned leadership, scanner tick loop stopped")
}

func (p *Peer) stopScanLoop() {
	p.mu.Lock()
	cancel := p.scanCancel
	stopped := p.scanStopped
	p.scanCancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

func (p *Peer) leaderURI() string {
	return p.elector.LeaderURI()
}

// probeWorker implements scanner.LivenessProbe: ask workerURI whether it
// still owns bucketID via the Liveness Probe RPC.
func (p *Peer) probeWorker(ctx context.Context, workerURI, bucketID string) (bool, error) {
	if workerURI == "" {
		return false, fmt.Errorf("no worker URI recorded for bucket %s", bucketID)
	}
	client, err := p.dial.client(workerURI)
	if err != nil {
		return false, err
	}
	resp, err := client.Processing(ctx, &rpc.ProcessingRequest{BucketID: bucketID})
	if err != nil {
		p.dial.forget(workerURI)
		return false, err
	}
	return resp.Processing, nil
}

// assignmentLoop repeatedly asks whoever is currently leader for the next
// bucket, and runs it through the failure envelope when one is handed out.
// It runs for the whole peer lifetime - the leader itself also plays the
// worker role and asks its own gRPC server for work, exactly like any
// other group member.
func (p *Peer) assignmentLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		leaderURI := p.elector.LeaderURI()
		if leaderURI == "" {
			sleepOrDone(ctx, assignmentBackOff)
			continue
		}

		client, err := p.dial.client(leaderURI)
		if err != nil {
			log.Logger.Warn().Err(err).Str("leader_uri", leaderURI).Msg("failed to dial leader")
			sleepOrDone(ctx, assignmentBackOff)
			continue
		}

		timer := metrics.NewTimer()
		resp, err := client.NextBucket(ctx, &rpc.NextBucketRequest{RequestorURI: p.cfg.SelfURI, Hostname: p.cfg.Hostname})
		timer.ObserveDuration(metrics.AssignmentLatency)
		if err != nil {
			p.dial.forget(leaderURI)
			sleepOrDone(ctx, assignmentBackOff)
			continue
		}

		if resp.BucketID == "" {
			sleepOrDone(ctx, resp.BackOff())
			continue
		}

		metrics.BucketsAssignedTotal.Inc()
		bucketID := resp.BucketID
		if err := p.env.RunForBucket(bucketID, func() error {
			return p.exec.RunBucket(ctx, bucketID)
		}); err != nil {
			log.WithBucketID(bucketID).Error().Err(err).Msg("bucket run failed")
		}
	}
}

func (p *Peer) discoveryLoop(ctx context.Context) {
	tag := discoveryTag(p.cfg.Group, p.cfg.SelfURI)
	register := func() {
		if err := p.coord.RegisterDiscovery(p.cfg.Group, tag); err != nil {
			log.Logger.Warn().Err(err).Msg("failed to register discovery tag")
		}
	}
	register()

	ticker := time.NewTicker(discoveryRegisterInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			register()
		}
	}
}

func discoveryTag(group, uri string) string {
	return fmt.Sprintf("dcc:%s:%s", group, uri)
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

type healthResponse struct {
	Role          string    `json:"role"`
	LeaderURI     string    `json:"leader_uri"`
	CurrentBucket string    `json:"current_bucket_id,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}

func (p *Peer) serveHealthz(w http.ResponseWriter, r *http.Request) {
	role := "follower"
	if p.elector.IsLeader() {
		role = "leader"
	}
	resp := healthResponse{
		Role:          role,
		LeaderURI:     p.elector.LeaderURI(),
		CurrentBucket: p.tracker.Current(),
		CheckedAt:     time.Now(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
