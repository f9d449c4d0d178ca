// Package election runs the periodic leader nomination loop on top of
// pkg/coordination. Each peer is either a follower caching the last-known
// leader, or the leader itself; a tyrant peer runs a second, unconditional
// strategy instead of the normal CAS-based one.
//
// The two behaviours are expressed as two Strategy implementations chosen
// once at construction, never swapped at runtime: a peer started with
// --tyrant gets a tyrantStrategy and keeps it for its whole process
// lifetime.
package election

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/dcc/pkg/coordination"
	"github.com/cuemby/dcc/pkg/log"
)

const (
	// NormalTTL is the lease duration a non-tyrant peer requests on each
	// successful acquire or renew.
	NormalTTL = 10 * time.Second
	// NormalTick is how often a non-tyrant peer attempts acquire/renew.
	NormalTick = 3 * time.Second
	// TyrantTTL is "effectively infinite": long enough that a tyrant peer's
	// own renewal loop, not expiry, is what keeps the lease current.
	TyrantTTL = 24 * time.Hour
	// TyrantRenewInterval is how often the tyrant renewer re-asserts Seize.
	TyrantRenewInterval = 60 * time.Second
)

// Role is a peer's current, transient standing within its group.
type Role int

const (
	RoleFollower Role = iota
	RoleLeader
)

func (r Role) String() string {
	if r == RoleLeader {
		return "leader"
	}
	return "follower"
}

// Strategy is the one seam the REDESIGN FLAGS called out: normal election
// negotiates via Acquire/Renew, tyrant mode always wins via Seize. Elector
// picks one implementation at construction and never switches.
type Strategy interface {
	// tick runs one election attempt given whether self already held the
	// lease going into this tick, and reports whether it holds it after.
	tick(ctx context.Context, coord *coordination.Coordinator, group, self string, heldBefore bool) (bool, error)
}

type normalStrategy struct{}

func (s *normalStrategy) tick(ctx context.Context, coord *coordination.Coordinator, group, self string, heldBefore bool) (bool, error) {
	if heldBefore {
		ok, err := coord.Renew(group, self, NormalTTL)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		// Renew failed - someone else holds it, or a tyrant seized it.
		// Fall through to try a fresh acquire in case the lease expired
		// in the gap between our last successful renew and this tick.
	}
	ok, err := coord.Acquire(group, self, NormalTTL)
	if err != nil {
		return false, err
	}
	return ok, nil
}

type tyrantStrategy struct{}

func (s *tyrantStrategy) tick(ctx context.Context, coord *coordination.Coordinator, group, self string, heldBefore bool) (bool, error) {
	if err := coord.Seize(group, self, TyrantTTL); err != nil {
		return false, err
	}
	return true, nil
}

// Elector runs the periodic nomination loop for one peer in one group.
type Elector struct {
	coord    *coordination.Coordinator
	group    string
	self     string
	strategy Strategy
	tick     time.Duration

	mu         sync.RWMutex
	role       Role
	leaderURI  string // cached last-known holder, valid only when role == follower
	onBecome   func()
	onResign   func()
}

// Option configures an Elector at construction.
type Option func(*Elector)

// WithOnBecomeLeader registers a callback invoked exactly once when this
// peer transitions follower -> leader. Used to kick off scanner
// initialisation.
func WithOnBecomeLeader(fn func()) Option {
	return func(e *Elector) { e.onBecome = fn }
}

// WithOnResign registers a callback invoked exactly once when this peer
// transitions leader -> follower (renew failure, or a tyrant seized the
// lease out from under it). Used to discard the in-memory BucketQueue.
func WithOnResign(fn func()) Option {
	return func(e *Elector) { e.onResign = fn }
}

// New builds a normal-mode Elector: self competes for group's lease via
// Acquire/Renew and never overrides a live holder.
func New(coord *coordination.Coordinator, group, self string, opts ...Option) *Elector {
	e := &Elector{
		coord:    coord,
		group:    group,
		self:     self,
		strategy: &normalStrategy{},
		tick:     NormalTick,
		role:     RoleFollower,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewTyrant builds a tyrant-mode Elector: self unconditionally seizes
// group's lease on its first tick and re-asserts it every
// TyrantRenewInterval, bypassing the normal nomination back-off. Opt-in
// only - callers must pass --tyrant explicitly, there is no auto-detection
// of a stuck group.
func NewTyrant(coord *coordination.Coordinator, group, self string, opts ...Option) *Elector {
	e := &Elector{
		coord:    coord,
		group:    group,
		self:     self,
		strategy: &tyrantStrategy{},
		tick:     TyrantRenewInterval,
		role:     RoleFollower,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run blocks, attempting election on every tick until ctx is cancelled.
func (e *Elector) Run(ctx context.Context) {
	e.tickOnce(ctx)

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tickOnce(ctx)
		}
	}
}

// tickOnce performs one acquire/renew/seize attempt and updates role state.
// Network/transport errors are treated as "not leader this tick" per the
// failure semantics: no retries within a tick.
func (e *Elector) tickOnce(ctx context.Context) {
	logger := log.WithComponent("election")
	held, err := e.strategy.tick(ctx, e.coord, e.group, e.self, e.IsLeader())
	if err != nil {
		logger.Warn().Err(err).Msg("election tick failed, treating as not-leader")
		e.transition(false)
		return
	}
	e.transition(held)
	if !held {
		e.refreshCachedLeader()
	}
}

func (e *Elector) transition(leader bool) {
	e.mu.Lock()
	prev := e.role
	if leader {
		e.role = RoleLeader
		e.leaderURI = e.self
	} else {
		e.role = RoleFollower
	}
	e.mu.Unlock()

	if prev == RoleFollower && leader && e.onBecome != nil {
		e.onBecome()
	}
	if prev == RoleLeader && !leader && e.onResign != nil {
		e.onResign()
	}
}

func (e *Elector) refreshCachedLeader() {
	lease, err := e.coord.Current(e.group)
	if err != nil || lease == nil {
		return
	}
	e.mu.Lock()
	e.leaderURI = lease.HolderURI
	e.mu.Unlock()
}

// IsLeader reports whether this peer currently holds the lease.
func (e *Elector) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.role == RoleLeader
}

// LeaderURI returns the last-known holder's URI. Only meaningful once at
// least one tick has run; empty before that.
func (e *Elector) LeaderURI() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.role == RoleLeader {
		return e.self
	}
	return e.leaderURI
}
