/*
Package election runs the periodic leader nomination loop: each peer
repeatedly attempts to take its group's lease through pkg/coordination and
tracks whether it is currently leader or follower.

Two Strategy implementations cover the two election modes named by the
operator at startup - normalStrategy negotiates via Acquire/Renew and never
contests a live lease, tyrantStrategy always wins via Seize and re-asserts
every 60s regardless of who held it before. A peer gets one or the other at
construction (New vs NewTyrant); there is no switching between them at
runtime.

	elector := election.New(coord, "ci-fleet", selfURI,
		election.WithOnBecomeLeader(startScanLoop),
		election.WithOnResign(q.Clear))
	go elector.Run(ctx)

WithOnBecomeLeader and WithOnResign fire exactly once per transition, so the
scanner and bucket queue only reset state on an actual leadership change, not
on every successful renew.
*/
package election
