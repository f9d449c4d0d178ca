/*
Package coordination is the scheduler's one piece of shared mutable state
outside the Store: a per-group leader lease with a CAS-on-acquire, renew,
and unconditional tyrant seizure.

Acquire never contests a live lease; Seize always wins regardless of who
holds it or how much TTL remains. pkg/election builds the normal and tyrant
strategies on top of these two primitives, and never touches the bbolt
transactions directly.

	coord, _ := coordination.Open(dataDir)
	ok, _ := coord.Acquire("ci-fleet", selfURI, 10*time.Second)
	if !ok {
		// someone else holds the lease; retry or run as follower
	}
*/
package coordination
