/*
Package scanner is the leader-only Project Scanner: on every tick it decides
whether each project needs a new Build, confirms the buckets already in
flight are still alive, and owns the one mutex that keeps that confirmation
atomic with the Assignment RPC's queue pop.

A bucket the scanner finds queued but does not already know about means a
previous leader vanished before handing it out; a claimed bucket is only
trusted once its worker answers the Liveness Probe (injected as the
LivenessProbe func type so this package never imports the RPC transport
that implements it). Either failure marks the bucket processing_failed
without aborting the rest of the scan - confirmBucket returns an explicit
{alive, dead(reason)} result rather than raising, and confirmLatestBuild
decides what to do with it.

	sc := scanner.New(store, q, selfURI, probeFn)
	sc.Tick(ctx)
	bucketID, ok := sc.PopNext(requestorURI)
*/
package scanner
