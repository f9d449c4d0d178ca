/*
Package queue is the leader's in-memory BucketQueue: a per-project FIFO of
bucket IDs waiting for the Assignment RPC to hand out, plus the round-robin
bookkeeping that keeps one requestor from starving another.

The queue is intentionally not durable and is not rebuilt from the store:
the scanner calls SetBuckets once per new Build, a newly-elected leader's
scan marks queued buckets it does not hold processing_failed, and Clear is wired to the
election package's resign callback so a demoted leader drops its queue
rather than serve stale assignments.

	q := queue.New()
	q.SetBuckets("storefront", []string{"bucket-1", "bucket-2"})
	id, ok := q.NextBucket(requestorURI)
*/
package queue
