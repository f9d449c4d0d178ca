// Package executor runs the worker side of a claimed Bucket: the sandboxed
// task lists (before_all, before_bucket, bucket, after_bucket), a sanitized
// child-process environment, non-blocking status polling with incremental
// log tailing, and the exactly-one-retry rule for an aborted task.
//
// Executor.RunBucket is the single entry point a peer's Assignment RPC loop
// calls after claiming a bucket; it leaves the bucket in a terminal status,
// marking it processing_failed itself when an infra-level error surfaces
// while its task lists run.
package executor
