/*
Package types defines the flat, store-keyed records shared by every dcc
package: Project, Build, Bucket, LogFragment, and the TaskSpec/TaskState
pair the build executor hands to pkg/runtime.

Records reference each other by ID, never by pointer - a Bucket holds a
BuildID and ProjectID, not a *Build - so every package can round-trip a
record through pkg/storage without worrying about stale pointers across
peer restarts.

# Bucket state machine

Bucket.Status is the sticky state machine the whole scheduler turns on:

	queued(20) -> claimed(30) -> { success(10) | failure(40) | processing_failed(35) }

success, failure and processing_failed are terminal (Status.Terminal());
once set, nothing moves a bucket back to queued or claimed - a failed
bucket is requeued by creating a new Build, not by mutating the old one.

# Task lists

A Project's TaskLists map a bucket name to the four ordered phases the
executor runs as isolated child processes: before_all, before_bucket,
bucket, after_bucket. This package only holds the data the executor reads
it from; see pkg/executor for the run order and retry contract.
*/
package types
