package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/dcc/pkg/events"
	"github.com/cuemby/dcc/pkg/log"
	"github.com/cuemby/dcc/pkg/rpc"
	"github.com/cuemby/dcc/pkg/storage"
	"github.com/cuemby/dcc/pkg/types"
)

// bucketWallClock bounds the entire before_bucket+bucket+after_bucket run
// for one Bucket; exceeding it is an infra-level failure (processing_failed),
// not the bucket's own task-list outcome.
const bucketWallClock = 2 * time.Hour

// Executor runs a worker's side of one claimed Bucket: the before_all tasks
// (each at most once per Build), the before_bucket tasks (once per Build per
// bucket-group), the bucket's own task list, and the after_bucket tasks (for
// every bucket), each task run in its own sandboxed container via TaskRunner.
type Executor struct {
	store      storage.Store
	runner     *TaskRunner
	tracker    *rpc.Tracker
	broker     *events.Broker
	workerURI  string
	workerHost string

	memo *buildMemo
}

// Option configures an Executor at construction.
type Option func(*Executor)

// WithEvents attaches an events.Broker that bucket/build transitions are
// published to. Without one, RunBucket still updates the store but no
// event is published.
func WithEvents(broker *events.Broker) Option {
	return func(e *Executor) { e.broker = broker }
}

// New builds an Executor bound to one worker's identity.
func New(store storage.Store, runner *TaskRunner, tracker *rpc.Tracker, workerURI, workerHost string, opts ...Option) *Executor {
	e := &Executor{
		store:      store,
		runner:     runner,
		tracker:    tracker,
		workerURI:  workerURI,
		workerHost: workerHost,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunBucket runs the claimed bucket named by bucketID to a terminal status
// and persists that status before returning. The environment is sanitized
// for the full run and restored on return regardless of outcome.
func (e *Executor) RunBucket(parent context.Context, bucketID string) error {
	e.tracker.Set(bucketID)
	defer e.tracker.Clear()

	ctx, cancel := context.WithTimeout(parent, bucketWallClock)
	defer cancel()

	bucket, err := e.store.GetBucket(bucketID)
	if err != nil {
		return fmt.Errorf("load bucket %s: %w", bucketID, err)
	}
	project, err := e.store.GetProject(bucket.ProjectID)
	if err != nil {
		return fmt.Errorf("load project %s: %w", bucket.ProjectID, err)
	}
	build, err := e.store.GetBuild(bucket.BuildID)
	if err != nil {
		return fmt.Errorf("load build %s: %w", bucket.BuildID, err)
	}

	if e.memo == nil || e.memo.buildID != build.ID {
		e.memo = newBuildMemo(build.ID)
	}

	var success bool
	err = WithSanitizedEnv(func() error {
		success, err = e.runTaskLists(ctx, project, build, bucket)
		return err
	})

	return e.finalize(bucket, build, project, success, err)
}

// runTaskLists runs before_all (once per build), before_bucket, bucket and
// after_bucket in order. A failing before_all or before_bucket list skips the
// lists after it, except after_bucket, which is always attempted as cleanup;
// the bucket succeeds only if every list it ran, after_bucket included,
// succeeded. An infra error before after_bucket ends the run at once.
func (e *Executor) runTaskLists(ctx context.Context, project *types.Project, build *types.Build, bucket *types.Bucket) (bool, error) {
	lists, ok := project.TaskLists[bucket.Name]
	if !ok {
		return false, fmt.Errorf("no task lists configured for bucket %q", bucket.Name)
	}

	success, err := e.runBeforeAllTasks(ctx, bucket.ID, lists.BeforeAllTasks)
	if err != nil {
		return false, err
	}

	group := project.BucketGroups[bucket.Name]
	if success && !e.memo.preparedBucketGroups[group] {
		ok, err := e.runList(ctx, bucket.ID, lists.BeforeBucketTasks)
		if err != nil {
			return false, err
		}
		e.memo.preparedBucketGroups[group] = true
		success = ok
	}

	if success {
		success, err = e.runList(ctx, bucket.ID, lists.BucketTasks)
		if err != nil {
			return false, err
		}
	}

	afterOK, afterErr := e.runList(ctx, bucket.ID, lists.AfterBucketTasks)
	if afterErr != nil {
		log.WithBucketID(bucket.ID).Warn().Err(afterErr).Msg("after_bucket hook failed")
	}

	return success && afterOK, nil
}

// runBeforeAllTasks runs only the before_all tasks, by name, not already
// recorded as succeeded for this Build - before_all_tasks \ already_succeeded
// - so a worker that runs a second (or later) bucket of the same Build never
// repeats work a prior bucket already completed. Each task's success is
// recorded into the memo as soon as it succeeds, not only when the whole
// list completes, so a partial run still advances shared progress.
func (e *Executor) runBeforeAllTasks(ctx context.Context, bucketID string, tasks []types.Task) (bool, error) {
	for _, task := range tasks {
		if e.memo.succeededBeforeAllTasks[task.Name] {
			continue
		}
		spec := &types.TaskSpec{
			ID:      task.Name + "-" + bucketID,
			Command: task.Command,
			Args:    task.Args,
		}
		ok, err := e.runner.Run(ctx, spec, bucketID)
		if err != nil {
			return false, fmt.Errorf("task %q: %w", task.Name, err)
		}
		if !ok {
			return false, nil
		}
		e.memo.succeededBeforeAllTasks[task.Name] = true
	}
	return true, nil
}

// runList runs every task in a list in order, stopping at the first task
// that fails to succeed. An infra-level error (err != nil) always stops the
// list immediately.
func (e *Executor) runList(ctx context.Context, bucketID string, tasks []types.Task) (bool, error) {
	for _, task := range tasks {
		spec := &types.TaskSpec{
			ID:      task.Name + "-" + bucketID,
			Command: task.Command,
			Args:    task.Args,
		}
		ok, err := e.runner.Run(ctx, spec, bucketID)
		if err != nil {
			return false, fmt.Errorf("task %q: %w", task.Name, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// finalize persists the bucket's terminal status (processing_failed on an
// infra error; otherwise success or failure, with the bucket's log fragments
// concatenated into its log), updates the build's finished_at once every
// bucket is terminal, and publishes the corresponding event.
func (e *Executor) finalize(bucket *types.Bucket, build *types.Build, project *types.Project, success bool, runErr error) error {
	now := time.Now()

	if runErr != nil {
		bucket.Status = types.BucketStatusProcessingFailed
		bucket.FinishedAt = &now
		bucket.ErrorLog = runErr.Error()
		if err := e.store.UpdateBucket(bucket); err != nil {
			return err
		}
		e.publish(events.EventBucketProcessingFailed, project, bucket, runErr.Error())
		return e.maybeFinishBuild(build)
	}

	if fragments, err := e.store.ListLogFragmentsByBucket(bucket.ID); err == nil {
		bucket.Log = ""
		for _, f := range fragments {
			bucket.Log += f.Content
		}
	}

	if success {
		bucket.Status = types.BucketStatusSuccess
	} else {
		bucket.Status = types.BucketStatusFailure
	}
	bucket.FinishedAt = &now
	if err := e.store.UpdateBucket(bucket); err != nil {
		return err
	}

	if success {
		if !e.notifyIfRepaired(project, build, bucket) {
			e.publish(events.EventBucketSucceeded, project, bucket, "")
		}
	} else {
		e.publish(events.EventBucketFailed, project, bucket, "")
	}

	return e.maybeFinishBuild(build)
}

// maybeFinishBuild sets build.FinishedAt the first time every bucket for it
// reaches a terminal status.
func (e *Executor) maybeFinishBuild(build *types.Build) error {
	buckets, err := e.store.ListBucketsByBuild(build.ID)
	if err != nil {
		return err
	}
	if !allTerminal(buckets) {
		return nil
	}
	if build.FinishedAt != nil {
		return nil
	}
	now := time.Now()
	build.FinishedAt = &now
	if err := e.store.UpdateBuild(build); err != nil {
		return err
	}
	e.publish(events.EventBuildFinished, nil, nil, "build "+build.ID+" finished")
	return nil
}

// notifyIfRepaired publishes a repair event, and reports true, when bucket
// succeeded this Build but its same-named predecessor in the immediately
// prior Build did not; otherwise it reports false so the caller still
// publishes a plain success event.
func (e *Executor) notifyIfRepaired(project *types.Project, build *types.Build, bucket *types.Bucket) bool {
	prevBuild, err := e.store.LastBuild(project.ID, build)
	if err != nil || prevBuild == nil {
		return false
	}
	prevBuckets, err := e.store.ListBucketsByBuild(prevBuild.ID)
	if err != nil {
		return false
	}
	for _, prev := range prevBuckets {
		if prev.Name == bucket.Name && prev.Status != types.BucketStatusSuccess {
			e.publish(events.EventBucketRepaired, project, bucket, "")
			return true
		}
	}
	return false
}

func (e *Executor) publish(eventType events.EventType, project *types.Project, bucket *types.Bucket, message string) {
	if e.broker == nil {
		return
	}
	meta := map[string]string{"worker_uri": e.workerURI, "worker_hostname": e.workerHost}
	if project != nil {
		meta["project_id"] = project.ID
		meta["project_name"] = project.Name
	}
	if bucket != nil {
		meta["bucket_id"] = bucket.ID
		meta["bucket_name"] = bucket.Name
		meta["build_id"] = bucket.BuildID
	}
	e.broker.Publish(&events.Event{Type: eventType, Message: message, Metadata: meta})
}

func allTerminal(buckets []*types.Bucket) bool {
	for _, b := range buckets {
		if !b.Status.Terminal() {
			return false
		}
	}
	return true
}
