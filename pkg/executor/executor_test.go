package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/dcc/pkg/events"
	"github.com/cuemby/dcc/pkg/rpc"
	"github.com/cuemby/dcc/pkg/storage"
	"github.com/cuemby/dcc/pkg/types"
)

func newTestExecutor(t *testing.T, rt Runtime, opts ...Option) (*Executor, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	runner := NewTaskRunner(rt, store, 5*time.Millisecond)
	exec := New(store, runner, rpc.NewTracker(), "peer-a", "host-a", opts...)
	return exec, store
}

func seedBucketFixture(t *testing.T, store storage.Store, bucketName string) (*types.Project, *types.Build, *types.Bucket) {
	t.Helper()

	project := &types.Project{
		ID:          "proj-1",
		Name:        "demo",
		BucketNames: []string{bucketName},
		TaskLists: map[string]types.ProjectTaskLists{
			bucketName: {
				BucketTasks: []types.Task{{Name: "run", Command: "rspec"}},
			},
		},
		BucketGroups: map[string]string{bucketName: "default"},
	}
	require.NoError(t, store.CreateProject(project))

	build := &types.Build{ID: "build-1", ProjectID: project.ID, BuildNumber: 1}
	require.NoError(t, store.CreateBuild(build))

	bucket := &types.Bucket{ID: "bucket-1", BuildID: build.ID, ProjectID: project.ID, Name: bucketName, Status: types.BucketStatusClaimed}
	require.NoError(t, store.CreateBucket(bucket))

	return project, build, bucket
}

func TestRunBucket_MarksSuccessAndFinishesBuild(t *testing.T) {
	rt := &fakeRuntime{states: []types.TaskState{types.TaskStateComplete}}
	exec, store := newTestExecutor(t, rt)
	_, build, bucket := seedBucketFixture(t, store, "unit")

	err := exec.RunBucket(context.Background(), bucket.ID)
	require.NoError(t, err)

	got, err := store.GetBucket(bucket.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BucketStatusSuccess, got.Status)
	require.NotNil(t, got.FinishedAt)

	gotBuild, err := store.GetBuild(build.ID)
	require.NoError(t, err)
	require.NotNil(t, gotBuild.FinishedAt)
}

func TestRunBucket_MarksFailureWithoutFinishingWhenOtherBucketsPending(t *testing.T) {
	rt := &fakeRuntime{states: []types.TaskState{types.TaskStateFailed}}
	exec, store := newTestExecutor(t, rt)
	project, build, bucket := seedBucketFixture(t, store, "unit")

	other := &types.Bucket{ID: "bucket-2", BuildID: build.ID, ProjectID: project.ID, Name: "integration", Status: types.BucketStatusQueued}
	require.NoError(t, store.CreateBucket(other))

	err := exec.RunBucket(context.Background(), bucket.ID)
	require.NoError(t, err)

	got, err := store.GetBucket(bucket.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BucketStatusFailure, got.Status)

	gotBuild, err := store.GetBuild(build.ID)
	require.NoError(t, err)
	assert.Nil(t, gotBuild.FinishedAt)
}

func TestRunBucket_InfraErrorMarksProcessingFailed(t *testing.T) {
	rt := &fakeRuntime{createErr: assertErr("containerd unreachable")}
	exec, store := newTestExecutor(t, rt)
	_, _, bucket := seedBucketFixture(t, store, "unit")

	err := exec.RunBucket(context.Background(), bucket.ID)
	require.NoError(t, err)

	got, err := store.GetBucket(bucket.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BucketStatusProcessingFailed, got.Status)
	assert.NotEmpty(t, got.ErrorLog)
}

func TestRunBucket_PublishesRepairedEventAfterPriorFailure(t *testing.T) {
	rt := &fakeRuntime{states: []types.TaskState{types.TaskStateComplete}}
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	exec, store := newTestExecutor(t, rt, WithEvents(broker))
	project, _, bucket := seedBucketFixture(t, store, "unit")

	prevBuild := &types.Build{ID: "build-0", ProjectID: project.ID, BuildNumber: 0}
	require.NoError(t, store.CreateBuild(prevBuild))
	prevBucket := &types.Bucket{ID: "prev-bucket", BuildID: prevBuild.ID, ProjectID: project.ID, Name: "unit", Status: types.BucketStatusFailure}
	require.NoError(t, store.CreateBucket(prevBucket))

	err := exec.RunBucket(context.Background(), bucket.ID)
	require.NoError(t, err)

	select {
	case ev := <-sub:
		assert.Equal(t, events.EventBucketRepaired, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected an event to be published")
	}
}

// recordingRuntime wraps a fakeRuntime and records the Command of every
// task container it is asked to create, so a test can assert how many times
// a given task actually ran.
type recordingRuntime struct {
	*fakeRuntime
	created []string
}

func (r *recordingRuntime) CreateTaskContainer(ctx context.Context, spec *types.TaskSpec) (string, error) {
	r.created = append(r.created, spec.Command)
	return r.fakeRuntime.CreateTaskContainer(ctx, spec)
}

func TestRunBucket_RunsBeforeAllTasksOnceAcrossSiblingBucketsInSameBuild(t *testing.T) {
	rt := &recordingRuntime{fakeRuntime: &fakeRuntime{states: []types.TaskState{types.TaskStateComplete}}}
	exec, store := newTestExecutor(t, rt)

	project := &types.Project{
		ID:          "proj-1",
		Name:        "demo",
		BucketNames: []string{"unit", "integration"},
		TaskLists: map[string]types.ProjectTaskLists{
			"unit": {
				BeforeAllTasks: []types.Task{{Name: "setup", Command: "setup-cmd"}},
				BucketTasks:    []types.Task{{Name: "run", Command: "run-cmd"}},
			},
			"integration": {
				BeforeAllTasks: []types.Task{{Name: "setup", Command: "setup-cmd"}},
				BucketTasks:    []types.Task{{Name: "run", Command: "run-cmd"}},
			},
		},
		BucketGroups: map[string]string{"unit": "default", "integration": "default"},
	}
	require.NoError(t, store.CreateProject(project))

	build := &types.Build{ID: "build-1", ProjectID: project.ID, BuildNumber: 1}
	require.NoError(t, store.CreateBuild(build))

	bucketA := &types.Bucket{ID: "bucket-a", BuildID: build.ID, ProjectID: project.ID, Name: "unit", Status: types.BucketStatusClaimed}
	bucketB := &types.Bucket{ID: "bucket-b", BuildID: build.ID, ProjectID: project.ID, Name: "integration", Status: types.BucketStatusClaimed}
	require.NoError(t, store.CreateBucket(bucketA))
	require.NoError(t, store.CreateBucket(bucketB))

	require.NoError(t, exec.RunBucket(context.Background(), bucketA.ID))
	require.NoError(t, exec.RunBucket(context.Background(), bucketB.ID))

	gotA, err := store.GetBucket(bucketA.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BucketStatusSuccess, gotA.Status)

	gotB, err := store.GetBucket(bucketB.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BucketStatusSuccess, gotB.Status, "second bucket of the same build must still run its own task list")

	setupRuns := 0
	for _, cmd := range rt.created {
		if cmd == "setup-cmd" {
			setupRuns++
		}
	}
	assert.Equal(t, 1, setupRuns, "before_all task must not re-run for a later sibling bucket of the same build")
}

func TestTracker_ClearedAfterRunBucket(t *testing.T) {
	rt := &fakeRuntime{states: []types.TaskState{types.TaskStateComplete}}
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tracker := rpc.NewTracker()
	runner := NewTaskRunner(rt, store, 5*time.Millisecond)
	exec := New(store, runner, tracker, "peer-a", "host-a")
	_, _, bucket := seedBucketFixture(t, store, "unit")

	err = exec.RunBucket(context.Background(), bucket.ID)
	require.NoError(t, err)
	assert.Empty(t, tracker.Current())
}
