// Package types holds the flat, store-friendly records shared across dcc's
// packages. Records hold IDs, not pointers to each other: traversal between
// Project, Build, Bucket and LogFragment always goes back through the store.
package types

import "time"

// BucketStatus is the sticky bucket lifecycle state machine.
type BucketStatus int

const (
	BucketStatusSuccess          BucketStatus = 10
	BucketStatusQueued           BucketStatus = 20
	BucketStatusClaimed          BucketStatus = 30
	BucketStatusProcessingFailed BucketStatus = 35
	BucketStatusFailure          BucketStatus = 40
)

// Terminal reports whether status is one of the three sticky end states.
func (s BucketStatus) Terminal() bool {
	switch s {
	case BucketStatusSuccess, BucketStatusFailure, BucketStatusProcessingFailed:
		return true
	default:
		return false
	}
}

func (s BucketStatus) String() string {
	switch s {
	case BucketStatusSuccess:
		return "success"
	case BucketStatusQueued:
		return "queued"
	case BucketStatusClaimed:
		return "claimed"
	case BucketStatusProcessingFailed:
		return "processing_failed"
	case BucketStatusFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// TaskList names one of the four ordered phases the executor runs per bucket.
type TaskList string

const (
	TaskListBeforeAll    TaskList = "before_all"
	TaskListBeforeBucket TaskList = "before_bucket"
	TaskListBucket       TaskList = "bucket"
	TaskListAfterBucket  TaskList = "after_bucket"
)

// Task is one child-process invocation within a TaskList.
type Task struct {
	Name    string
	Command string
	Args    []string
}

// Project is the unit of continuous integration configuration. Persisted and
// owned externally; the scheduler only reads and updates it.
type Project struct {
	ID        string
	Name      string
	SourceURL string

	// CurrentCommit is the commit pointer the scanner compares against when
	// deciding WantsBuild.
	CurrentCommit string
	// PendingCommit is set by an external trigger (webhook, poll) and
	// cleared by the scanner once a build has been created for it.
	PendingCommit string

	BucketNames []string
	TaskLists   map[string]ProjectTaskLists // keyed by bucket name

	BeforeAllCode       string            // working-directory-relative script path; loaded from config, not run by the executor
	BeforeEachGroupCode string            // per-bucket-group script path; loaded from config, not run by the executor
	BucketGroups        map[string]string // bucket name -> group tag
	RuntimeVersions     map[string]string // bucket name -> language runtime version

	NextBuildNumber int

	LastSystemError string
}

// ProjectTaskLists is the configured set of tasks for one bucket name.
type ProjectTaskLists struct {
	BeforeAllTasks    []Task
	BeforeBucketTasks []Task
	BucketTasks       []Task
	AfterBucketTasks  []Task
}

// Build is one CI run of a Project at a specific commit.
type Build struct {
	ID          string
	ProjectID   string
	BuildNumber int
	Commit      string
	LeaderURI   string
	StartedAt   *time.Time
	FinishedAt  *time.Time
}

// Bucket is one named slice of a Build's work, assigned to exactly one
// worker at a time.
type Bucket struct {
	ID             string
	BuildID        string
	ProjectID      string
	Name           string
	Status         BucketStatus
	WorkerURI      string
	WorkerHostname string
	StartedAt      *time.Time
	FinishedAt     *time.Time
	Log            string
	ErrorLog       string
}

// LogFragment is an append-only chunk of executor output, ordered by
// CreatedAt within a bucket and concatenated into Bucket.Log on completion.
type LogFragment struct {
	ID        string
	BucketID  string
	Content   string
	CreatedAt time.Time
}

// TaskState is the lifecycle of one sandboxed task invocation.
type TaskState int

const (
	TaskStatePending TaskState = iota
	TaskStateRunning
	TaskStateComplete
	TaskStateFailed
	TaskStateAborted // terminated by a signal, e.g. SIGABRT (6)
)

// TaskSpec describes a single isolated child-process invocation: one Task
// from a ProjectTaskLists, bound to the build's checked-out workspace.
type TaskSpec struct {
	ID    string // unique per invocation, used as the containerd container/task ID
	Image string // runtime image the task list runs under (from RuntimeVersions)

	Command string
	Args    []string
	Env     []string // sanitized key=value pairs, see executor.WithSanitizedEnv

	WorkspaceDir string // host path bind-mounted read-write at /workspace
}
