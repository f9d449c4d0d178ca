package storage

import (
	"github.com/cuemby/dcc/pkg/types"
)

// Store is the repository abstraction CRUD over Project, Build, Bucket and
// LogFragment, plus the project-specific operations the scanner and executor
// need. It is implemented by BoltStore.
type Store interface {
	// Projects
	CreateProject(project *types.Project) error
	GetProject(id string) (*types.Project, error)
	GetProjectByName(name string) (*types.Project, error)
	ListProjects() ([]*types.Project, error)
	UpdateProject(project *types.Project) error
	DeleteProject(id string) error

	// Builds
	CreateBuild(build *types.Build) error
	GetBuild(id string) (*types.Build, error)
	ListBuildsByProject(projectID string) ([]*types.Build, error)
	// LastBuild returns the most recent Build for a project, or the most
	// recent Build strictly before the given one when before is non-nil
	// (Project.last_build(before:)).
	LastBuild(projectID string, before *types.Build) (*types.Build, error)
	UpdateBuild(build *types.Build) error

	// Buckets
	CreateBucket(bucket *types.Bucket) error
	GetBucket(id string) (*types.Bucket, error)
	ListBucketsByBuild(buildID string) ([]*types.Bucket, error)
	// NonTerminalBucketsByProject returns buckets in a live, non-terminal
	// status across all of a project's builds (at most one non-terminal
	// bucket per (project, name) is ever live).
	NonTerminalBucketsByProject(projectID string) ([]*types.Bucket, error)
	UpdateBucket(bucket *types.Bucket) error

	// Log fragments
	AppendLogFragment(fragment *types.LogFragment) error
	ListLogFragmentsByBucket(bucketID string) ([]*types.LogFragment, error)

	Close() error
}
