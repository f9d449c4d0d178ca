package executor

import (
	"context"

	"github.com/cuemby/dcc/pkg/types"
)

// Runtime is the sandbox surface the executor needs from pkg/runtime:
// create and start one task's container, poll its status without
// blocking, and clean it up afterward. Satisfied by
// *runtime.ContainerdRuntime; defined here so this package and its tests
// never depend on a running containerd daemon.
type Runtime interface {
	CreateTaskContainer(ctx context.Context, spec *types.TaskSpec) (string, error)
	StartTaskContainer(ctx context.Context, containerID, logPath string) error
	GetContainerStatus(ctx context.Context, containerID string) (types.TaskState, error)
	DeleteContainer(ctx context.Context, containerID string) error
}
