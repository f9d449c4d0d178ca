package runtime

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/cuemby/dcc/pkg/log"
	"github.com/cuemby/dcc/pkg/types"
)

const (
	// DefaultNamespace is the containerd namespace dcc creates task sandboxes in.
	DefaultNamespace = "dcc"

	// DefaultSocketPath is the default containerd socket.
	DefaultSocketPath = "/run/containerd/containerd.sock"
)

// ContainerdRuntime sandboxes one Task invocation per containerd container:
// no long-running services, no container networking - just an isolated
// process with the build workspace bind-mounted in and its stdout/stderr
// captured to a log file for the executor to transcode and store.
type ContainerdRuntime struct {
	client    *containerd.Client
	namespace string
}

// NewContainerdRuntime creates a new containerd runtime client.
func NewContainerdRuntime(socketPath string) (*ContainerdRuntime, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}

	return &ContainerdRuntime{
		client:    client,
		namespace: DefaultNamespace,
	}, nil
}

// Close closes the containerd client connection.
func (r *ContainerdRuntime) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// PullImage pulls the runtime image a task list runs under.
func (r *ContainerdRuntime) PullImage(ctx context.Context, imageRef string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	if _, err := r.client.Pull(ctx, imageRef, containerd.WithPullUnpack); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageRef, err)
	}
	return nil
}

// CreateTaskContainer creates a container for one TaskSpec, with the build
// workspace bind-mounted read-write at /workspace and the process cwd set
// there.
func (r *ContainerdRuntime) CreateTaskContainer(ctx context.Context, spec *types.TaskSpec) (string, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	image, err := r.client.GetImage(ctx, spec.Image)
	if err != nil {
		return "", fmt.Errorf("failed to get image %s: %w", spec.Image, err)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(spec.Env),
		oci.WithProcessArgs(append([]string{spec.Command}, spec.Args...)...),
		oci.WithProcessCwd("/workspace"),
	}

	if spec.WorkspaceDir != "" {
		opts = append(opts, oci.WithMounts([]specs.Mount{
			{
				Source:      spec.WorkspaceDir,
				Destination: "/workspace",
				Type:        "bind",
				Options:     []string{"rw", "bind"},
			},
		}))
	}

	ctrdContainer, err := r.client.NewContainer(
		ctx,
		spec.ID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(spec.ID+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create task container: %w", err)
	}

	return ctrdContainer.ID(), nil
}

// StartTaskContainer starts the task's process, streaming its combined
// stdout/stderr to logPath via cio.LogFile so the executor can tail it while
// the task is still running.
func (r *ContainerdRuntime) StartTaskContainer(ctx context.Context, containerID, logPath string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return fmt.Errorf("failed to load container %s: %w", containerID, err)
	}

	task, err := container.NewTask(ctx, cio.LogFile(logPath))
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	if err := task.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task: %w", err)
	}

	return nil
}

// WaitTaskContainer blocks until the task exits (or ctx is cancelled) and
// returns its containerd exit status. A task killed by SIGABRT (6) - the
// abort signal the build executor retries exactly once - surfaces here as
// exit status 134 (128+6), the POSIX convention containerd itself reports.
func (r *ContainerdRuntime) WaitTaskContainer(ctx context.Context, containerID string) (uint32, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return 0, fmt.Errorf("failed to load container %s: %w", containerID, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get task: %w", err)
	}

	statusC, err := task.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to wait for task: %w", err)
	}

	select {
	case status := <-statusC:
		return status.ExitCode(), status.Error()
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// StopContainer stops a running task container, SIGTERM first and SIGKILL
// on timeout - used when the wall-clock budget for a bucket's task list
// expires.
func (r *ContainerdRuntime) StopContainer(ctx context.Context, containerID string, timeout time.Duration) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return fmt.Errorf("failed to load container %s: %w", containerID, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		// Task might not exist (container not running)
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to kill task: %w", err)
	}

	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return fmt.Errorf("failed to wait for task: %w", err)
	}

	select {
	case <-statusC:
	case <-stopCtx.Done():
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return fmt.Errorf("failed to force kill task: %w", err)
		}
	}

	if _, err := task.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	return nil
}

// DeleteContainer removes a container and its snapshot once its log has
// been transcoded and stored.
func (r *ContainerdRuntime) DeleteContainer(ctx context.Context, containerID string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		// Container might not exist
		return nil
	}

	if err := r.StopContainer(ctx, containerID, 10*time.Second); err != nil {
		log.WithComponent("runtime").Warn().Err(err).Str("container_id", containerID).Msg("failed to stop container before delete")
	}

	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return fmt.Errorf("failed to delete container: %w", err)
	}

	return nil
}

// GetContainerStatus returns the lifecycle state of a task container.
func (r *ContainerdRuntime) GetContainerStatus(ctx context.Context, containerID string) (types.TaskState, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return types.TaskStateFailed, fmt.Errorf("failed to load container %s: %w", containerID, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return types.TaskStatePending, nil
	}

	status, err := task.Status(ctx)
	if err != nil {
		return types.TaskStateFailed, fmt.Errorf("failed to get task status: %w", err)
	}

	switch status.Status {
	case containerd.Running:
		return types.TaskStateRunning, nil
	case containerd.Stopped:
		switch {
		case status.ExitStatus == 0:
			return types.TaskStateComplete, nil
		case status.ExitStatus == 134: // 128 + SIGABRT
			return types.TaskStateAborted, nil
		default:
			return types.TaskStateFailed, nil
		}
	default:
		return types.TaskStatePending, nil
	}
}

// IsRunning reports whether a task container is currently running.
func (r *ContainerdRuntime) IsRunning(ctx context.Context, containerID string) bool {
	status, err := r.GetContainerStatus(ctx, containerID)
	if err != nil {
		return false
	}
	return status == types.TaskStateRunning
}

// ListContainers returns all task container IDs in the dcc namespace.
func (r *ContainerdRuntime) ListContainers(ctx context.Context) ([]string, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	containers, err := r.client.Containers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	ids := make([]string, 0, len(containers))
	for _, c := range containers {
		ids = append(ids, c.ID())
	}

	return ids, nil
}

// OpenTaskLog opens the cio.LogFile path a task container was started with,
// for the executor to tail or read in full once the task has exited.
func OpenTaskLog(logPath string) (*os.File, error) {
	f, err := os.Open(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open task log %s: %w", logPath, err)
	}
	return f, nil
}
