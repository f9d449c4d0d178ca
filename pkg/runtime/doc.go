/*
Package runtime sandboxes one task invocation per containerd container: dcc
never runs long-lived services under containerd, only the short-lived
before_all/before_bucket/bucket/after_bucket child processes the build
executor launches to run one bucket's task lists.

Each TaskSpec becomes a container whose workspace (the project's checked-out
source tree) is bind-mounted read-write at /workspace, and whose combined
stdout/stderr stream to a cio.LogFile on disk so pkg/executor can transcode
it incrementally rather than buffer the whole run in memory. There is no
container networking, no secrets or volume plumbing, and no long-running
task polling loop beyond WaitTaskContainer's blocking wait - those concerns
belong to services, not to a CI task runner.

	rt, _ := runtime.NewContainerdRuntime("")
	id, _ := rt.CreateTaskContainer(ctx, spec)
	_ = rt.StartTaskContainer(ctx, id, logPath)
	exitStatus, _ := rt.WaitTaskContainer(ctx, id)
	_ = rt.DeleteContainer(ctx, id)
*/
package runtime
