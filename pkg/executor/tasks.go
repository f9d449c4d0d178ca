package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/charmap"

	"github.com/cuemby/dcc/pkg/storage"
	"github.com/cuemby/dcc/pkg/types"
)

const defaultPollInterval = 10 * time.Second

// TaskRunner runs one task invocation inside the sandbox Runtime, polling
// its status non-blockingly every pollInterval and tailing its log file
// between polls so output streams into the store incrementally instead of
// being buffered until exit.
type TaskRunner struct {
	runtime      Runtime
	store        storage.Store
	pollInterval time.Duration
}

// NewTaskRunner builds a TaskRunner. A pollInterval <= 0 falls back to
// defaultPollInterval.
func NewTaskRunner(rt Runtime, store storage.Store, pollInterval time.Duration) *TaskRunner {
	return &TaskRunner{runtime: rt, store: store, pollInterval: pollInterval}
}

// Run executes spec to completion and reports whether it succeeded. A
// container killed by signal 6 (abort) gets exactly one retry under a fresh
// container ID; the retry's outcome, success or not, is final.
func (r *TaskRunner) Run(ctx context.Context, spec *types.TaskSpec, bucketID string) (success bool, err error) {
	state, err := r.runOnce(ctx, spec, bucketID)
	if err != nil {
		return false, err
	}

	if state == types.TaskStateAborted {
		r.appendFragment(bucketID, "\n------ task aborted (signal 6); retrying once ------\n")
		retry := *spec
		retry.ID = uuid.NewString()
		state, err = r.runOnce(ctx, &retry, bucketID)
		if err != nil {
			return false, err
		}
	}

	return state == types.TaskStateComplete, nil
}

func (r *TaskRunner) runOnce(ctx context.Context, spec *types.TaskSpec, bucketID string) (types.TaskState, error) {
	containerID, err := r.runtime.CreateTaskContainer(ctx, spec)
	if err != nil {
		return types.TaskStateFailed, fmt.Errorf("create task container: %w", err)
	}
	// Cleanup always runs, even if the caller's ctx is already cancelled -
	// an in-flight container must be killed on interruption, not left
	// running after the bucket is marked processing_failed.
	defer func() {
		_ = r.runtime.DeleteContainer(context.Background(), containerID)
	}()

	logPath := filepath.Join(os.TempDir(), "dcc-task-"+containerID+".log")
	defer os.Remove(logPath)

	if err := r.runtime.StartTaskContainer(ctx, containerID, logPath); err != nil {
		return types.TaskStateFailed, fmt.Errorf("start task container: %w", err)
	}

	interval := r.pollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var offset int64
	for {
		select {
		case <-ctx.Done():
			return types.TaskStateFailed, ctx.Err()
		case <-ticker.C:
			offset = r.tailLog(logPath, offset, bucketID)
			status, err := r.runtime.GetContainerStatus(ctx, containerID)
			if err != nil {
				return types.TaskStateFailed, fmt.Errorf("poll container status: %w", err)
			}
			if status != types.TaskStateRunning && status != types.TaskStatePending {
				r.tailLog(logPath, offset, bucketID)
				return status, nil
			}
		}
	}
}

// tailLog reads logPath starting at offset, decodes the new bytes as
// Latin-1 and re-encodes them as UTF-8, appends a non-empty result as a new
// Log fragment, and returns the offset the next call should resume from -
// preserved across polls so no byte is skipped or read twice.
func (r *TaskRunner) tailLog(logPath string, offset int64, bucketID string) int64 {
	f, err := os.Open(logPath)
	if err != nil {
		return offset
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset
	}
	raw, err := io.ReadAll(f)
	if err != nil || len(raw) == 0 {
		return offset
	}

	if decoded := decodeLatin1(raw); decoded != "" {
		r.appendFragment(bucketID, decoded)
	}
	return offset + int64(len(raw))
}

func decodeLatin1(raw []byte) string {
	utf8Bytes, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return ""
	}
	return dropInvalidRunes(string(utf8Bytes))
}

func dropInvalidRunes(s string) string {
	if strings.IndexRune(s, utf8.RuneError) < 0 {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if r == utf8.RuneError {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (r *TaskRunner) appendFragment(bucketID, content string) {
	fragment := &types.LogFragment{
		ID:        uuid.NewString(),
		BucketID:  bucketID,
		Content:   content,
		CreatedAt: time.Now(),
	}
	_ = r.store.AppendLogFragment(fragment)
}
