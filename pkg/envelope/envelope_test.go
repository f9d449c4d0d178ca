package envelope

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/dcc/pkg/notify"
	"github.com/cuemby/dcc/pkg/storage"
	"github.com/cuemby/dcc/pkg/types"
)

func subjectFrom(msg []byte) string {
	for _, line := range strings.Split(string(msg), "\r\n") {
		if strings.HasPrefix(line, "Subject: ") {
			return strings.TrimPrefix(line, "Subject: ")
		}
	}
	return ""
}

type countingReopener struct{ calls int }

func (c *countingReopener) Reopen() error {
	c.calls++
	return nil
}

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunForBucket_MarksProcessingFailedOnNonTransientError(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateBucket(&types.Bucket{ID: "bucket-1", Status: types.BucketStatusClaimed}))

	env := New(store, nil, nil, nil, nil)
	err := env.RunForBucket("bucket-1", func() error {
		return errors.New("task list raised an unexpected error")
	})
	assert.Error(t, err)

	bucket, err := store.GetBucket("bucket-1")
	require.NoError(t, err)
	assert.Equal(t, types.BucketStatusProcessingFailed, bucket.Status)
	assert.Contains(t, bucket.ErrorLog, "Processing failed")
	require.NotNil(t, bucket.FinishedAt)
}

func TestRunForBucket_NoErrorLeavesBucketUntouched(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateBucket(&types.Bucket{ID: "bucket-1", Status: types.BucketStatusClaimed}))

	env := New(store, nil, nil, nil, nil)
	err := env.RunForBucket("bucket-1", func() error { return nil })
	require.NoError(t, err)

	bucket, err := store.GetBucket("bucket-1")
	require.NoError(t, err)
	assert.Equal(t, types.BucketStatusClaimed, bucket.Status)
}

func TestRunForProject_SetsLastSystemError(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateProject(&types.Project{ID: "proj-1", Name: "demo"}))

	env := New(store, nil, nil, nil, nil)
	err := env.RunForProject("proj-1", func() error {
		return errors.New("scan failed")
	})
	assert.Error(t, err)

	project, err := store.GetProject("proj-1")
	require.NoError(t, err)
	assert.Equal(t, "scan failed", project.LastSystemError)
}

func TestRunForOperator_MailsAdminOnError(t *testing.T) {
	store := newTestStore(t)

	var sentTo, sentSubject string
	mail := notify.NewMailAdapter("smtp.example.com", 25, "u", "p", "dcc@example.com")
	mail.Transport = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		sentTo = to[0]
		sentSubject = subjectFrom(msg)
		return nil
	}

	env := New(store, nil, mail, func() string { return "peer-a" }, func() string { return "peer-b" })
	err := env.RunForOperator("ops@example.com", "worker loop crashed", func() error {
		return errors.New("panic: nil pointer")
	})
	assert.Error(t, err)
	assert.Equal(t, "ops@example.com", sentTo)
	assert.Equal(t, "worker loop crashed", sentSubject)
}

func TestRunWithReconnect_RetriesOnceOnTransientError(t *testing.T) {
	store := newTestStore(t)
	reopener := &countingReopener{}
	env := New(store, reopener, nil, nil, nil)
	env.reconnectDelay = time.Millisecond

	calls := 0
	err := env.runWithReconnect(func() error {
		calls++
		if calls == 1 {
			return errors.New("database not open")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, reopener.calls)
}

func TestRunWithReconnect_GivesUpAfterTwoRetries(t *testing.T) {
	store := newTestStore(t)
	reopener := &countingReopener{}
	env := New(store, reopener, nil, nil, nil)
	env.reconnectDelay = time.Millisecond

	calls := 0
	err := env.runWithReconnect(func() error {
		calls++
		return errors.New("database not open")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, reopener.calls)
}
