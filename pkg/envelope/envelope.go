package envelope

import (
	"errors"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/dcc/pkg/log"
	"github.com/cuemby/dcc/pkg/notify"
	"github.com/cuemby/dcc/pkg/storage"
	"github.com/cuemby/dcc/pkg/types"
)

// ReconnectDelay is the pause between a detected transient disconnect and
// the retried attempt.
const ReconnectDelay = 3 * time.Second

// Reopener is the subset of storage.BoltStore the envelope needs to recover
// from a lost connection: discard the stale handle and open a fresh one.
type Reopener interface {
	Reopen() error
}

// Envelope is the single choke point every externally-invoked block of
// scheduler/executor code runs through. A transient database disconnect is
// retried twice with a fresh connection; any other error is classified and
// recorded against exactly one of a bucket, a project, or the operator
// mailbox, and never left unrecorded.
type Envelope struct {
	store   storage.Store
	reopen  Reopener
	mailer  *notify.MailAdapter
	selfURI func() string
	leader  func() string

	// reconnectDelay defaults to ReconnectDelay; tests shrink it so the
	// retry-exhaustion path doesn't pay the real 3s+3s delay.
	reconnectDelay time.Duration
}

// New builds an Envelope bound to store (for bucket/project classification)
// and an optional mailer (for operator-email classification). selfURI and
// leaderURI feed the admin mail body's "current URI" / "known leader URI"
// fields and may be nil.
func New(store storage.Store, reopen Reopener, mailer *notify.MailAdapter, selfURI, leaderURI func() string) *Envelope {
	return &Envelope{store: store, reopen: reopen, mailer: mailer, selfURI: selfURI, leader: leaderURI, reconnectDelay: ReconnectDelay}
}

// RunForBucket runs fn with reconnect retry; any surviving error marks
// bucketID processing_failed with the error report recorded as its error log.
func (e *Envelope) RunForBucket(bucketID string, fn func() error) error {
	err := e.runWithReconnect(fn)
	if err == nil {
		return nil
	}
	e.recordBucketFailure(bucketID, err)
	return err
}

// RunForProject runs fn with reconnect retry; any surviving error is
// recorded on the project's last_system_error field.
func (e *Envelope) RunForProject(projectID string, fn func() error) error {
	err := e.runWithReconnect(fn)
	if err == nil {
		return nil
	}
	e.recordProjectFailure(projectID, err)
	return err
}

// RunForOperator runs fn with reconnect retry; any surviving error is
// mailed to the operator address with a stack-trace-equivalent report.
func (e *Envelope) RunForOperator(operatorEmail, subject string, fn func() error) error {
	err := e.runWithReconnect(fn)
	if err == nil {
		return nil
	}
	e.mailOperator(operatorEmail, subject, err)
	return err
}

// runWithReconnect implements the two-layer retry: on a transient
// disconnect the block is re-run once with a fresh connection; if that
// retry also sees a transient disconnect it is re-run once more. A
// non-transient error is returned immediately without retry.
func (e *Envelope) runWithReconnect(fn func() error) error {
	err := fn()
	if err == nil || !isTransientDisconnect(err) {
		return err
	}

	for attempt := 0; attempt < 2; attempt++ {
		log.Logger.Warn().Err(err).Msg("transient database disconnect, reconnecting")
		time.Sleep(e.reconnectDelay)
		if e.reopen != nil {
			if reopenErr := e.reopen.Reopen(); reopenErr != nil {
				return fmt.Errorf("reconnect failed: %w", reopenErr)
			}
		}
		err = fn()
		if err == nil || !isTransientDisconnect(err) {
			return err
		}
	}
	return err
}

func (e *Envelope) recordBucketFailure(bucketID string, cause error) {
	bucket, err := e.store.GetBucket(bucketID)
	if err != nil {
		log.Logger.Error().Err(err).Str("bucket_id", bucketID).Msg("failure envelope could not load bucket to record failure")
		return
	}

	now := time.Now()
	bucket.Status = types.BucketStatusProcessingFailed
	bucket.FinishedAt = &now
	bucket.ErrorLog = fmt.Sprintf("------ Processing failed ------\n%s\n%s", "unhandled error", cause.Error())

	if err := e.store.UpdateBucket(bucket); err != nil {
		log.Logger.Error().Err(err).Str("bucket_id", bucketID).Msg("failure envelope could not persist processing_failed bucket")
	}
}

func (e *Envelope) recordProjectFailure(projectID string, cause error) {
	project, err := e.store.GetProject(projectID)
	if err != nil {
		log.Logger.Error().Err(err).Str("project_id", projectID).Msg("failure envelope could not load project to record failure")
		return
	}

	project.LastSystemError = cause.Error()
	if err := e.store.UpdateProject(project); err != nil {
		log.Logger.Error().Err(err).Str("project_id", projectID).Msg("failure envelope could not persist project last_system_error")
	}
}

func (e *Envelope) mailOperator(operatorEmail, subject string, cause error) {
	if e.mailer == nil {
		log.Logger.Error().Err(cause).Str("subject", subject).Msg("failure envelope has no mailer configured, dropping operator alert")
		return
	}

	var self, leaderURI string
	if e.selfURI != nil {
		self = e.selfURI()
	}
	if e.leader != nil {
		leaderURI = e.leader()
	}

	body := fmt.Sprintf("current URI: %s\nknown leader URI: %s\n\n%s", self, leaderURI, cause.Error())
	if err := e.mailer.Send(operatorEmail, subject, body); err != nil {
		log.Logger.Error().Err(err).Str("subject", subject).Msg("failure envelope could not mail operator")
	}
}

// isTransientDisconnect reports whether err looks like a recoverable
// storage-layer disconnect rather than an application error: bbolt's own
// "database not open"/timeout conditions, which arise the same way a
// "server gone away" error would against a networked database - the
// connection, not the request, is at fault.
func isTransientDisconnect(err error) bool {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) || errors.Is(err, bolt.ErrTimeout) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database not open") || strings.Contains(msg, "timeout")
}
