// Package scanner implements the leader-only Project Scanner: on every
// leader tick it decides which projects need a new Build, fails queued
// buckets the in-memory queue does not hold, and recovers buckets whose
// worker has gone quiet.
package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/dcc/pkg/log"
	"github.com/cuemby/dcc/pkg/queue"
	"github.com/cuemby/dcc/pkg/storage"
	"github.com/cuemby/dcc/pkg/types"
)

// LivenessProbe asks workerURI whether it is still processing bucketID. It
// is injected rather than imported directly so this package never depends
// on the RPC transport that implements it.
type LivenessProbe func(ctx context.Context, workerURI, bucketID string) (bool, error)

// bucketConfirmState is the explicit result variant standing in for the
// raise-to-fail control flow of project_in_build?: a confirmation either
// finds the bucket alive, or dead with a reason, and the scanner decides
// what to do with that result - it never relies on an exception unwinding
// through the check.
type bucketConfirmState int

const (
	bucketAlive bucketConfirmState = iota
	bucketDead
)

type confirmResult struct {
	state  bucketConfirmState
	reason string
}

// Scanner owns the single mutex that serialises BucketQueue mutation with
// the project_in_build? walk, so a concurrent Assignment RPC pop can never
// observe a half-enqueued build.
type Scanner struct {
	store   storage.Store
	queue   *queue.Queue
	selfURI string
	probe   LivenessProbe

	mu sync.Mutex
}

// New builds a Scanner. probe answers the Liveness Probe RPC against a
// worker; queue is the same Queue instance the Assignment RPC server pops
// from.
func New(store storage.Store, q *queue.Queue, selfURI string, probe LivenessProbe) *Scanner {
	return &Scanner{store: store, queue: q, selfURI: selfURI, probe: probe}
}

// Tick runs one scan over every project. Errors reading the project list
// abort the tick; errors on an individual project are contained to that
// project and do not stop the others.
func (s *Scanner) Tick(ctx context.Context) {
	logger := log.WithComponent("scanner")
	projects, err := s.store.ListProjects()
	if err != nil {
		logger.Error().Err(err).Msg("failed to list projects")
		return
	}
	for _, project := range projects {
		s.tickProject(ctx, project)
	}
}

func (s *Scanner) tickProject(ctx context.Context, project *types.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inBuild := !s.queue.Empty(project.Name)
	if !inBuild {
		inBuild = s.confirmLatestBuild(ctx, project)
	}
	if inBuild {
		return
	}

	wantsBuild, commit := wantsBuild(project)
	if !wantsBuild {
		return
	}

	s.startBuild(project, commit)
}

// confirmLatestBuild walks the non-terminal buckets of a project's latest
// build. A queued bucket the leader doesn't already know about means a
// previous leader vanished mid-scan; a claimed bucket is only trusted if
// its worker answers the Liveness Probe. Either failure marks the bucket
// processing_failed and scanning continues - a bad bucket never aborts the
// rest of the walk.
func (s *Scanner) confirmLatestBuild(ctx context.Context, project *types.Project) bool {
	lastBuild, err := s.store.LastBuild(project.ID, nil)
	if err != nil || lastBuild == nil {
		return false
	}

	nonTerminal, err := s.store.NonTerminalBucketsByProject(project.ID)
	if err != nil {
		return false
	}

	alive := false
	for _, bucket := range nonTerminal {
		if bucket.BuildID != lastBuild.ID {
			continue
		}
		result := s.confirmBucket(ctx, bucket)
		switch result.state {
		case bucketAlive:
			alive = true
		case bucketDead:
			s.markProcessingFailed(bucket, result.reason)
		}
	}
	return alive
}

func (s *Scanner) confirmBucket(ctx context.Context, bucket *types.Bucket) confirmResult {
	switch bucket.Status {
	case types.BucketStatusQueued:
		return confirmResult{state: bucketDead, reason: "bucket was queued but not known to the current leader; the previous leader likely vanished"}
	case types.BucketStatusClaimed:
		if s.probe == nil {
			return confirmResult{state: bucketAlive}
		}
		alive, err := s.probe(ctx, bucket.WorkerURI, bucket.ID)
		if err != nil {
			return confirmResult{state: bucketDead, reason: "liveness probe error: " + err.Error()}
		}
		if !alive {
			return confirmResult{state: bucketDead, reason: "worker denied ownership of claimed bucket"}
		}
		return confirmResult{state: bucketAlive}
	default:
		return confirmResult{state: bucketAlive}
	}
}

func (s *Scanner) markProcessingFailed(bucket *types.Bucket, reason string) {
	bucket.Status = types.BucketStatusProcessingFailed
	bucket.ErrorLog = reason
	now := time.Now()
	bucket.FinishedAt = &now
	if err := s.store.UpdateBucket(bucket); err != nil {
		log.WithBucketID(bucket.ID).Error().Err(err).Msg("failed to persist processing_failed bucket")
	}
}

// wantsBuild reports whether project has an unconsumed pending commit, and
// the commit to build if so.
func wantsBuild(project *types.Project) (bool, string) {
	if project.PendingCommit == "" {
		return false, ""
	}
	if project.PendingCommit == project.CurrentCommit {
		return false, ""
	}
	return true, project.PendingCommit
}

func (s *Scanner) startBuild(project *types.Project, commit string) {
	build := &types.Build{
		ID:          uuid.NewString(),
		ProjectID:   project.ID,
		BuildNumber: project.NextBuildNumber,
		Commit:      commit,
		LeaderURI:   s.selfURI,
	}
	if err := s.store.CreateBuild(build); err != nil {
		log.WithProjectName(project.Name).Error().Err(err).Msg("failed to create build")
		return
	}

	ids := make([]string, 0, len(project.BucketNames))
	for _, name := range project.BucketNames {
		bucket := &types.Bucket{
			ID:        uuid.NewString(),
			BuildID:   build.ID,
			ProjectID: project.ID,
			Name:      name,
			Status:    types.BucketStatusQueued,
		}
		if err := s.store.CreateBucket(bucket); err != nil {
			log.WithProjectName(project.Name).Error().Err(err).Msg("failed to create bucket")
			continue
		}
		ids = append(ids, bucket.ID)
	}
	s.queue.SetBuckets(project.Name, ids)

	project.CurrentCommit = commit
	project.PendingCommit = ""
	project.NextBuildNumber++
	if err := s.store.UpdateProject(project); err != nil {
		log.WithProjectName(project.Name).Error().Err(err).Msg("failed to update project after build creation")
	}
}

// PopNext pops the next bucket id for requestorURI, serialised against
// concurrent scan ticks by the same mutex tickProject holds for its whole
// walk.
func (s *Scanner) PopNext(requestorURI string) (bucketID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.NextBucket(requestorURI)
}
