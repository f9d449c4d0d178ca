package rpc

import (
	"context"
	"math/rand"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cuemby/dcc/pkg/log"
	"github.com/cuemby/dcc/pkg/storage"
	"github.com/cuemby/dcc/pkg/types"
)

// Elector is the subset of pkg/election.Elector the Coordinator server
// needs: is this peer currently leader.
type Elector interface {
	IsLeader() bool
}

// Popper is the subset of pkg/scanner.Scanner the Coordinator server needs:
// pop the next bucket id under the scanner's own mutex.
type Popper interface {
	PopNext(requestorURI string) (bucketID string, ok bool)
}

// ScanBackOff is how long a follower should sleep after an empty pop before
// asking again - the configured "sleep until next scan" window.
const ScanBackOff = 5 * time.Second

// Server implements CoordinatorServer. NextBucket only succeeds while this
// peer is leader; Processing answers from this peer's own Tracker
// regardless of role, since any peer - leader or follower - might be asked
// whether it owns a bucket.
type Server struct {
	elector Elector
	popper  Popper
	store   storage.Store
	tracker *Tracker
	selfURI string
}

// NewServer builds a Coordinator server bound to one peer's election state,
// scanner and store.
func NewServer(elector Elector, popper Popper, store storage.Store, tracker *Tracker, selfURI string) *Server {
	return &Server{elector: elector, popper: popper, store: store, tracker: tracker, selfURI: selfURI}
}

// NextBucket implements the Assignment RPC: a small random jitter to smear
// concurrent callers, then a pop under the scanner's mutex, then claiming
// the popped bucket in the store.
func (s *Server) NextBucket(ctx context.Context, req *NextBucketRequest) (*NextBucketResponse, error) {
	if err := sleepJitter(ctx); err != nil {
		return nil, err
	}

	if !s.elector.IsLeader() {
		return nil, status.Error(codes.FailedPrecondition, "not leader")
	}

	bucketID, ok := s.popper.PopNext(req.RequestorURI)
	if !ok {
		return &NextBucketResponse{BackOffSeconds: ScanBackOff.Seconds()}, nil
	}

	if err := s.claim(bucketID, req.RequestorURI, req.Hostname); err != nil {
		log.WithBucketID(bucketID).Error().Err(err).Msg("failed to claim popped bucket")
		return nil, status.Errorf(codes.Internal, "claim bucket %s: %v", bucketID, err)
	}

	return &NextBucketResponse{BucketID: bucketID, BackOffSeconds: 0}, nil
}

func (s *Server) claim(bucketID, requestorURI, hostname string) error {
	bucket, err := s.store.GetBucket(bucketID)
	if err != nil {
		return err
	}

	now := time.Now()
	bucket.WorkerURI = requestorURI
	bucket.WorkerHostname = hostname
	bucket.Status = types.BucketStatusClaimed
	bucket.StartedAt = &now
	if err := s.store.UpdateBucket(bucket); err != nil {
		return err
	}

	build, err := s.store.GetBuild(bucket.BuildID)
	if err != nil {
		return err
	}
	if build.StartedAt == nil {
		build.StartedAt = &now
		return s.store.UpdateBuild(build)
	}
	return nil
}

// Processing implements the Liveness Probe: does this peer's Tracker still
// own bucketID.
func (s *Server) Processing(ctx context.Context, req *ProcessingRequest) (*ProcessingResponse, error) {
	return &ProcessingResponse{Processing: s.tracker.Owns(req.BucketID)}, nil
}

// sleepJitter waits a random 0-2s before a pop. The delay is suspected to be
// a de-herding measure for followers that poll at the same moment.
func sleepJitter(ctx context.Context) error {
	d := time.Duration(rand.Int63n(int64(2 * time.Second)))
	if d == 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
