package rpc

import "time"

// NextBucketRequest is a follower's Assignment RPC call.
type NextBucketRequest struct {
	RequestorURI string `json:"requestor_uri"`
	Hostname     string `json:"hostname"`
}

// NextBucketResponse answers with the next bucket id, or none with a
// back-off hint telling the follower how long to sleep before asking again.
type NextBucketResponse struct {
	BucketID       string  `json:"bucket_id,omitempty"`
	BackOffSeconds float64 `json:"back_off_seconds"`
}

// ProcessingRequest is the leader's Liveness Probe call to a worker.
type ProcessingRequest struct {
	BucketID string `json:"bucket_id"`
}

// ProcessingResponse reports whether the worker still owns bucket_id.
type ProcessingResponse struct {
	Processing bool `json:"processing"`
}

// BackOff converts BackOffSeconds to a time.Duration for callers that sleep
// on it directly.
func (r *NextBucketResponse) BackOff() time.Duration {
	return time.Duration(r.BackOffSeconds * float64(time.Second))
}
