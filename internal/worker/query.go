package worker

import (
	"context"
	"encoding/json"
	"time"
)

// FetchFunc retrieves one peer's raw response
type FetchFunc func(ctx context.Context, target string) (json.RawMessage, error)

// QueryJob asks one peer for its batch
type QueryJob struct {
	Index   int
	UID     int
	Target  string // Peer base URL
	Timeout time.Duration
	Fetch   FetchFunc
}

// Execute runs the fetch under the per-peer timeout
func (j *QueryJob) Execute(ctx context.Context) Result {
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	start := time.Now()
	body, err := j.Fetch(ctx, j.Target)
	return &QueryResult{
		Index:   j.Index,
		UID:     j.UID,
		Body:    body,
		Elapsed: time.Since(start),
		Error:   err,
	}
}

// QueryResult is one peer's answer
type QueryResult struct {
	Index   int
	UID     int
	Body    json.RawMessage
	Elapsed time.Duration
	Error   error
}

// GetError returns the fetch error
func (r *QueryResult) GetError() error {
	return r.Error
}

// FanOut queries every target concurrently and returns bodies aligned with
// targets. Failed or timed out peers get a nil body.
func FanOut(ctx context.Context, workers int, uids []int, targets []string, timeout time.Duration, fetch FetchFunc) ([]json.RawMessage, []*QueryResult) {
	jobs := make([]Job, len(targets))
	for i, target := range targets {
		uid := -1
		if i < len(uids) {
			uid = uids[i]
		}
		jobs[i] = &QueryJob{Index: i, UID: uid, Target: target, Timeout: timeout, Fetch: fetch}
	}

	results := Run(ctx, workers, jobs)
	bodies := make([]json.RawMessage, len(targets))
	details := make([]*QueryResult, len(targets))
	for i, r := range results {
		qr, ok := r.(*QueryResult)
		if !ok || qr == nil {
			details[i] = &QueryResult{Index: i, UID: jobs[i].(*QueryJob).UID, Error: context.Canceled}
			continue
		}
		details[i] = qr
		if qr.Error == nil {
			bodies[i] = qr.Body
		}
	}
	return bodies, details
}
