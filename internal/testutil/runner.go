package testutil

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// QueryResponse is a canned answer for queries containing a marker
type QueryResponse struct {
	Rows  []map[string]any
	Err   error
	Delay time.Duration
}

// FakeRunner answers queries by substring match and records what it saw. It
// also tracks the peak number of concurrent calls.
type FakeRunner struct {
	mu        sync.Mutex
	responses map[string]QueryResponse
	queries   []string

	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewFakeRunner creates a runner with no canned responses
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{responses: make(map[string]QueryResponse)}
}

// On registers a response for any query containing marker
func (f *FakeRunner) On(marker string, resp QueryResponse) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.responses[marker] = resp

	return f
}

// Query implements the batch query runner interface
func (f *FakeRunner) Query(ctx context.Context, sql string) ([]map[string]any, error) {
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)

	for {
		peak := f.peak.Load()
		if current <= peak || f.peak.CompareAndSwap(peak, current) {
			break
		}
	}

	f.mu.Lock()
	f.queries = append(f.queries, sql)

	var (
		resp  QueryResponse
		found bool
	)

	for marker, r := range f.responses {
		if strings.Contains(sql, marker) {
			resp, found = r, true

			break
		}
	}
	f.mu.Unlock()

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if !found {
		return []map[string]any{}, nil
	}

	return resp.Rows, resp.Err
}

// Queries returns every query received so far
func (f *FakeRunner) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.queries))
	copy(out, f.queries)

	return out
}

// PeakConcurrency returns the highest number of simultaneous Query calls seen
func (f *FakeRunner) PeakConcurrency() int {
	return int(f.peak.Load())
}
