package store

import (
	"context"
	"sync"

	"github.com/roach88/npu/internal/engine"
)

// Recorder appends every burst an engine completes to a run. It is an
// engine.Observer; observers cannot fail a burst, so the first write
// error is kept and later bursts are not written.
type Recorder struct {
	store *Store
	ctx   context.Context
	runID string

	mu      sync.Mutex
	err     error
	written int
}

var _ engine.Observer = (*Recorder)(nil)

// Recorder returns an observer writing to runID, which must exist.
func (s *Store) Recorder(ctx context.Context, runID string) *Recorder {
	return &Recorder{store: s, ctx: ctx, runID: runID}
}

// ObserveBurst implements engine.Observer.
func (r *Recorder) ObserveBurst(res *engine.StepResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	inserted, err := r.store.WriteBurst(r.ctx, BurstFromStep(r.runID, res))
	if err != nil {
		r.err = err
		return
	}
	if inserted {
		r.written++
	}
}

// Err returns the first write error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Written returns how many bursts were appended.
func (r *Recorder) Written() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}
