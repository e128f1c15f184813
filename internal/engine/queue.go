package engine

import (
	"sync"

	"github.com/roach88/npu/internal/ir"
)

// injectionQueue buffers sensory input between bursts.
//
// Producers enqueue from any goroutine; the step drains everything queued
// so far in one go, in enqueue order. The queue is unbounded: backpressure
// belongs to the ingestion layer, and the engine never blocks on it.
type injectionQueue struct {
	mu      sync.Mutex
	pending []ir.Injection
	closed  bool
}

func newInjectionQueue() *injectionQueue {
	return &injectionQueue{pending: make([]ir.Injection, 0, 64)}
}

// Enqueue appends a batch. Returns false once the queue is closed.
func (q *injectionQueue) Enqueue(batch []ir.Injection) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.pending = append(q.pending, batch...)
	return true
}

// Drain moves all pending injections into dst and returns it.
func (q *injectionQueue) Drain(dst []ir.Injection) []ir.Injection {
	q.mu.Lock()
	defer q.mu.Unlock()
	dst = append(dst, q.pending...)
	// Reset in place; the backing array is reused by the next batch.
	q.pending = q.pending[:0]
	return dst
}

// Len returns the number of pending injections.
func (q *injectionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close rejects further input. Pending injections stay drainable.
func (q *injectionQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
