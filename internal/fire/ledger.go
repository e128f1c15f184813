package fire

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/npu/internal/ir"
)

var (
	ErrInvalidWindow       = errors.New("fire ledger window must be positive")
	ErrInvalidDepth        = errors.New("fire ledger depth must be positive")
	ErrNonMonotonic        = errors.New("fire ledger burst is not increasing")
	ErrAreaNotTracked      = errors.New("area not tracked by fire ledger")
	ErrEndInFuture         = errors.New("fire ledger window ends after the latest burst")
	ErrDepthExceedsWindow  = errors.New("fire ledger depth exceeds tracked window")
	ErrInsufficientHistory = errors.New("fire ledger has insufficient history")
)

// Frame is the fired set of one area in one burst, ids ascending.
type Frame struct {
	Burst uint64        `json:"burst"`
	IDs   []ir.NeuronID `json:"ids"`
}

type areaHistory struct {
	window int
	frames []Frame
}

func (h *areaHistory) push(f Frame) {
	h.frames = append(h.frames, f)
	if over := len(h.frames) - h.window; over > 0 {
		h.frames = slices.Delete(h.frames, 0, over)
	}
}

// FireLedger keeps a dense per-area history of fired sets: every tracked
// area gets a frame for every burst, empty when it was silent, and bursts
// skipped between two Record calls are filled with empty frames.
//
// Safe for concurrent use; the engine records under its step lock while
// consumers read between steps.
type FireLedger struct {
	mu      sync.RWMutex
	tracked map[ir.AreaID]*areaHistory
	current uint64
}

func NewFireLedger() *FireLedger {
	return &FireLedger{tracked: make(map[ir.AreaID]*areaHistory)}
}

// Track starts (or resizes) the history of an area. Shrinking discards
// the oldest frames.
func (l *FireLedger) Track(area ir.AreaID, window int) error {
	if window <= 0 {
		return ErrInvalidWindow
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.tracked[area]; ok {
		h.window = window
		if over := len(h.frames) - window; over > 0 {
			h.frames = slices.Delete(h.frames, 0, over)
		}
		return nil
	}
	l.tracked[area] = &areaHistory{window: window}
	return nil
}

// Untrack drops an area's history. It reports whether the area was tracked.
func (l *FireLedger) Untrack(area ir.AreaID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.tracked[area]
	delete(l.tracked, area)
	return ok
}

// Window returns the tracked window size of an area.
func (l *FireLedger) Window(area ir.AreaID) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.tracked[area]
	if !ok {
		return 0, fmt.Errorf("%w: area %d", ErrAreaNotTracked, area)
	}
	return h.window, nil
}

// Current is the last recorded burst, 0 before the first Record.
func (l *FireLedger) Current() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Record archives the fired set of burst. Bursts must strictly increase.
func (l *FireLedger) Record(burst uint64, q *FireQueue) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current != 0 && burst <= l.current {
		return fmt.Errorf("%w: current %d, requested %d", ErrNonMonotonic, l.current, burst)
	}
	if len(l.tracked) == 0 {
		l.current = burst
		return nil
	}

	fired := make(map[ir.AreaID][]ir.NeuronID, len(l.tracked))
	if q != nil {
		for _, n := range q.Neurons {
			if _, ok := l.tracked[n.Area]; ok {
				fired[n.Area] = append(fired[n.Area], n.ID)
			}
		}
	}

	if l.current > 0 && burst > l.current+1 {
		for missing := l.current + 1; missing < burst; missing++ {
			for _, h := range l.tracked {
				h.push(Frame{Burst: missing})
			}
		}
	}

	for area, h := range l.tracked {
		ids := fired[area]
		slices.Sort(ids)
		h.push(Frame{Burst: burst, IDs: ids})
	}
	l.current = burst
	return nil
}

// History returns exactly depth frames of area ending at burst end, oldest
// first.
func (l *FireLedger) History(area ir.AreaID, end uint64, depth int) ([]Frame, error) {
	if depth <= 0 {
		return nil, ErrInvalidDepth
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	if end > l.current {
		return nil, fmt.Errorf("%w: end %d, current %d", ErrEndInFuture, end, l.current)
	}
	h, ok := l.tracked[area]
	if !ok {
		return nil, fmt.Errorf("%w: area %d", ErrAreaNotTracked, area)
	}
	if depth > h.window {
		return nil, fmt.Errorf("%w: depth %d, window %d", ErrDepthExceedsWindow, depth, h.window)
	}
	if len(h.frames) == 0 {
		return nil, fmt.Errorf("%w: area %d has no frames", ErrInsufficientHistory, area)
	}

	var start uint64
	if end+1 > uint64(depth) {
		start = end + 1 - uint64(depth)
	}
	haveStart, haveEnd := h.frames[0].Burst, h.frames[len(h.frames)-1].Burst
	if start < haveStart || end > haveEnd {
		return nil, fmt.Errorf("%w: want [%d,%d], have [%d,%d]", ErrInsufficientHistory, start, end, haveStart, haveEnd)
	}

	i := int(start - haveStart)
	out := make([]Frame, 0, depth)
	for _, f := range h.frames[i : i+depth] {
		out = append(out, Frame{Burst: f.Burst, IDs: slices.Clone(f.IDs)})
	}
	return out, nil
}
