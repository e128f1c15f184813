package store

import (
	"context"
	"fmt"
)

// Comparison is the outcome of replaying one run against another.
type Comparison struct {
	RunA     string `json:"run_a"`
	RunB     string `json:"run_b"`
	Compared int    `json:"compared"`
	Match    bool   `json:"match"`

	// Set when Match is false.
	DivergentBurst uint64 `json:"divergent_burst,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// CompareRuns walks the bursts of two runs in order and reports the first
// burst whose Fire Queue digest differs, or which only one run recorded.
// Two runs of the same connectome and configuration on any backend are
// expected to match.
func (s *Store) CompareRuns(ctx context.Context, runA, runB string) (Comparison, error) {
	cmp := Comparison{RunA: runA, RunB: runB}

	for _, id := range []string{runA, runB} {
		if _, err := s.GetRun(ctx, id); err != nil {
			return cmp, fmt.Errorf("compare runs: %w", err)
		}
	}

	a, err := s.ListBursts(ctx, runA)
	if err != nil {
		return cmp, fmt.Errorf("compare runs: %w", err)
	}
	b, err := s.ListBursts(ctx, runB)
	if err != nil {
		return cmp, fmt.Errorf("compare runs: %w", err)
	}

	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ba, bb := a[i], b[j]
		switch {
		case ba.Burst < bb.Burst:
			return cmp.diverged(ba.Burst, fmt.Sprintf("burst %d recorded only in %s", ba.Burst, runA)), nil
		case bb.Burst < ba.Burst:
			return cmp.diverged(bb.Burst, fmt.Sprintf("burst %d recorded only in %s", bb.Burst, runB)), nil
		case ba.Digest != bb.Digest:
			return cmp.diverged(ba.Burst, fmt.Sprintf("fire queues differ (%d vs %d fired)", ba.Fired, bb.Fired)), nil
		}
		cmp.Compared++
		i++
		j++
	}

	switch {
	case i < len(a):
		return cmp.diverged(a[i].Burst, fmt.Sprintf("%s ends after %d bursts", runB, len(b))), nil
	case j < len(b):
		return cmp.diverged(b[j].Burst, fmt.Sprintf("%s ends after %d bursts", runA, len(a))), nil
	}

	cmp.Match = true
	return cmp, nil
}

func (c Comparison) diverged(burst uint64, reason string) Comparison {
	c.Match = false
	c.DivergentBurst = burst
	c.Reason = reason
	return c
}
