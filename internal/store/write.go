package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/npu/internal/engine"
	"github.com/roach88/npu/internal/ir"
)

// ErrRunNotFound is returned when a run id has no runs row.
var ErrRunNotFound = errors.New("run not found")

// RunIDGenerator produces run ids.
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run ids, so runs listed
// by id come out in creation order.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Run identifies one engine session.
type Run struct {
	ID             string         `json:"id"`
	StartedAt      time.Time      `json:"started_at"`
	Precision      ir.Precision   `json:"precision"`
	Backend        ir.BackendKind `json:"backend"`
	ConfigHash     string         `json:"config_hash"`
	ConnectomeHash string         `json:"connectome_hash"`
	EngineVersion  string         `json:"engine_version"`
}

// Burst is one recorded burst of a run.
type Burst struct {
	RunID      string            `json:"run_id"`
	Burst      uint64            `json:"burst"`
	Fired      int               `json:"fired"`
	Processed  int               `json:"processed"`
	Refractory int               `json:"refractory"`
	Synapses   int               `json:"synapses"`
	Duration   time.Duration     `json:"duration"`
	Digest     string            `json:"digest"`
	Firings    []ir.FiringNeuron `json:"firings,omitempty"`
}

// BurstFromStep converts an engine step result into a ledger row.
func BurstFromStep(runID string, r *engine.StepResult) Burst {
	return Burst{
		RunID:      runID,
		Burst:      r.Burst,
		Fired:      len(r.Fired),
		Processed:  r.Dynamics.Processed,
		Refractory: r.Dynamics.Refractory,
		Synapses:   r.Propagation.Synapses,
		Duration:   r.Timing.Total,
		Digest:     ir.FireQueueDigest(r.Burst, r.Fired),
		Firings:    r.Fired,
	}
}

// CreateRun inserts a runs row. An empty EngineVersion is filled with
// ir.EngineVersion.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("create run: empty run id")
	}
	if run.EngineVersion == "" {
		run.EngineVersion = ir.EngineVersion
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, started_at, precision, backend, config_hash, connectome_hash, engine_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		string(run.Precision),
		string(run.Backend),
		run.ConfigHash,
		run.ConnectomeHash,
		run.EngineVersion,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// WriteBurst appends one burst and its firings in a single transaction.
// Uses ON CONFLICT(run_id, burst) DO NOTHING for idempotency: if the
// burst already exists its firings are left as they are and inserted is
// false.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) WriteBurst(ctx context.Context, b Burst) (inserted bool, err error) {
	if b.Digest == "" {
		b.Digest = ir.FireQueueDigest(b.Burst, b.Firings)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("write burst: begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO bursts
		(run_id, burst, fired, processed, refractory, synapses, duration_us, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, burst) DO NOTHING
	`,
		b.RunID,
		b.Burst,
		b.Fired,
		b.Processed,
		b.Refractory,
		b.Synapses,
		b.Duration.Microseconds(),
		b.Digest,
	)
	if err != nil {
		return false, fmt.Errorf("write burst: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write burst: rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	if len(b.Firings) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO firings
			(run_id, burst, neuron_id, area_id, x, y, z, potential)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return false, fmt.Errorf("write burst: prepare firings: %w", err)
		}
		defer stmt.Close()

		for _, f := range b.Firings {
			if _, err := stmt.ExecContext(ctx, b.RunID, b.Burst, uint32(f.ID), uint32(f.Area), f.X, f.Y, f.Z, f.Potential); err != nil {
				return false, fmt.Errorf("write burst: firing %d: %w", f.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("write burst: commit: %w", err)
	}
	return true, nil
}
