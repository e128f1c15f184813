package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/npu/internal/ir"
)

// GetRun returns one run by id.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, precision, backend, config_hash, connectome_hash, engine_version
		FROM runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns every run ordered by id. UUIDv7 ids sort by creation
// time.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, precision, backend, config_hash, connectome_hash, engine_version
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ListBursts returns a run's bursts in burst order, without firings.
//
// Returns an empty slice (not nil) if the run has no bursts.
func (s *Store) ListBursts(ctx context.Context, runID string) ([]Burst, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, burst, fired, processed, refractory, synapses, duration_us, digest
		FROM bursts
		WHERE run_id = ?
		ORDER BY burst ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query bursts: %w", err)
	}
	defer rows.Close()

	bursts := []Burst{}
	for rows.Next() {
		var (
			b  Burst
			us int64
		)
		if err := rows.Scan(&b.RunID, &b.Burst, &b.Fired, &b.Processed, &b.Refractory, &b.Synapses, &us, &b.Digest); err != nil {
			return nil, fmt.Errorf("scan burst: %w", err)
		}
		b.Duration = time.Duration(us) * time.Microsecond
		bursts = append(bursts, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bursts: %w", err)
	}
	return bursts, nil
}

// ReadFirings returns the fired neurons of one burst, ordered by neuron id.
//
// Returns an empty slice (not nil) for a silent or unknown burst.
func (s *Store) ReadFirings(ctx context.Context, runID string, burst uint64) ([]ir.FiringNeuron, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT neuron_id, area_id, x, y, z, potential
		FROM firings
		WHERE run_id = ? AND burst = ?
		ORDER BY neuron_id ASC
	`, runID, burst)
	if err != nil {
		return nil, fmt.Errorf("query firings: %w", err)
	}
	return scanFirings(rows)
}

// ReadAreaFirings returns an area's firings over the inclusive burst
// range [from, to], ordered by burst then neuron id.
func (s *Store) ReadAreaFirings(ctx context.Context, runID string, area ir.AreaID, from, to uint64) (map[uint64][]ir.FiringNeuron, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT burst, neuron_id, area_id, x, y, z, potential
		FROM firings
		WHERE run_id = ? AND area_id = ? AND burst BETWEEN ? AND ?
		ORDER BY burst ASC, neuron_id ASC
	`, runID, uint32(area), from, to)
	if err != nil {
		return nil, fmt.Errorf("query area firings: %w", err)
	}
	defer rows.Close()

	out := make(map[uint64][]ir.FiringNeuron)
	for rows.Next() {
		var (
			burst uint64
			f     ir.FiringNeuron
		)
		if err := rows.Scan(&burst, &f.ID, &f.Area, &f.X, &f.Y, &f.Z, &f.Potential); err != nil {
			return nil, fmt.Errorf("scan firing: %w", err)
		}
		out[burst] = append(out[burst], f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate firings: %w", err)
	}
	return out, nil
}

func scanFirings(rows *sql.Rows) ([]ir.FiringNeuron, error) {
	defer rows.Close()

	firings := []ir.FiringNeuron{}
	for rows.Next() {
		var f ir.FiringNeuron
		if err := rows.Scan(&f.ID, &f.Area, &f.X, &f.Y, &f.Z, &f.Potential); err != nil {
			return nil, fmt.Errorf("scan firing: %w", err)
		}
		firings = append(firings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate firings: %w", err)
	}
	return firings, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run                 Run
		started, prec, kind string
	)
	if err := row.Scan(&run.ID, &started, &prec, &kind, &run.ConfigHash, &run.ConnectomeHash, &run.EngineVersion); err != nil {
		return Run{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return Run{}, fmt.Errorf("parse started_at %q: %w", started, err)
	}
	run.StartedAt = t
	run.Precision = ir.Precision(prec)
	run.Backend = ir.BackendKind(kind)
	return run, nil
}
