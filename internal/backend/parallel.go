package backend

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/roach88/npu/internal/fire"
	"github.com/roach88/npu/internal/ir"
	"github.com/roach88/npu/internal/numeric"
)

// ParallelOptions tunes the accelerated backend.
type ParallelOptions struct {
	// Workers is the pool size; 0 uses GOMAXPROCS.
	Workers int
	// Threshold is the minimum item count dispatched to the pool.
	Threshold int
	// MinTableCapacity raises the source hash table's minimum size.
	MinTableCapacity int
	// MemoryBudget caps the packed buffer size in bytes; 0 is unlimited.
	MemoryBudget int64
}

// Per-source flags stored alongside the table entry.
const (
	flagDivide uint8 = 1 << iota
	flagMPDriven
)

// contribSlot is one gathered synapse contribution. target is
// ir.InvalidNeuron when the synapse points at a dead neuron.
type contribSlot struct {
	target ir.NeuronID
	value  float32
}

// targetSum is one shard's accumulated FCL entry. first is the gather
// position of the target's first contribution.
type targetSum struct {
	first  int
	target ir.NeuronID
	sum    float32
}

type chunkResult struct {
	processed  int
	refractory int
	fired      []ir.FiringNeuron
}

// Parallel is the accelerated backend: device-style packed buffers, a
// source hash table and a persistent worker pool.
type Parallel[T numeric.Value[T]] struct {
	net  *Network[T]
	dyn  Dynamics
	opts ParallelOptions
	pool *workerPool

	closed bool

	// Persistent buffers, rebuilt by Initialize.
	table     *sourceTable
	synTarget []ir.NeuronID
	synWeight []uint8
	synPSP    []uint8
	synType   []ir.SynapseType

	// Per-step scratch, reused across bursts.
	lookups []sourceEntry
	offsets []int
	contrib []contribSlot
	buckets [][]int
	shards  [][]targetSum
	merged  []targetSum
	results []chunkResult
}

// NewParallel creates an accelerated backend. Workers start lazily on the
// first dispatch that crosses the threshold.
func NewParallel[T numeric.Value[T]](dyn Dynamics, opts ParallelOptions) *Parallel[T] {
	return &Parallel[T]{
		dyn:  dyn,
		opts: opts,
		pool: newWorkerPool(opts.Workers, opts.Threshold),
	}
}

func (p *Parallel[T]) Kind() ir.BackendKind { return ir.BackendParallel }

// Initialize packs every valid synapse, grouped by source in ascending
// source order and slot order within a source, and indexes the groups in
// the source hash table.
func (p *Parallel[T]) Initialize(net *Network[T]) error {
	if p.closed {
		return ErrClosed
	}
	if net == nil || net.Neurons == nil || net.Synapses == nil || net.Index == nil {
		return fmt.Errorf("parallel backend: incomplete network")
	}

	syn := net.Synapses
	sources := net.Index.Sources()
	total := net.Index.Synapses()

	table := newSourceTable(len(sources), p.opts.MinTableCapacity)
	need := int64(total)*7 + int64(table.bytes())
	if p.opts.MemoryBudget > 0 && need > p.opts.MemoryBudget {
		return fmt.Errorf("%w: need %d bytes, budget %d", ErrInsufficientMemory, need, p.opts.MemoryBudget)
	}

	target := make([]ir.NeuronID, 0, total)
	weight := make([]uint8, 0, total)
	psp := make([]uint8, 0, total)
	typ := make([]ir.SynapseType, 0, total)

	for _, src := range sources {
		start := uint32(len(target))
		for _, s := range net.Index.Outgoing(src) {
			if !syn.Valid[s] {
				continue
			}
			target = append(target, syn.Target[s])
			weight = append(weight, syn.Weight[s])
			psp = append(psp, syn.PSP[s])
			typ = append(typ, syn.Type[s])
		}
		count := uint32(len(target)) - start
		if count == 0 {
			continue
		}

		var f uint8 = flagDivide
		if int(src) < net.Neurons.Len() && net.Areas != nil {
			if a, ok := net.Areas.Get(net.Neurons.Area[src]); ok {
				if a.PSPUniform {
					f &^= flagDivide
				}
				if a.MPDrivenPSP {
					f |= flagMPDriven
				}
			}
		}
		table.insert(uint32(src), sourceEntry{start: start, count: count, flags: f})
	}

	p.net = net
	p.table = table
	p.synTarget, p.synWeight, p.synPSP, p.synType = target, weight, psp, typ
	return nil
}

func grow[S ~[]E, E any](s S, n int) S {
	if cap(s) < n {
		return make(S, n)
	}
	return s[:n]
}

func (p *Parallel[T]) ready(ctx context.Context) error {
	if p.closed {
		return ErrClosed
	}
	if p.net == nil {
		return ErrNotInitialized
	}
	return ctx.Err()
}

// Propagate runs in three phases: table lookups, contribution gather
// into a flat buffer, and a reduction sharded by target. Each target is
// summed by one shard in gather order, then entries enter the FCL in order
// of first appearance, which is the CPU backend's insertion order.
func (p *Parallel[T]) Propagate(ctx context.Context, fired []ir.FiringNeuron, fcl *fire.FCL) (PropagationStats, error) {
	var stats PropagationStats
	if err := p.ready(ctx); err != nil {
		return stats, err
	}
	n := len(fired)
	if n == 0 {
		return stats, nil
	}
	neurons := p.net.Neurons

	p.lookups = grow(p.lookups, n)
	p.pool.run(n, func(_, start, end int) {
		for i := start; i < end; i++ {
			id := fired[i].ID
			e, ok := p.table.lookup(uint32(id))
			if !ok || !neurons.IsValid(id) {
				e = sourceEntry{}
			}
			p.lookups[i] = e
		}
	})

	p.offsets = grow(p.offsets, n)
	total := 0
	for i := range n {
		p.offsets[i] = total
		total += int(p.lookups[i].count)
	}
	if total == 0 {
		return stats, nil
	}
	stats.Synapses = total

	p.contrib = grow(p.contrib, total)
	p.pool.run(n, func(_, start, end int) {
		for i := start; i < end; i++ {
			src := p.lookups[i]
			if src.count == 0 {
				continue
			}
			override := float32(-1)
			if src.flags&flagMPDriven != 0 {
				override = mpDrivenPSP(fired[i].Potential)
			}
			divisor := 1
			if src.flags&flagDivide != 0 {
				divisor = int(src.count)
			}
			out := p.contrib[p.offsets[i] : p.offsets[i]+int(src.count)]
			for j := range out {
				k := int(src.start) + j
				t := p.synTarget[k]
				if !neurons.IsValid(t) {
					out[j] = contribSlot{target: ir.InvalidNeuron}
					continue
				}
				psp := override
				if psp < 0 {
					psp = float32(p.synPSP[k])
				}
				out[j] = contribSlot{target: t, value: contribution(p.synWeight[k], psp, p.synType[k], divisor)}
			}
		}
	})

	numShards := p.pool.numWorkers
	p.buckets = grow(p.buckets, numShards)
	p.shards = grow(p.shards, numShards)
	for s := range p.buckets {
		p.buckets[s] = p.buckets[s][:0]
	}
	for k, c := range p.contrib {
		if c.target == ir.InvalidNeuron {
			continue
		}
		s := int(c.target) % numShards
		p.buckets[s] = append(p.buckets[s], k)
	}

	p.pool.each(numShards, total >= p.pool.threshold, func(s int) {
		sums := p.shards[s][:0]
		pos := make(map[ir.NeuronID]int, len(p.buckets[s]))
		for _, k := range p.buckets[s] {
			c := p.contrib[k]
			if i, ok := pos[c.target]; ok {
				sums[i].sum += c.value
				continue
			}
			pos[c.target] = len(sums)
			sums = append(sums, targetSum{first: k, target: c.target, sum: c.value})
		}
		p.shards[s] = sums
	})

	p.merged = p.merged[:0]
	for _, sums := range p.shards {
		p.merged = append(p.merged, sums...)
	}
	slices.SortFunc(p.merged, func(a, b targetSum) int { return cmp.Compare(a.first, b.first) })
	for _, ts := range p.merged {
		if err := fcl.Add(ts.target, ts.sum); err != nil {
			return stats, fmt.Errorf("propagate: %w", err)
		}
	}
	return stats, nil
}

// AdvanceDynamics splits the candidates into contiguous chunks, one per
// worker. Chunks cover ascending id ranges, so concatenating their fired
// records in chunk order yields the CPU backend's queue order.
func (p *Parallel[T]) AdvanceDynamics(ctx context.Context, fcl *fire.FCL, burst uint64, queue *fire.FireQueue) (DynamicsResult, error) {
	var res DynamicsResult
	if err := p.ready(ctx); err != nil {
		return res, err
	}
	ids := candidates(p.net.Neurons, fcl, &p.dyn)
	n := len(ids)
	if n == 0 {
		return res, nil
	}

	p.results = grow(p.results, p.pool.chunks(n))
	p.pool.run(n, func(idx, start, end int) {
		r := &p.results[idx]
		r.processed, r.refractory = 0, 0
		r.fired = r.fired[:0]
		for i := start; i < end; i++ {
			v, _ := fcl.Get(ids[i])
			out := processNeuron(p.net.Neurons, ids[i], v, burst, &p.dyn)
			if !out.processed {
				continue
			}
			r.processed++
			if out.refractory {
				r.refractory++
			}
			if out.fired {
				r.fired = append(r.fired, out.record)
			}
		}
	})

	var pushErr error
	for i := range p.results {
		r := &p.results[i]
		res.Processed += r.processed
		res.Refractory += r.refractory
		res.Fired += len(r.fired)
		for _, rec := range r.fired {
			if err := queue.Push(rec); err != nil && pushErr == nil {
				pushErr = fmt.Errorf("dynamics burst %d: %w", burst, err)
			}
		}
	}
	return res, pushErr
}

// Close stops the worker pool and drops the packed buffers.
func (p *Parallel[T]) Close() error {
	if p.closed {
		return nil
	}
	p.pool.stop()
	p.closed = true
	p.net = nil
	p.table = nil
	return nil
}

// TableCapacity exposes the source table size for diagnostics.
func (p *Parallel[T]) TableCapacity() int {
	if p.table == nil {
		return 0
	}
	return p.table.capacity()
}
