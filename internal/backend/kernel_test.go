package backend

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/npu/internal/fire"
	"github.com/roach88/npu/internal/ir"
	"github.com/roach88/npu/internal/numeric"
	"github.com/roach88/npu/internal/rng"
	"github.com/roach88/npu/internal/state"
	"github.com/roach88/npu/internal/testutil"
)

func TestContribution(t *testing.T) {
	assert.Equal(t, float32(255*255), contribution(255, 255, ir.Excitatory, 1))
	assert.Equal(t, float32(-128*255), contribution(128, 255, ir.Inhibitory, 1))
	assert.Equal(t, float32(50), contribution(10, 10, ir.Excitatory, 2))
	assert.Equal(t, float32(0), contribution(0, 255, ir.Excitatory, 1))
}

func TestMPDrivenPSP(t *testing.T) {
	assert.Equal(t, float32(0), mpDrivenPSP(-3))
	assert.Equal(t, float32(0), mpDrivenPSP(float32(math.NaN())))
	assert.Equal(t, float32(3), mpDrivenPSP(3.7))
	assert.Equal(t, float32(255), mpDrivenPSP(1e9))
}

func TestDynamics_RefractoryExactness(t *testing.T) {
	net := testutil.NewNetwork[numeric.Float32](1, 0)
	p := testutil.Neuron(1.0)
	p.RefractoryPeriod = 5
	id := net.AddNeuron(t, p)
	s := newStepper[numeric.Float32](t, NewCPU[numeric.Float32](Dynamics{}), net)

	require.Equal(t, []ir.NeuronID{id}, s.step(inject(id, 1.5)), "step 0 fires")
	st := net.Neurons.State(id)
	assert.Equal(t, float32(0), st.Potential)
	assert.Equal(t, uint16(5), st.RefractoryCountdown)

	for step, want := range []uint16{4, 3, 2, 1, 0} {
		assert.Empty(t, s.step(inject(id, 1.5)), "step %d must not fire", step+1)
		assert.Equal(t, want, net.Neurons.State(id).RefractoryCountdown)
		assert.Equal(t, float32(0), net.Neurons.State(id).Potential, "no accumulation while refractory")
	}

	assert.Equal(t, []ir.NeuronID{id}, s.step(inject(id, 1.5)), "step 6 fires again")
}

func TestDynamics_LeakFormula(t *testing.T) {
	net := testutil.NewNetwork[numeric.Float32](1, 0)
	id := net.AddNeuron(t, state.NeuronParams{Threshold: 10, Leak: 0.5, Resting: 0, Potential: 1.0, Excitability: 1})
	s := newStepper[numeric.Float32](t, NewCPU[numeric.Float32](Dynamics{}), net)

	assert.Empty(t, s.step(inject(id, 0.1)))
	assert.InDelta(t, 0.55, net.Neurons.State(id).Potential, 1e-3)
}

func TestDynamics_NoLeakOnLimitBlock(t *testing.T) {
	net := testutil.NewNetwork[numeric.Float32](1, 0)
	id := net.AddNeuron(t, state.NeuronParams{Threshold: 1, Leak: 0.5, Excitability: 1, ConsecutiveFireLimit: 1})
	s := newStepper[numeric.Float32](t, NewCPU[numeric.Float32](Dynamics{}), net)

	require.Len(t, s.step(inject(id, 1.5)), 1)
	assert.Equal(t, uint16(1), net.Neurons.State(id).ConsecutiveFireCount)

	assert.Empty(t, s.step(inject(id, 1.5)), "blocked by the consecutive fire limit")
	st := net.Neurons.State(id)
	assert.Equal(t, float32(1.5), st.Potential, "potential kept at its pre-check value")
	assert.Equal(t, uint16(0), st.ConsecutiveFireCount)

	assert.Len(t, s.step(inject(id, 0)), 1, "count reset lets it fire again")
}

func TestDynamics_ExtendedRefractory(t *testing.T) {
	net := testutil.NewNetwork[numeric.Float32](1, 0)
	id := net.AddNeuron(t, state.NeuronParams{
		Threshold: 1, Excitability: 1,
		RefractoryPeriod: 2, SnoozePeriod: 3, ConsecutiveFireLimit: 2,
	})
	s := newStepper[numeric.Float32](t, NewCPU[numeric.Float32](Dynamics{}), net)
	drive := inject(id, 2)

	require.Len(t, s.step(drive), 1)
	assert.Equal(t, uint16(2), net.Neurons.State(id).RefractoryCountdown)
	assert.Empty(t, s.step(drive))
	assert.Empty(t, s.step(drive))
	assert.Equal(t, uint16(1), net.Neurons.State(id).ConsecutiveFireCount, "below the limit the count survives the countdown")

	require.Len(t, s.step(drive), 1, "second consecutive fire hits the limit")
	st := net.Neurons.State(id)
	assert.Equal(t, uint16(5), st.RefractoryCountdown, "period plus snooze")
	assert.Equal(t, uint16(2), st.ConsecutiveFireCount)

	for i := 0; i < 4; i++ {
		assert.Empty(t, s.step(drive))
		assert.Equal(t, uint16(2), net.Neurons.State(id).ConsecutiveFireCount, "count held while countdown runs")
	}
	assert.Empty(t, s.step(drive))
	st = net.Neurons.State(id)
	assert.Equal(t, uint16(0), st.RefractoryCountdown)
	assert.Equal(t, uint16(0), st.ConsecutiveFireCount, "count resets when the countdown reaches zero")

	assert.Len(t, s.step(drive), 1)
}

func TestDynamics_EmptyInput(t *testing.T) {
	net := testutil.NewNetwork[numeric.Float32](4, 4)
	ids := net.AddNeurons(t, 4, testutil.Neuron(1))
	net.Connect(t, ids[0], ids[1], 10, 10, ir.Excitatory)
	net.Reindex()

	for _, b := range []Backend[numeric.Float32]{
		NewCPU[numeric.Float32](Dynamics{}),
		NewParallel[numeric.Float32](Dynamics{}, ParallelOptions{Workers: 2, Threshold: 1}),
	} {
		t.Run(string(b.Kind()), func(t *testing.T) {
			require.NoError(t, b.Initialize(asNetwork(net)))
			defer b.Close()
			fcl := fire.NewFCL(0, fire.PolicyReject)

			ps, err := b.Propagate(context.Background(), nil, fcl)
			require.NoError(t, err)
			assert.Equal(t, 0, ps.Synapses)
			assert.Equal(t, 0, fcl.Len())

			q := fire.NewFireQueue(0, fire.PolicyReject)
			dr, err := b.AdvanceDynamics(context.Background(), fcl, 1, q)
			require.NoError(t, err)
			assert.Equal(t, DynamicsResult{}, dr)
			assert.Equal(t, 0, q.Len())
		})
	}
}

func TestDynamics_SaturationSafety(t *testing.T) {
	net := testutil.NewNetwork[numeric.Float32](2, 0)
	hot := net.AddNeuron(t, state.NeuronParams{Threshold: 3e38, Leak: 0.999, Potential: 1000, Excitability: 1})
	huge := net.AddNeuron(t, state.NeuronParams{Threshold: 1e30, Potential: 3e38, Excitability: 0})
	s := newStepper[numeric.Float32](t, NewCPU[numeric.Float32](Dynamics{}), net)

	s.step(inject(hot, 0), inject(huge, 3e38))
	for _, id := range []ir.NeuronID{hot, huge} {
		v := float64(net.Neurons.State(id).Potential)
		assert.False(t, math.IsNaN(v), "neuron %d", id)
		assert.False(t, math.IsInf(v, 0), "neuron %d", id)
	}
	assert.InDelta(t, 1.0, net.Neurons.State(hot).Potential, 1e-2)
	assert.Equal(t, float32(math.MaxFloat32), net.Neurons.State(huge).Potential)
}

func TestDynamics_Excitability(t *testing.T) {
	net := testutil.NewNetwork[numeric.Float32](2, 0)
	never := net.AddNeuron(t, state.NeuronParams{Threshold: 1, Excitability: 0})
	half := net.AddNeuron(t, state.NeuronParams{Threshold: 1, Excitability: 0.5})
	s := newStepper[numeric.Float32](t, NewCPU[numeric.Float32](Dynamics{}), net)

	for i := 0; i < 50; i++ {
		fired := s.step(inject(never, 5), inject(half, 5))
		assert.NotContains(t, fired, never)
		want := rng.Excitability(uint32(half), s.burst) < 0.5
		assert.Equal(t, want, len(fired) == 1, "burst %d", s.burst)
	}
}

func TestDynamics_FailedRollLeavesCount(t *testing.T) {
	// find a burst whose roll fails for neuron 0 at excitability 0.5
	var burst uint64
	for burst = 1; rng.Excitability(0, burst) < 0.5; burst++ {
	}

	for _, resets := range []bool{false, true} {
		net := testutil.NewNetwork[numeric.Float32](1, 0)
		id := net.AddNeuron(t, state.NeuronParams{Threshold: 1, Leak: 0.5, Excitability: 0.5, ConsecutiveFireLimit: 3})
		net.Neurons.ConsecutiveFireCount[id] = 1

		d := Dynamics{FailedRollResetsCount: resets}
		out := processNeuron(net.Neurons, id, 2, burst, &d)
		assert.True(t, out.processed)
		assert.False(t, out.fired)

		st := net.Neurons.State(id)
		assert.InDelta(t, 1.0, st.Potential, 1e-6, "leak still applies after a failed roll")
		if resets {
			assert.Equal(t, uint16(0), st.ConsecutiveFireCount)
		} else {
			assert.Equal(t, uint16(1), st.ConsecutiveFireCount)
		}
	}
}

func TestDynamics_BelowThresholdResetsCount(t *testing.T) {
	net := testutil.NewNetwork[numeric.Float32](1, 0)
	id := net.AddNeuron(t, state.NeuronParams{Threshold: 10, Excitability: 1, ConsecutiveFireLimit: 3})
	net.Neurons.ConsecutiveFireCount[id] = 2

	out := processNeuron(net.Neurons, id, 1, 1, &Dynamics{})
	assert.False(t, out.fired)
	assert.Equal(t, uint16(0), net.Neurons.State(id).ConsecutiveFireCount)
}

func TestDynamics_ThresholdLimitWindow(t *testing.T) {
	net := testutil.NewNetwork[numeric.Float32](1, 0)
	id := net.AddNeuron(t, state.NeuronParams{Threshold: 1, ThresholdLimit: 2, Leak: 1, Excitability: 1})

	out := processNeuron(net.Neurons, id, 3, 1, &Dynamics{})
	assert.False(t, out.fired, "above the window does not fire")
	assert.Equal(t, float32(0), net.Neurons.State(id).Potential, "and leaks")

	out = processNeuron(net.Neurons, id, 1.5, 2, &Dynamics{})
	assert.True(t, out.fired)
	assert.Equal(t, float32(1.5), out.record.Potential)
}

func TestDynamics_InvalidAndOutOfRangeSkipped(t *testing.T) {
	net := testutil.NewNetwork[numeric.Float32](2, 0)
	id := net.AddNeuron(t, testutil.Neuron(1))
	net.Neurons.Invalidate(id)

	assert.False(t, processNeuron(net.Neurons, id, 5, 1, &Dynamics{}).processed)
	assert.False(t, processNeuron(net.Neurons, 1, 5, 1, &Dynamics{}).processed)
	assert.False(t, processNeuron(net.Neurons, 999, 5, 1, &Dynamics{}).processed)
}

func TestDynamics_FiringRecord(t *testing.T) {
	net := testutil.NewNetwork[numeric.Float32](1, 0)
	p := testutil.Neuron(1)
	p.Area = 7
	p.Coord = ir.Coord{X: 1, Y: 2, Z: 3}
	p.Potential = 0.5
	id := net.AddNeuron(t, p)

	out := processNeuron(net.Neurons, id, 0.75, 1, &Dynamics{})
	require.True(t, out.fired)
	assert.Equal(t, ir.FiringNeuron{ID: id, Potential: 1.25, Area: 7, X: 1, Y: 2, Z: 3}, out.record)
	assert.False(t, out.refractory, "zero period leaves the neuron ready")
}

func TestDynamics_ScanAllDecaysIdleNeurons(t *testing.T) {
	net := testutil.NewNetwork[numeric.Float32](2, 0)
	a := net.AddNeuron(t, state.NeuronParams{Threshold: 10, Leak: 0.5, Potential: 4, Excitability: 1})
	b := net.AddNeuron(t, state.NeuronParams{Threshold: 10, Leak: 0.5, Potential: 4, Excitability: 1})

	s := newStepper[numeric.Float32](t, NewCPU[numeric.Float32](Dynamics{ScanAll: true}), net)
	s.step()
	assert.Equal(t, 2, s.last.Dynamics.Processed)
	assert.Equal(t, float32(2), net.Neurons.State(a).Potential)
	assert.Equal(t, float32(2), net.Neurons.State(b).Potential)
}

func TestDynamics_Int8Precision(t *testing.T) {
	net := testutil.NewNetwork[numeric.Int8](1, 0)
	p := testutil.Neuron(10)
	p.RefractoryPeriod = 1
	id := net.AddNeuron(t, p)
	s := newStepper[numeric.Int8](t, NewCPU[numeric.Int8](Dynamics{}), net)

	assert.Empty(t, s.step(inject(id, 6)))
	assert.Len(t, s.step(inject(id, 6)), 1, "accumulates across bursts in quantized form")
	assert.InDelta(t, 0, net.Neurons.State(id).Potential, float64(numeric.Int8Resolution))
}
