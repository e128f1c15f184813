// Package harness runs burst scenarios against the engine as executable
// contract tests.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	connectome: ../connectomes/chain.yaml   # or an inline network: block
//	backend: cpu                            # cpu or parallel
//	config:                                 # overrides of the runtime config
//	  engine:
//	    failed_roll_resets_count: false
//	steps:
//	  - inject: [{id: 0, potential: 1.5}]
//	    repeat: 3
//	    expect:
//	      - {type: fires, neurons: [0]}
//	      - {type: potential, neuron: 0, value: 0.55, epsilon: 0.001}
//
// Each step runs repeat bursts (default 1), injecting the same batch
// before every one of them. Expectations are checked after the last.
//
// # Assertion Types
//
//   - fires: every listed neuron is in the burst's Fire Queue
//   - silent: no listed neuron is in the burst's Fire Queue
//   - fired_count: the Fire Queue holds exactly count neurons
//   - potential: the neuron's membrane potential is value ± epsilon
//   - countdown: the neuron's refractory countdown equals count
//   - fire_count: the neuron's consecutive fire count equals count
//
// # Deterministic Testing
//
// Every scenario records its bursts into a fresh in-memory store under a
// fixed run id with a deterministic clock, and the trace is read back from
// that store. Identical scenarios produce identical traces on every
// backend, which is what the golden files under testdata/golden pin.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/refractory_exactness.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
