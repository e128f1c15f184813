package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/npu/internal/config"
	"github.com/roach88/npu/internal/connectome"
	"github.com/roach88/npu/internal/ir"
)

// Scenario defines a burst-level test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Connectome is a path to a connectome file, relative to the scenario
	// file. Exactly one of Connectome and Network is set.
	Connectome string `yaml:"connectome,omitempty"`

	// Network is an inline connectome.
	Network *connectome.Spec `yaml:"network,omitempty"`

	// Backend selects cpu or parallel. Empty means cpu.
	Backend ir.BackendKind `yaml:"backend,omitempty"`

	// Config overrides the built-in runtime configuration, with the same
	// layout as a config file.
	Config map[string]any `yaml:"config,omitempty"`

	Steps []Step `yaml:"steps"`
}

// Step runs Repeat bursts (default 1), injecting Inject before each.
type Step struct {
	Inject []ir.Injection `yaml:"inject,omitempty"`
	Repeat int            `yaml:"repeat,omitempty"`
	Expect []Assertion    `yaml:"expect,omitempty"`
}

// Assertion is a check against the last burst of a step.
type Assertion struct {
	Type string `yaml:"type"`

	// Neurons lists the ids checked by fires and silent.
	Neurons []ir.NeuronID `yaml:"neurons,omitempty"`

	// Neuron is the id checked by potential, countdown and fire_count.
	Neuron *ir.NeuronID `yaml:"neuron,omitempty"`

	// Value and Epsilon are used by potential. Epsilon defaults to
	// DefaultEpsilon.
	Value   float64 `yaml:"value,omitempty"`
	Epsilon float64 `yaml:"epsilon,omitempty"`

	// Count is used by fired_count, countdown and fire_count.
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertFires      = "fires"
	AssertSilent     = "silent"
	AssertFiredCount = "fired_count"
	AssertPotential  = "potential"
	AssertCountdown  = "countdown"
	AssertFireCount  = "fire_count"
)

// DefaultEpsilon is the potential tolerance when a scenario gives none.
const DefaultEpsilon = 1e-6

// LoadScenario reads and parses a scenario YAML file. A relative
// connectome path is resolved against the scenario file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScenario parses a scenario document, resolving a relative
// connectome path against baseDir. Unknown fields are rejected.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Connectome != "" && !filepath.IsAbs(scenario.Connectome) && baseDir != "" {
		scenario.Connectome = filepath.Join(baseDir, scenario.Connectome)
	}
	scenario.Name = ir.NormalizeName(scenario.Name)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Connectome == "" && s.Network == nil:
		return fmt.Errorf("one of connectome or network is required")
	case s.Connectome != "" && s.Network != nil:
		return fmt.Errorf("connectome and network are mutually exclusive")
	case s.Network != nil:
		if err := s.Network.Validate(); err != nil {
			return fmt.Errorf("network: %w", err)
		}
	default:
		if _, err := os.Stat(s.Connectome); os.IsNotExist(err) {
			return fmt.Errorf("connectome file not found: %s", s.Connectome)
		}
	}

	if _, err := s.backend(); err != nil {
		return err
	}
	if _, err := s.config(); err != nil {
		return err
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if step.Repeat < 0 {
			return fmt.Errorf("steps[%d]: repeat must be non-negative", i)
		}
		for j, a := range step.Expect {
			if err := validateAssertion(&a); err != nil {
				return fmt.Errorf("steps[%d].expect[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("type is required")
	case AssertFires, AssertSilent:
		if len(a.Neurons) == 0 {
			return fmt.Errorf("neurons list is required for %s", a.Type)
		}
	case AssertFiredCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("non-negative count is required for %s", a.Type)
		}
	case AssertPotential:
		if a.Neuron == nil {
			return fmt.Errorf("neuron is required for %s", a.Type)
		}
		if a.Epsilon < 0 {
			return fmt.Errorf("epsilon must be non-negative")
		}
	case AssertCountdown, AssertFireCount:
		if a.Neuron == nil {
			return fmt.Errorf("neuron is required for %s", a.Type)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("non-negative count is required for %s", a.Type)
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func (s *Scenario) backend() (ir.BackendKind, error) {
	if s.Backend == "" {
		return ir.BackendCPU, nil
	}
	kind, err := ir.ParseBackendKind(string(s.Backend))
	if err != nil {
		return "", err
	}
	if kind == ir.BackendAuto {
		return "", fmt.Errorf("backend must be cpu or parallel, not auto")
	}
	return kind, nil
}

// config overlays the scenario's overrides on the built-in defaults.
func (s *Scenario) config() (*config.Config, error) {
	if len(s.Config) == 0 {
		return config.Default(), nil
	}
	data, err := yaml.Marshal(s.Config)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := config.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// network returns the scenario's connectome.
func (s *Scenario) network() (*connectome.Spec, error) {
	if s.Network != nil {
		return s.Network, nil
	}
	return connectome.Load(s.Connectome)
}
