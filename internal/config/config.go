// Package config loads runtime configuration: built-in defaults overlaid
// by a user YAML file, checked against a CUE schema before use.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/npu/internal/backend"
	"github.com/roach88/npu/internal/engine"
	"github.com/roach88/npu/internal/fire"
	"github.com/roach88/npu/internal/ir"
	"github.com/roach88/npu/internal/rng"
)

//go:embed defaults.yaml
var defaultsYAML []byte

//go:embed schema.cue
var schemaCUE string

// Config is the full runtime configuration.
type Config struct {
	Engine    EngineConfig    `yaml:"engine" json:"engine"`
	Backend   backend.Config  `yaml:"backend" json:"backend"`
	Dynamics  DynamicsConfig  `yaml:"dynamics" json:"dynamics"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
}

// EngineConfig configures the burst engine.
type EngineConfig struct {
	Precision             string  `yaml:"precision" json:"precision"`
	BurstHz               float64 `yaml:"burst_hz" json:"burst_hz"`
	MaxBursts             int     `yaml:"max_bursts" json:"max_bursts"`
	FCLCapacity           int     `yaml:"fcl_capacity" json:"fcl_capacity"`
	FireQueueCapacity     int     `yaml:"fire_queue_capacity" json:"fire_queue_capacity"`
	OverflowPolicy        string  `yaml:"overflow_policy" json:"overflow_policy"`
	LedgerWindow          int     `yaml:"ledger_window" json:"ledger_window"`
	FailedRollResetsCount bool    `yaml:"failed_roll_resets_count" json:"failed_roll_resets_count"`
	ScanAll               bool    `yaml:"scan_all" json:"scan_all"`
}

// DynamicsConfig configures the neuron state machine.
type DynamicsConfig struct {
	RNG string `yaml:"rng" json:"rng"`
}

// StoreConfig locates the burst ledger database. An empty path disables
// recording.
type StoreConfig struct {
	Path string `yaml:"path" json:"path"`
}

// TelemetryConfig locates the per-burst CSV (an empty path disables it)
// and sets the fire queue sampling rate.
type TelemetryConfig struct {
	CSV string `yaml:"csv" json:"csv"`
	// SampleHz rate-limits fire queue samples for visualization; 0 disables.
	SampleHz float64 `yaml:"sample_hz" json:"sample_hz"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var c Config
	if err := yaml.Unmarshal(defaultsYAML, &c); err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return &c
}

// Load reads a user file over the defaults and validates the result. An
// empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		c := Default()
		return c, c.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse overlays a YAML document on the defaults and validates the
// result. Keys absent from the document keep their default. Unknown keys
// are rejected.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ValidationError is one schema violation.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks c against the embedded CUE schema. It reports every
// violation, joined.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// formatCUEError flattens CUE's error list into ValidationErrors keyed by
// field path.
func formatCUEError(err error) error {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return err
	}
	errs := make([]error, 0, len(list))
	for _, e := range list {
		format, args := e.Msg()
		errs = append(errs, ValidationError{
			Field:   strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		})
	}
	return fmt.Errorf("invalid config: %w", errors.Join(errs...))
}

// Precision returns the configured membrane representation.
func (c *Config) Precision() (ir.Precision, error) {
	return ir.ParsePrecision(c.Engine.Precision)
}

// EngineOptions translates the configuration into engine options.
func (c *Config) EngineOptions() ([]engine.Option, error) {
	policy, err := fire.ParseOverflowPolicy(c.Engine.OverflowPolicy)
	if err != nil {
		return nil, err
	}
	random, err := rng.ByName(c.Dynamics.RNG)
	if err != nil {
		return nil, err
	}
	kind, err := ir.ParseBackendKind(string(c.Backend.Kind))
	if err != nil {
		return nil, err
	}
	bc := c.Backend
	bc.Kind = kind
	return []engine.Option{
		engine.WithBackendConfig(bc),
		engine.WithFCLCapacity(c.Engine.FCLCapacity),
		engine.WithFireQueueCapacity(c.Engine.FireQueueCapacity),
		engine.WithOverflowPolicy(policy),
		engine.WithRNG(random),
		engine.WithLedgerWindow(c.Engine.LedgerWindow),
		engine.WithFailedRollResetsCount(c.Engine.FailedRollResetsCount),
		engine.WithScanAll(c.Engine.ScanAll),
	}, nil
}

// Hash is the configuration's content hash, recorded with each run.
func (c *Config) Hash() (string, error) {
	return ir.HashJSON(ir.DomainConfig, c)
}
