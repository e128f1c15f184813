package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/npu/internal/harness"
	"github.com/roach88/npu/internal/ir"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	Filter    string // scenario filter (glob pattern)
	Backend   string // "" runs each scenario's own backend; "all" runs every backend
	GoldenDir string // overrides ../golden relative to each scenario
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name    string         `json:"name"`
	Backend ir.BackendKind `json:"backend,omitempty"`
	Pass    bool           `json:"pass"`
	Errors  []string       `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// WriteText lists each scenario with its failures, then the totals.
func (r TestResult) WriteText(w io.Writer) error {
	if r.Total == 0 {
		_, err := fmt.Fprintln(w, "No scenarios found.")
		return err
	}
	for _, s := range r.Scenarios {
		mark := "✓"
		if !s.Pass {
			mark = "✗"
		}
		if s.Backend != "" {
			fmt.Fprintf(w, "%s %s [%s]\n", mark, s.Name, s.Backend)
		} else {
			fmt.Fprintf(w, "%s %s\n", mark, s.Name)
		}
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	_, err := fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", r.Passed, r.Failed, r.Total)
	return err
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario-file-or-dir>...",
		Short: "Run scenario files against the engine",
		Long: `Run scenario files: inject input, step the engine and check expectations
after every step. Each scenario's burst trace is also compared with its
golden file when one exists.

Golden files live in ../golden relative to the scenario file, named
after the scenario. --update rewrites them from the current trace.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  npu test ./scenarios
  npu test ./scenarios --filter "refractory*" --backend all
  npu test ./scenarios/leak.yaml --update
  npu test ./scenarios --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.Backend, "backend", "", "backend override (cpu|parallel|all)")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", "", "directory holding golden files")

	return cmd
}

func runTests(cmd *cobra.Command, opts *TestOptions, paths []string) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	kinds, err := testBackends(opts.Backend)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeGeneric, "invalid --backend", err)
	}

	var files []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return out.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("scenario path not found: %s", p), err)
		}
		found, err := findScenarioFiles(p, opts.Filter)
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeGeneric, "failed to find scenarios", err)
		}
		files = append(files, found...)
	}

	result := TestResult{Scenarios: []ScenarioResult{}}
	for _, file := range files {
		for _, kind := range kinds {
			sr := runScenario(cmd, opts, file, kind)
			result.Scenarios = append(result.Scenarios, sr)
			result.Total++
			if sr.Pass {
				result.Passed++
			} else {
				result.Failed++
			}
		}
	}

	if err := out.Success(result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// testBackends expands --backend. The empty kind means the scenario's own.
func testBackends(flag string) ([]ir.BackendKind, error) {
	switch strings.ToLower(strings.TrimSpace(flag)) {
	case "":
		return []ir.BackendKind{""}, nil
	case "all":
		return []ir.BackendKind{ir.BackendCPU, ir.BackendParallel}, nil
	}
	kind, err := ir.ParseBackendKind(flag)
	if err != nil {
		return nil, err
	}
	if kind == ir.BackendAuto {
		return nil, fmt.Errorf("scenarios need an explicit backend, not %q", flag)
	}
	return []ir.BackendKind{kind}, nil
}

// findScenarioFiles finds all YAML scenario files under path. A file path
// is returned as is when it passes the filter.
func findScenarioFiles(path string, filter string) ([]string, error) {
	var files []string

	err := filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(p), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, p)
		return nil
	})

	return files, err
}

// runScenario executes one scenario file on kind and checks its golden
// trace.
func runScenario(cmd *cobra.Command, opts *TestOptions, file string, kind ir.BackendKind) ScenarioResult {
	failed := func(name string, format string, args ...any) ScenarioResult {
		return ScenarioResult{Name: name, Backend: kind, Errors: []string{fmt.Sprintf(format, args...)}}
	}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return failed(filepath.Base(file), "failed to load scenario: %v", err)
	}

	result, err := harness.RunContext(cmd.Context(), scenario, kind, opts.Logger)
	if err != nil {
		return failed(scenario.Name, "execution failed: %v", err)
	}

	sr := ScenarioResult{Name: scenario.Name, Backend: result.Backend, Pass: result.Pass, Errors: result.Errors}
	trace, err := harness.MarshalTrace(result.Trace)
	if err != nil {
		return failed(scenario.Name, "failed to marshal trace: %v", err)
	}
	goldenPath := goldenFilePath(file, opts.GoldenDir, scenario.Name)

	if opts.Update {
		if err := updateGoldenFile(goldenPath, trace); err != nil {
			return failed(scenario.Name, "failed to update golden file: %v", err)
		}
		opts.Logger.Info("golden updated", "scenario", scenario.Name, "path", goldenPath)
		return sr
	}

	golden, err := os.ReadFile(goldenPath)
	if os.IsNotExist(err) {
		// No golden file: assertions only.
		return sr
	}
	if err != nil {
		return failed(scenario.Name, "failed to read golden file: %v", err)
	}
	if !bytes.Equal(golden, trace) {
		sr.Pass = false
		sr.Errors = append(sr.Errors, "trace does not match golden file (run with --update to regenerate)")
	}
	return sr
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile, goldenDir, name string) string {
	if goldenDir == "" {
		goldenDir = filepath.Join(filepath.Dir(scenarioFile), "..", "golden")
	}
	return filepath.Join(goldenDir, name+".golden")
}

// updateGoldenFile writes the current trace as the golden file.
func updateGoldenFile(goldenPath string, trace []byte) error {
	if err := os.MkdirAll(filepath.Dir(goldenPath), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(goldenPath, trace, 0644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}
