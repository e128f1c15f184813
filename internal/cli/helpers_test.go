package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// chainConnectome is three neurons wired 0 -> 1 -> 2. A unit injection
// into neuron 0 walks down the chain one neuron per burst.
const chainConnectome = `
name: chain
defaults: {threshold: 1.0, leak: 0.0}
areas:
  - {id: 1, name: chain, grid: {x: 3}}
synapses:
  - {source: 0, target: 1, weight: 1, psp: 1}
  - {source: 1, target: 2, weight: 1, psp: 1}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func writeChain(t *testing.T) string {
	t.Helper()
	return writeFile(t, t.TempDir(), "chain.yaml", chainConnectome)
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decodeData unmarshals the data payload of a JSON success response.
func decodeData[T any](t *testing.T, output string) T {
	t.Helper()
	var resp struct {
		Status string `json:"status"`
		Data   T      `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp), output)
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}
