package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const scenarioYAML = `service: meow
threshold: 2
cost: [5]
samples:
  - args: [1]
    cost: 10
  - args: [2]
    cost: 5
remotes:
  - name: woof
    intervals: [[1, 1], [4, 4]]
`

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario([]byte(scenarioYAML))
	require.NoError(t, err)

	assert.Equal(t, "meow", s.Service)
	assert.Equal(t, 2, s.Threshold)
	assert.Len(t, s.Samples, 2)
	require.Len(t, s.Remotes, 1)
	assert.Equal(t, [][2]float64{{1, 1}, {4, 4}}, s.Remotes[0].Intervals)

	model, ok := s.CostModel()
	assert.True(t, ok)
	assert.InDelta(t, 5, model.Cost([]float64{3}), 1e-9)
}

func TestParseScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "empty", yaml: ""},
		{name: "unknown field", yaml: "service: meow\nfairnes: 0.5\n"},
		{name: "missing service", yaml: "threshold: 4\n"},
		{name: "wrong type", yaml: "service: meow\nthreshold: lots\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestScenario_Awareness(t *testing.T) {
	s, err := ParseScenario([]byte(scenarioYAML))
	require.NoError(t, err)

	a, err := s.Awareness(nil)
	require.NoError(t, err)
	assert.Equal(t, 2, a.SampleCount())
	assert.Equal(t, []string{"woof"}, a.Remotes())
	assert.True(t, a.Ready())

	bad, err := ParseScenario([]byte("service: meow\nremotes:\n  - name: woof\n    intervals: [[4, 1]]\n"))
	require.NoError(t, err)
	_, err = bad.Awareness(nil)
	assert.Error(t, err)
}

func TestCombineCmd(t *testing.T) {
	path := writeScenario(t, scenarioYAML)

	out, err := run(t, "combine", "-f", path)
	require.NoError(t, err)

	assert.Contains(t, out, "{[5,5],[10,10]}")
	assert.Contains(t, out, "{[1,1],[4,4]}")
	assert.Contains(t, out, "{[6,6],[9,9],[11,11],[14,14]}")
}

func TestAllocateCmd_YAML(t *testing.T) {
	path := writeScenario(t, scenarioYAML)

	out, err := run(t, "allocate", "-f", path, "--objective", "14")
	require.NoError(t, err)

	var got struct {
		Objective  float64            `yaml:"objective"`
		Ready      bool               `yaml:"ready"`
		Objectives map[string]float64 `yaml:"objectives"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.True(t, got.Ready)
	assert.InDelta(t, 14, got.Objective, 1e-9)
	assert.InDelta(t, 10, got.Objectives["meow"], 1e-9)
	assert.InDelta(t, 4, got.Objectives["woof"], 1e-9)
}

func TestAllocateCmd_JSONFromEnv(t *testing.T) {
	path := writeScenario(t, scenarioYAML)
	t.Setenv("ENERCTL_FILE", path)
	t.Setenv("ENERCTL_OBJECTIVE", "12")

	out, err := run(t, "allocate", "-o", "json")
	require.NoError(t, err)

	var got Allocation
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "meow", got.Service)
	assert.InDelta(t, 10, got.Objectives["meow"], 1e-9)
	assert.InDelta(t, 1, got.Objectives["woof"], 1e-9)
}

func TestAllocateCmd_FlagOverridesEnv(t *testing.T) {
	path := writeScenario(t, scenarioYAML)
	t.Setenv("ENERCTL_OBJECTIVE", "12")

	out, err := run(t, "allocate", "-f", path, "--objective", "14", "-o", "json")
	require.NoError(t, err)

	var got Allocation
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.InDelta(t, 14, got.Objective, 1e-9)
}

func TestAllocateCmd_Infeasible(t *testing.T) {
	path := writeScenario(t, scenarioYAML)

	out, err := run(t, "allocate", "-f", path, "--objective", "5", "-o", "json")
	require.NoError(t, err)

	var got Allocation
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.InDelta(t, -1, got.Objectives["meow"], 1e-9)
	assert.InDelta(t, -1, got.Objectives["woof"], 1e-9)
}

func TestAllocateCmd_Errors(t *testing.T) {
	path := writeScenario(t, scenarioYAML)

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing objective", args: []string{"allocate", "-f", path}},
		{name: "missing file", args: []string{"allocate", "--objective", "3"}},
		{name: "bad output", args: []string{"allocate", "-f", path, "--objective", "3", "-o", "xml"}},
		{name: "bad log level", args: []string{"allocate", "-f", path, "--objective", "3", "--log", "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestCallCmd(t *testing.T) {
	path := writeScenario(t, scenarioYAML)

	out, err := run(t, "call", "-f", path, "--objective", "14", "--args", "3", "--times", "3")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"CALL", "TRIGGERED", "ARGS", "OBJECTIVES"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"1", "false", "3", "meow=unknown", "woof=unknown"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"2", "true", "1", "meow=10", "woof=4"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"3", "true", "1", "meow=10", "woof=4"}, strings.Fields(lines[3]))
}

func TestCallCmd_InvalidInput(t *testing.T) {
	path := writeScenario(t, scenarioYAML)

	_, err := run(t, "call", "-f", path, "--args", "x")
	assert.Error(t, err)

	_, err = run(t, "call", "-f", path, "--times", "0")
	assert.Error(t, err)
}
