package energy

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HatiCode/enerbox/pkg/interval"
)

const delta = 1e-9

func newAwareness(t *testing.T, cfg Config) *Awareness {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "meow"
	}
	a, err := New(cfg, nil)
	require.NoError(t, err)
	return a
}

func set(pairs ...[2]float64) interval.Set {
	ranges := make([]interval.Range, len(pairs))
	for i, p := range pairs {
		ranges[i] = interval.Range{Lo: p[0], Hi: p[1]}
	}
	return interval.New(ranges...)
}

func assertObjectives(t *testing.T, want, got Objectives) {
	t.Helper()
	require.Len(t, got, len(want), "objectives %v", got)
	for name, w := range want {
		g, ok := got[name]
		require.True(t, ok, "missing objective for %s", name)
		assert.InDelta(t, w, g, delta, "objective for %s", name)
	}
}

func TestNew_ValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "empty name", cfg: Config{}},
		{name: "fairness above one", cfg: Config{Name: "a", Fairness: 1.5}},
		{name: "negative fairness", cfg: Config{Name: "a", Fairness: -0.1}},
		{name: "negative staleness", cfg: Config{Name: "a", StaleAfter: -time.Second}},
		{name: "scale too large", cfg: Config{Name: "a", Scale: MaxScale + 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, nil)
			assert.Error(t, err)
		})
	}
}

func TestNew_AcceptsMaxScale(t *testing.T) {
	a := newAwareness(t, Config{Scale: MaxScale})
	assert.Equal(t, MaxScale, a.Config().Scale)
}

func TestNew_AppliesDefaults(t *testing.T) {
	a := newAwareness(t, Config{})
	cfg := a.Config()
	assert.Equal(t, DefaultCapacity, cfg.Capacity)
	assert.Equal(t, DefaultThreshold, cfg.Threshold)
	assert.Equal(t, DefaultScale, cfg.Scale)
	assert.Equal(t, "meow", a.Name())
}

func TestNew_LoggerAttributesUnchanged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})).
		With("service", "meow")

	a, err := New(Config{Name: "meow"}, logger)
	require.NoError(t, err)
	a.Objectives(5, false)

	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)
	assert.Equal(t, 1, strings.Count(line, `"service"`), "log line %s", line)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "meow", entry["service"])
}

func TestObjectives_NoRemoteData(t *testing.T) {
	a := newAwareness(t, Config{})
	a.UpdateRemotes([]string{"woof"})

	got := a.Objectives(100, false)
	assertObjectives(t, Objectives{"meow": Unknown, "woof": Unknown}, got)

	a.AddEnergyData(nil, 10)
	got = a.Objectives(100, false)
	assertObjectives(t, Objectives{"meow": Unknown, "woof": Unknown}, got)
	assert.False(t, a.Ready())
}

func TestObjectives_NoLocalData(t *testing.T) {
	a := newAwareness(t, Config{})
	a.UpdateRemote("woof", set([2]float64{10, 20}))

	got := a.Objectives(100, false)
	assertObjectives(t, Objectives{"meow": Unknown, "woof": Unknown}, got)
}

func TestObjectives_LocalOnly(t *testing.T) {
	a := newAwareness(t, Config{})
	a.AddEnergyData([]float64{1}, 10)
	a.AddEnergyData([]float64{2}, 30)

	got := a.Objectives(25, false)
	assertObjectives(t, Objectives{"meow": 10}, got)

	got = a.Objectives(40, false)
	assertObjectives(t, Objectives{"meow": 30}, got)
}

func TestObjectives_MultipleChoice(t *testing.T) {
	a := newAwareness(t, Config{})
	a.AddEnergyData(nil, 0)
	a.UpdateRemote("woof", set([2]float64{10, 20}, [2]float64{25, 40}))
	a.UpdateRemote("waf", set([2]float64{40, 60}, [2]float64{80, 110}))
	require.True(t, a.Ready())

	tests := []struct {
		name      string
		objective float64
		want      Objectives
	}{
		{name: "large objective", objective: 100, want: Objectives{"meow": 0, "woof": 15, "waf": 85}},
		{name: "smaller objective", objective: 85, want: Objectives{"meow": 0, "woof": 35, "waf": 50}},
		{name: "exact minimum", objective: 50, want: Objectives{"meow": 0, "woof": 10, "waf": 40}},
		{name: "below minimum", objective: 49, want: Objectives{"meow": Unknown, "woof": Unknown, "waf": Unknown}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertObjectives(t, tt.want, a.Objectives(tt.objective, false))
		})
	}
}

func TestObjectives_Infeasible(t *testing.T) {
	a := newAwareness(t, Config{})
	a.AddEnergyData(nil, 10)
	a.UpdateRemote("woof", set([2]float64{1, 1}, [2]float64{4, 4}))
	a.UpdateRemote("waf", set([2]float64{4, 4}, [2]float64{8, 8}))

	for _, objective := range []float64{5, 11, 14} {
		got := a.Objectives(objective, false)
		assert.True(t, got.AllUnknown(), "objective %g gave %v", objective, got)
		assert.Len(t, got, 3)
	}

	got := a.Objectives(15, false)
	assertObjectives(t, Objectives{"meow": 10, "woof": 1, "waf": 4}, got)
}

func TestObjectives_NegativeObjective(t *testing.T) {
	a := newAwareness(t, Config{})
	a.AddEnergyData(nil, 0)
	a.UpdateRemote("woof", set([2]float64{1, 2}))

	got := a.Objectives(-1, false)
	assertObjectives(t, Objectives{"meow": Unknown, "woof": Unknown}, got)
}

func TestObjectives_ZeroObjective(t *testing.T) {
	a := newAwareness(t, Config{})
	a.AddEnergyData(nil, 0)
	a.UpdateRemote("woof", set([2]float64{0, 3}))

	got := a.Objectives(0, false)
	assertObjectives(t, Objectives{"meow": 0, "woof": 0}, got)

	a.UpdateRemote("woof", set([2]float64{1, 3}))
	got = a.Objectives(0, false)
	assert.True(t, got.AllUnknown())
}

func TestObjectives_Fairness(t *testing.T) {
	tests := []struct {
		name      string
		fairness  float64
		useIt     bool
		objective float64
		want      Objectives
	}{
		{name: "greedy spends the most", objective: 9, want: Objectives{"meow": 0, "woof": 1, "waf": 8}},
		{name: "greedy tight objective", objective: 8, want: Objectives{"meow": 0, "woof": 4, "waf": 4}},
		{name: "fairness ignored when not asked", fairness: 0.5, objective: 9, want: Objectives{"meow": 0, "woof": 1, "waf": 8}},
		{name: "fairness balances", fairness: 0.5, useIt: true, objective: 9, want: Objectives{"meow": 0, "woof": 4, "waf": 4}},
		{name: "zero weight is greedy", fairness: 0, useIt: true, objective: 9, want: Objectives{"meow": 0, "woof": 1, "waf": 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAwareness(t, Config{Fairness: tt.fairness})
			a.AddEnergyData(nil, 0)
			a.UpdateRemote("woof", set([2]float64{1, 1}, [2]float64{4, 4}))
			a.UpdateRemote("waf", set([2]float64{4, 4}, [2]float64{8, 8}))

			assertObjectives(t, tt.want, a.Objectives(tt.objective, tt.useIt))
		})
	}
}

func TestObjectives_SumWithinObjective(t *testing.T) {
	a := newAwareness(t, Config{})
	a.AddEnergyData(nil, 3)
	a.AddEnergyData(nil, 7)
	a.UpdateRemote("woof", set([2]float64{2, 9}, [2]float64{12, 30}))
	a.UpdateRemote("waf", set([2]float64{1, 1}, [2]float64{5, 6}, [2]float64{20, 50}))

	for objective := 6.0; objective <= 90; objective += 0.5 {
		got := a.Objectives(objective, false)
		if got.AllUnknown() {
			continue
		}
		sum := 0.0
		for _, v := range got {
			require.GreaterOrEqual(t, v, 0.0)
			sum += v
		}
		assert.LessOrEqual(t, sum, objective+delta, "objective %g gave %v", objective, got)
	}
}

func TestUpdateRemotes_KeepsExistingData(t *testing.T) {
	a := newAwareness(t, Config{})
	a.UpdateRemote("woof", set([2]float64{1, 2}))
	a.UpdateRemotes([]string{"woof", "waf", "meow"})

	assert.Equal(t, []string{"woof", "waf"}, a.Remotes())

	woof, ok := a.RemoteIntervals("woof")
	require.True(t, ok)
	assert.True(t, woof.Equal(set([2]float64{1, 2})))

	waf, ok := a.RemoteIntervals("waf")
	require.True(t, ok)
	assert.True(t, waf.IsEmpty())

	_, ok = a.RemoteIntervals("unknown")
	assert.False(t, ok)
}

func TestUpdateRemote_IgnoresLocalName(t *testing.T) {
	a := newAwareness(t, Config{})
	a.UpdateRemote("meow", set([2]float64{1, 2}))
	assert.Empty(t, a.Remotes())
}

func TestCombineIntervals(t *testing.T) {
	a := newAwareness(t, Config{})
	assert.True(t, a.CombineIntervals().IsEmpty())

	a.AddEnergyData(nil, 3)
	a.AddEnergyData(nil, 3)
	assert.True(t, a.CombineIntervals().Equal(set([2]float64{3, 3})))

	a.UpdateRemote("woof", set([2]float64{10, 13}))
	first := a.CombineIntervals()
	assert.True(t, first.Equal(set([2]float64{13, 16})), "got %s", first)

	// no new data: combining again gives the same answer
	assert.True(t, a.CombineIntervals().Equal(first))

	a.UpdateRemote("waf", set([2]float64{13, 16}))
	assert.True(t, a.CombineIntervals().Equal(set([2]float64{26, 32})))
}

func TestStaleRemotes(t *testing.T) {
	a := newAwareness(t, Config{StaleAfter: time.Minute})
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	a.AddEnergyData(nil, 0)
	a.UpdateRemote("woof", set([2]float64{1, 4}))
	assert.True(t, a.Ready())
	assertObjectives(t, Objectives{"meow": 0, "woof": 4}, a.Objectives(4, false))

	now = now.Add(2 * time.Minute)
	assert.False(t, a.Ready())
	assert.True(t, a.Objectives(4, false).AllUnknown())
	assert.True(t, a.CombineIntervals().Equal(set([2]float64{0, 0})))

	a.UpdateRemoteAt("woof", set([2]float64{2, 3}), now.Add(-30*time.Second))
	assert.True(t, a.Ready())
	assert.True(t, a.CombineIntervals().Equal(set([2]float64{2, 3})))
}

func TestNewFunctionCall_Gate(t *testing.T) {
	a := newAwareness(t, Config{Threshold: 4})
	a.AddEnergyData([]float64{1}, 5)
	a.AddEnergyData([]float64{2}, 10)
	a.UpdateRemote("woof", set([2]float64{2, 4}))

	args := []float64{7}
	assert.Zero(t, a.SeenCount(args))
	for i := 1; i < 4; i++ {
		call := a.NewFunctionCall(14, args)
		assert.False(t, call.Triggered, "call %d", i)
		assert.True(t, call.Objectives.AllUnknown())
		assert.Equal(t, args, call.Args)
	}

	call := a.NewFunctionCall(14, args)
	require.True(t, call.Triggered)
	assertObjectives(t, Objectives{"meow": 10, "woof": 4}, call.Objectives)
	assert.Equal(t, []float64{2}, call.Args)
	assert.Equal(t, 4, a.SeenCount(args))
}

func TestNewFunctionCall_NegativeObjectiveSkipsGate(t *testing.T) {
	a := newAwareness(t, Config{Threshold: 1})
	a.AddEnergyData([]float64{1}, 5)

	call := a.NewFunctionCall(-1, []float64{3})
	assert.False(t, call.Triggered)
	assert.True(t, call.Objectives.AllUnknown())
	assert.Equal(t, []float64{3}, call.Args)
	assert.Equal(t, 0, a.SeenCount([]float64{3}))
}

func TestNewFunctionCall_KeepsArgsWhenUnknown(t *testing.T) {
	a := newAwareness(t, Config{Threshold: 1})
	a.AddEnergyData([]float64{1}, 50)

	call := a.NewFunctionCall(10, []float64{9})
	assert.True(t, call.Triggered)
	assert.True(t, call.Objectives.AllUnknown())
	assert.Equal(t, []float64{9}, call.Args)
}

func TestSolveObjective(t *testing.T) {
	a := newAwareness(t, Config{})
	_, ok := a.SolveObjective(3)
	assert.False(t, ok)

	a.AddEnergyData([]float64{1, 1}, 2)
	a.AddEnergyData([]float64{2, 2}, 6)

	args, ok := a.SolveObjective(5)
	require.True(t, ok)
	assert.Equal(t, []float64{2, 2}, args)

	_, ok = a.SolveObjective(Unknown)
	assert.False(t, ok)
}

func TestObjectivesFromIntervals(t *testing.T) {
	a := newAwareness(t, Config{})
	got := a.ObjectivesFromIntervals(28, map[string]interval.Range{
		"meow": {Lo: 5, Hi: 15},
		"woof": {Lo: 3, Hi: 20},
	})
	assertObjectives(t, Objectives{"meow": 15, "woof": 13}, got)
}

func TestScaleCost(t *testing.T) {
	tests := []struct {
		cost, objective float64
		roundUp         bool
		want            int
	}{
		{cost: 0, objective: 0, want: 0},
		{cost: 1, objective: 0, want: 101},
		{cost: 1, objective: 9, want: 11},
		{cost: 1, objective: 9, roundUp: true, want: 12},
		{cost: 8, objective: 9, want: 88},
		{cost: 9, objective: 9, want: 100},
		{cost: 9, objective: 9, roundUp: true, want: 100},
		{cost: 10, objective: 9, want: 101},
		{cost: 10, objective: 9, roundUp: true, want: 101},
		{cost: math.MaxFloat64, objective: 1, want: 101},
		{cost: 0.3, objective: 0.9, want: 33},
		{cost: 0.3, objective: 0.9, roundUp: true, want: 34},
		{cost: 0.3, objective: 0.3, roundUp: true, want: 100},
		{cost: 0, objective: 5, roundUp: true, want: 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, scaleCost(tt.cost, tt.objective, 100, tt.roundUp),
			"cost %g objective %g roundUp %v", tt.cost, tt.objective, tt.roundUp)
	}
}

func TestObjectives_RoundingDoesNotHideFeasibleChoice(t *testing.T) {
	tests := []struct {
		name      string
		objective float64
		woof      [][2]float64
		waf       [][2]float64
		want      Objectives
	}{
		{
			name:      "fractional costs",
			objective: 1,
			woof:      [][2]float64{{0.335, 0.335}},
			waf:       [][2]float64{{0.335, 0.335}, {0.669, 0.669}},
			want:      Objectives{"meow": 0, "woof": 0.335, "waf": 0.335},
		},
		{
			name:      "realistic sizes",
			objective: 100,
			woof:      [][2]float64{{33.5, 33.5}},
			waf:       [][2]float64{{33.5, 33.5}, {66.9, 66.9}},
			want:      Objectives{"meow": 0, "woof": 33.5, "waf": 33.5},
		},
		{
			name:      "exact fit kept",
			objective: 9,
			woof:      [][2]float64{{1, 1}, {4, 4}},
			waf:       [][2]float64{{4, 4}, {8, 8}},
			want:      Objectives{"meow": 0, "woof": 1, "waf": 8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAwareness(t, Config{})
			a.AddEnergyData(nil, 0)
			a.UpdateRemote("woof", set(tt.woof...))
			a.UpdateRemote("waf", set(tt.waf...))

			assertObjectives(t, tt.want, a.Objectives(tt.objective, false))
		})
	}
}

func TestObjectives_FallsBackToCheapest(t *testing.T) {
	// rounded down, 0.340 fits but the real sum does not; rounded up, even
	// the cheapest choice exceeds the budget
	a := newAwareness(t, Config{})
	a.AddEnergyData(nil, 0.334)
	a.UpdateRemote("woof", set([2]float64{0.333, 0.333}))
	a.UpdateRemote("waf", set([2]float64{0.333, 0.333}, [2]float64{0.340, 0.340}))

	assertObjectives(t, Objectives{"meow": 0.334, "woof": 0.333, "waf": 0.333}, a.Objectives(1, false))
}
