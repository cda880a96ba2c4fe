package cmd

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/HatiCode/enerbox/pkg/energy"
	"github.com/HatiCode/enerbox/pkg/interval"
)

// Scenario describes one service, the costs it observed and what its
// downstream services reported.
//
//	service: meow
//	threshold: 4
//	fairness: 0.5
//	cost: [5, 2]
//	samples:
//	  - args: [1]
//	    cost: 7
//	remotes:
//	  - name: woof
//	    intervals: [[2, 4], [10, 12]]
type Scenario struct {
	Service    string        `yaml:"service"`
	Capacity   int           `yaml:"capacity"`
	Threshold  int           `yaml:"threshold"`
	Scale      int           `yaml:"scale"`
	Fairness   float64       `yaml:"fairness"`
	MergeGap   float64       `yaml:"mergeGap"`
	StaleAfter time.Duration `yaml:"staleAfter"`
	Cost       []float64     `yaml:"cost"` // linear cost model c0,c1,... used by call
	Samples    []SampleSpec  `yaml:"samples"`
	Remotes    []RemoteSpec  `yaml:"remotes"`
}

// SampleSpec is one observed local execution.
type SampleSpec struct {
	Args []float64 `yaml:"args"`
	Cost float64   `yaml:"cost"`
}

// RemoteSpec is the interval report of one downstream service.
type RemoteSpec struct {
	Name      string       `yaml:"name"`
	Intervals [][2]float64 `yaml:"intervals"`
}

// LoadScenario reads a scenario file with strict field checking.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes a scenario. Unknown fields are errors.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("parse scenario: empty document")
		}
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if s.Service == "" {
		return nil, fmt.Errorf("parse scenario: service is required")
	}
	return &s, nil
}

// Awareness builds the allocator state the scenario describes.
func (s *Scenario) Awareness(logger *slog.Logger) (*energy.Awareness, error) {
	a, err := energy.New(energy.Config{
		Name:       s.Service,
		Capacity:   s.Capacity,
		Threshold:  s.Threshold,
		Scale:      s.Scale,
		Fairness:   s.Fairness,
		MergeGap:   s.MergeGap,
		StaleAfter: s.StaleAfter,
	}, logger)
	if err != nil {
		return nil, err
	}

	for i, sample := range s.Samples {
		if !a.AddEnergyData(sample.Args, sample.Cost) {
			return nil, fmt.Errorf("sample %d: invalid cost %g", i, sample.Cost)
		}
	}

	for _, r := range s.Remotes {
		set, err := interval.Parse(r.Intervals)
		if err != nil {
			return nil, fmt.Errorf("remote %q: %w", r.Name, err)
		}
		a.UpdateRemote(r.Name, set)
	}
	return a, nil
}

// CostModel returns the scenario cost model. ok is false when the scenario
// has none.
func (s *Scenario) CostModel() (energy.CostModel, bool) {
	return energy.CostModel{Coefficients: s.Cost}, len(s.Cost) > 0
}
