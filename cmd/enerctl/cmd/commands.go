package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/HatiCode/enerbox/pkg/energy"
	"github.com/HatiCode/enerbox/pkg/httpx"
	"github.com/HatiCode/enerbox/pkg/interval"
)

var errMissingFile = errors.New("a scenario file is required (--file)")

// Allocation is the output of the allocate command.
type Allocation struct {
	Service    string            `json:"service" yaml:"service"`
	Objective  float64           `json:"objective" yaml:"objective"`
	Fairness   bool              `json:"fairness" yaml:"fairness"`
	Ready      bool              `json:"ready" yaml:"ready"`
	Intervals  interval.Set      `json:"intervals" yaml:"intervals"`
	Objectives energy.Objectives `json:"objectives" yaml:"objectives"`
}

func newCombineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "combine",
		Short: "Print the combined interval set of the scenario service",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := settings(cmd)
			s, err := loadScenario(v)
			if err != nil {
				return err
			}
			a, err := s.Awareness(allocatorLogger(cmd))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "%s\t%s\n", a.Name(), a.LocalIntervals())
			for _, name := range a.Remotes() {
				set, _ := a.RemoteIntervals(name)
				fmt.Fprintf(w, "%s\t%s\n", name, set)
			}
			fmt.Fprintf(w, "combined\t%s\n", a.CombineIntervals())
			return w.Flush()
		},
	}
	return cmd
}

func newAllocateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Split an objective between the scenario service and its remotes",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := settings(cmd)
			if !v.IsSet("objective") {
				return errors.New("an objective is required (--objective)")
			}
			s, err := loadScenario(v)
			if err != nil {
				return err
			}
			a, err := s.Awareness(allocatorLogger(cmd))
			if err != nil {
				return err
			}

			objective := v.GetFloat64("objective")
			fairness := v.GetBool("fairness")
			result := Allocation{
				Service:    a.Name(),
				Objective:  objective,
				Fairness:   fairness,
				Ready:      a.Ready(),
				Intervals:  a.CombineIntervals(),
				Objectives: a.Objectives(objective, fairness),
			}
			if !result.Ready {
				logrus.Warn("some services have no data; every objective is unknown")
			}

			return write(cmd.OutOrStdout(), v.GetString("output"), result)
		},
	}

	cmd.Flags().Float64("objective", 0, "Objective to allocate (required)")
	cmd.Flags().Bool("fairness", false, "Favour equal shares, weighted by the scenario fairness")
	cmd.Flags().StringP("output", "o", "yaml", "Output format: yaml or json")
	return cmd
}

func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Replay calls through the frequency gate",
		Long: `Replay calls with the same objective and arguments. Each call goes
through the frequency gate, and once triggered the allocation runs. When
the scenario has a cost model, the cost of each call is recorded as a
local sample.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := settings(cmd)
			callArgs, err := httpx.ParseFloats(v.GetString("args"))
			if err != nil {
				return err
			}
			times := v.GetInt("times")
			if times <= 0 {
				return fmt.Errorf("times must be > 0, got %d", times)
			}

			s, err := loadScenario(v)
			if err != nil {
				return err
			}
			a, err := s.Awareness(allocatorLogger(cmd))
			if err != nil {
				return err
			}
			model, hasModel := s.CostModel()
			objective := v.GetFloat64("objective")

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CALL\tTRIGGERED\tARGS\tOBJECTIVES")
			for i := 1; i <= times; i++ {
				call := a.NewFunctionCall(objective, callArgs)
				if hasModel {
					a.AddEnergyData(call.Args, model.Cost(call.Args))
				}
				fmt.Fprintf(w, "%d\t%t\t%s\t%s\n", i, call.Triggered, httpx.FormatFloats(call.Args), formatObjectives(call.Objectives))
			}
			return w.Flush()
		},
	}

	cmd.Flags().Float64("objective", -1, "Objective of every call (negative for none)")
	cmd.Flags().String("args", "", "Argument vector, comma separated")
	cmd.Flags().Int("times", 1, "Number of calls")
	return cmd
}

func write(out io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (must be yaml or json)", format)
	}
}

func formatObjectives(o energy.Objectives) string {
	parts := make([]string, 0, len(o))
	for _, name := range o.Names() {
		if v, ok := o.Get(name); ok {
			parts = append(parts, fmt.Sprintf("%s=%g", name, v))
			continue
		}
		parts = append(parts, name+"=unknown")
	}
	return strings.Join(parts, " ")
}
