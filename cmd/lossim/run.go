package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/lossim/internal/analysis"
	"github.com/opensource-finance/lossim/internal/appetite"
	"github.com/opensource-finance/lossim/internal/domain"
	"github.com/opensource-finance/lossim/internal/scenario"
)

// localTenant scopes CLI runs. The in-process service has no quota, so the
// value only shows up in reports and logs.
const localTenant = "local"

// runFlags are shared by every command that simulates.
type runFlags struct {
	preset string
	seed   int64
	paths  int
	set    []string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.preset, "preset", "p", "", "start from an embedded preset (see lossim presets)")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "random seed (default: preset or configured seed)")
	cmd.Flags().IntVarP(&f.paths, "paths", "n", 0, "simulated months (default: preset or configured paths)")
	cmd.Flags().StringArrayVar(&f.set, "set", nil, "override a driver, e.g. --set detection_rate=0.8 (repeatable)")
}

// resolve builds the parameter set, seed and path count for a run:
// configured baseline, then preset, then --set overrides and flags.
func (f *runFlags) resolve(cmd *cobra.Command, svc *analysis.Service) (*domain.ParameterSet, *int64, int, error) {
	params := svc.Baseline()
	var seed *int64
	paths := 0

	if f.preset != "" {
		sc, err := scenario.LoadPreset(f.preset)
		if err != nil {
			return nil, nil, 0, err
		}
		params = sc.Params
		seed = &sc.Seed
		paths = sc.Paths
	}

	for _, kv := range f.set {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, nil, 0, fmt.Errorf("--set %q: expected name=value", kv)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("--set %q: %w", kv, err)
		}
		params, err = params.WithDriver(strings.TrimSpace(name), v)
		if err != nil {
			return nil, nil, 0, err
		}
	}

	if cmd.Flags().Changed("seed") {
		seed = &f.seed
	}
	if cmd.Flags().Changed("paths") {
		paths = f.paths
	}
	return &params, seed, paths, nil
}

// newLocalService builds an in-process service with the built-in appetite
// policies and no cache, bus or quota.
func newLocalService() (*analysis.Service, error) {
	engine, err := appetite.NewEngine(0)
	if err != nil {
		return nil, err
	}
	if err := engine.LoadPolicies(appetite.DefaultPolicies()); err != nil {
		return nil, err
	}
	return analysis.NewService(analysis.Deps{Config: cfg, Appetite: engine}), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var (
	simulateFlags runFlags
	includeLosses bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run one simulation and print the KPI report",
	Example: `  lossim simulate
  lossim simulate --preset card-not-present --paths 50000
  lossim simulate --set detection_rate=0.85 --set sev_sigma=1.1`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, err := newLocalService()
		if err != nil {
			return err
		}
		params, seed, paths, err := simulateFlags.resolve(cmd, svc)
		if err != nil {
			return err
		}

		report, err := svc.Simulate(cmd.Context(), localTenant, analysis.SimulateRequest{
			Params:        params,
			Seed:          seed,
			Paths:         paths,
			IncludeLosses: includeLosses,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

var (
	tornadoFlags   runFlags
	tornadoPerturb float64
	tornadoDrivers []string
)

var tornadoCmd = &cobra.Command{
	Use:   "tornado",
	Short: "Rank drivers by their impact on expected loss",
	Example: `  lossim tornado
  lossim tornado --perturb 0.1 --drivers base_fraud_rate,detection_rate`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, err := newLocalService()
		if err != nil {
			return err
		}
		params, seed, paths, err := tornadoFlags.resolve(cmd, svc)
		if err != nil {
			return err
		}

		result, err := svc.Tornado(cmd.Context(), localTenant, analysis.TornadoRequest{
			Params:  params,
			Seed:    seed,
			Paths:   paths,
			Perturb: tornadoPerturb,
			Drivers: tornadoDrivers,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), result)
	},
}

var (
	stressFlags   runFlags
	stressFactors domain.StressFactors
)

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Compare a baseline against an adverse scenario",
	Example: `  lossim stress
  lossim stress --fraud-uplift 2 --detection-drop 0.8`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, err := newLocalService()
		if err != nil {
			return err
		}
		params, seed, paths, err := stressFlags.resolve(cmd, svc)
		if err != nil {
			return err
		}

		factors := scenario.DefaultStress()
		if cmd.Flags().Changed("fraud-uplift") {
			factors.FraudUplift = stressFactors.FraudUplift
		}
		if cmd.Flags().Changed("detection-drop") {
			factors.DetectionDrop = stressFactors.DetectionDrop
		}
		if cmd.Flags().Changed("sigma-uplift") {
			factors.SigmaUplift = stressFactors.SigmaUplift
		}

		out, err := svc.Stress(cmd.Context(), localTenant, analysis.StressRequest{
			Params:  params,
			Seed:    seed,
			Paths:   paths,
			Factors: &factors,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

var (
	sweepFlags   runFlags
	sweepRanges  []string
	sweepSamples int
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Sample driver ranges and simulate every sample",
	Example: `  lossim sweep --range detection_rate=0.5:0.95 --samples 20
  lossim sweep --range base_fraud_rate=0.002:0.008 --range sev_sigma=0.7:1.3`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, err := newLocalService()
		if err != nil {
			return err
		}
		params, seed, paths, err := sweepFlags.resolve(cmd, svc)
		if err != nil {
			return err
		}
		ranges, err := parseRanges(sweepRanges)
		if err != nil {
			return err
		}

		report, err := svc.Sweep(cmd.Context(), localTenant, analysis.SweepRequest{
			Params:  params,
			Ranges:  ranges,
			Samples: sweepSamples,
			Seed:    seed,
			Paths:   paths,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

// parseRanges reads name=low:high pairs.
func parseRanges(specs []string) (map[string]scenario.Range, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("at least one --range is required")
	}
	ranges := make(map[string]scenario.Range, len(specs))
	for _, s := range specs {
		name, bounds, ok := strings.Cut(s, "=")
		lo, hi, ok2 := strings.Cut(bounds, ":")
		if !ok || !ok2 {
			return nil, fmt.Errorf("--range %q: expected name=low:high", s)
		}
		low, err := strconv.ParseFloat(lo, 64)
		if err != nil {
			return nil, fmt.Errorf("--range %q: %w", s, err)
		}
		high, err := strconv.ParseFloat(hi, 64)
		if err != nil {
			return nil, fmt.Errorf("--range %q: %w", s, err)
		}
		ranges[strings.TrimSpace(name)] = scenario.Range{Low: low, High: high}
	}
	return ranges, nil
}

func init() {
	simulateFlags.register(simulateCmd)
	simulateCmd.Flags().BoolVar(&includeLosses, "include-losses", false, "include the per-path losses in the output")

	tornadoFlags.register(tornadoCmd)
	tornadoCmd.Flags().Float64Var(&tornadoPerturb, "perturb", 0, "relative perturbation per driver (default: configured)")
	tornadoCmd.Flags().StringSliceVar(&tornadoDrivers, "drivers", nil, "drivers to perturb (default: all numeric drivers)")

	stressFlags.register(stressCmd)
	stressCmd.Flags().Float64Var(&stressFactors.FraudUplift, "fraud-uplift", 0, "multiplier on base_fraud_rate")
	stressCmd.Flags().Float64Var(&stressFactors.DetectionDrop, "detection-drop", 0, "multiplier on detection_rate")
	stressCmd.Flags().Float64Var(&stressFactors.SigmaUplift, "sigma-uplift", 0, "multiplier on sev_sigma")

	sweepFlags.register(sweepCmd)
	sweepCmd.Flags().StringArrayVar(&sweepRanges, "range", nil, "driver range name=low:high (repeatable)")
	sweepCmd.Flags().IntVar(&sweepSamples, "samples", 10, "number of stratified samples")
}
