package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/san-kum/conesim/internal/analysis"
	"github.com/san-kum/conesim/internal/config"
	"github.com/san-kum/conesim/internal/control"
	"github.com/san-kum/conesim/internal/dynamo"
	"github.com/san-kum/conesim/internal/experiment"
	"github.com/san-kum/conesim/internal/export"
	"github.com/san-kum/conesim/internal/plant"
	"github.com/san-kum/conesim/internal/poles"
	"github.com/san-kum/conesim/internal/storage"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	exp := experiment.New(cfg.Experiment())
	exp.SetLogger(newLogger())
	if err := exp.Setup(); err != nil {
		return err
	}

	ps, err := closedLoopPoles(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("running %d steps at dt=%g (%s, %s)...\n",
		cfg.Integration.SimLength, cfg.Integration.Dt, cfg.Integration.Stepper, inputName(cfg))
	start := time.Now()

	result, err := exp.Run(ctx)
	if err != nil {
		var simErr *dynamo.SimulationError
		if errors.As(err, &simErr) {
			return fmt.Errorf("stopped at step %d (t=%.3f): %w", simErr.Step, simErr.Time, err)
		}
		return err
	}
	elapsed := time.Since(start)

	runID, err := saveRun(st, preset, cfg, ps, result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d\n", result.StepsTaken)
	if result.Failure != "" {
		fmt.Printf("failed: %s\n", result.Failure)
	}
	fmt.Println("\nmetrics:")
	names := make([]string, 0, len(result.Metrics))
	for name := range result.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s: %.6f\n", name, result.Metrics[name])
	}
	return nil
}

func saveRun(st *storage.Store, label string, cfg *config.Config, ps []poles.Pole, result *dynamo.Result) (string, error) {
	return st.Save(storage.RunMetadata{
		Preset:        label,
		Seed:          cfg.Seed,
		Dt:            cfg.Integration.Dt,
		SimLength:     cfg.Integration.SimLength,
		StepsPerFrame: cfg.Integration.StepsPerFrame,
		Stepper:       cfg.Integration.Stepper,
		Input:         inputName(cfg),
		Gains:         cfg.Controller.Gains,
		Poles:         storage.NewPoleRecords(ps, cfg.Poles),
	}, result)
}

func inputName(cfg *config.Config) string {
	if cfg.Controller.Input == "" {
		return experiment.InputStateFeedback
	}
	return cfg.Controller.Input
}

func closedLoopPoles(cfg *config.Config) ([]poles.Pole, error) {
	p, err := plant.Build(cfg.PlantParameters())
	if err != nil {
		return nil, err
	}
	k := loopGains(cfg)
	return poles.Compute(control.ClosedLoop(p.A(), p.B(), k[:]))
}

func printPoles(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	p, err := plant.Build(cfg.PlantParameters())
	if err != nil {
		return err
	}
	k := loopGains(cfg)
	acl := control.ClosedLoop(p.A(), p.B(), k[:])
	ps, err := poles.Compute(acl)
	if err != nil {
		return err
	}
	c := cfg.Poles
	step := cfg.Integration.Dt

	fmt.Printf("gains: %v\n\n", k)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POLE\tCLASS\tFREQ (Hz)\tEULER")
	for _, pl := range ps {
		euler := "ok"
		if !pl.EulerStable(step) {
			euler = fmt.Sprintf("grows at dt=%g", step)
		}
		fmt.Fprintf(w, "%s\t%s\t%.3f\t%s\n", pl, c.Classify(pl), analysis.OscillationFrequency(pl), euler)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\noverall: %s (spectral abscissa %.4f)\n", c.Worst(ps), poles.SpectralAbscissa(ps))
	if pf, err := p.Prefilter(acl); err == nil {
		fmt.Printf("prefilter: %.4f\n", pf)
	}

	if ok, _ := cmd.Flags().GetBool("map"); ok {
		fmt.Println()
		fmt.Print(analysis.PoleMapToASCII(ps, c, 60, 15))
	}

	index, _ := cmd.Flags().GetInt("sweep")
	if index == 0 {
		return nil
	}
	if index < 1 || index > len(k) {
		return fmt.Errorf("--sweep must name a gain between 1 and %d", len(k))
	}
	from, _ := cmd.Flags().GetFloat64("from")
	to, _ := cmd.Flags().GetFloat64("to")
	n, _ := cmd.Flags().GetInt("points")
	if from == to {
		from, to = 0, 2*k[index-1]
	}
	points, err := analysis.GainSweep(p.A(), p.B(), k, index-1, from, to, n, c)
	if err != nil {
		return err
	}
	if lo, hi, ok := analysis.StableRange(points); ok {
		fmt.Printf("\nk%d stable within [%.1f, %.1f] of [%.1f, %.1f]\n", index, lo, hi, from, to)
	} else {
		fmt.Printf("\nk%d: no stable value in [%.1f, %.1f]\n", index, from, to)
	}
	if out, _ := cmd.Flags().GetString("render"); out != "" {
		if err := export.RenderPoleMap(out, points, c); err != nil {
			return err
		}
		fmt.Printf("pole map written to %s\n", out)
	}
	return nil
}

func printPlant(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	p, err := plant.Build(cfg.PlantParameters())
	if err != nil {
		return err
	}

	show := func(name string, m mat.Matrix) {
		fmt.Printf("%s =\n%v\n\n", name, mat.Formatted(m, mat.Prefix("    "), mat.Squeeze()))
	}
	show("A", p.A())
	show("B", p.B())
	show("C", p.C())
	show("D", p.D())
	fmt.Printf("J      = %.6f kg·m²\n", p.J())
	fmt.Printf("comdiv = %.6f\n", p.Comdiv())

	open, err := poles.Compute(p.A())
	if err != nil {
		return err
	}
	fmt.Print("\nopen-loop poles:")
	for _, pl := range open {
		fmt.Printf("  %s", pl)
	}
	fmt.Println()
	return nil
}
