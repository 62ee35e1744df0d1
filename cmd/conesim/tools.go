package main

import (
	"fmt"
	"math"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/san-kum/conesim/internal/analysis"
	"github.com/san-kum/conesim/internal/dynamo"
	"github.com/san-kum/conesim/internal/experiment"
	"github.com/san-kum/conesim/internal/optim"
	"github.com/spf13/cobra"
)

func compareIntegrators(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	steppers := experiment.NewRegistry().ListSteppers()
	results := make(map[string]*dynamo.Result, len(steppers))

	fmt.Printf("comparing steppers (dt=%g, %d steps)\n\n", cfg.Integration.Dt, cfg.Integration.SimLength)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEPPER\tFINAL x1\tFINAL x3\tPEAK TILT\tSTEPS\tTIME")
	for _, name := range steppers {
		ec := cfg.Experiment()
		ec.Stepper = name
		exp := experiment.New(ec)
		if err := exp.Setup(); err != nil {
			return err
		}
		start := time.Now()
		res, err := exp.Run(ctx)
		if err != nil {
			return err
		}
		elapsed := time.Since(start)
		results[name] = res

		last := res.States[len(res.States)-1]
		fmt.Fprintf(w, "%s\t%+.6f\t%+.6f\t%.6f\t%d\t%v\n",
			name, last[0], last[2], res.Metrics["peak_tilt"], res.StepsTaken, elapsed.Round(time.Microsecond))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	a, b := results["euler"], results["rk4"]
	if a != nil && b != nil {
		n := min(len(a.States), len(b.States))
		maxDiff := 0.0
		for i := 0; i < n; i++ {
			maxDiff = math.Max(maxDiff, math.Abs(a.States[i][2]-b.States[i][2]))
		}
		fmt.Printf("\nmax |Δ tilt| euler vs rk4: %.3e rad\n", maxDiff)
	}

	ps, err := closedLoopPoles(cfg)
	if err != nil {
		return err
	}
	fmt.Println("\npole growth under euler:")
	for _, p := range ps {
		fmt.Printf("  %-20s Re λ %+.4f  euler %+.4f\n", p, p.Real(), analysis.EulerGrowthRate(p, cfg.Integration.Dt))
	}
	return nil
}

func tuneGains(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	params, _ := cmd.Flags().GetStringSlice("params")
	factors, _ := cmd.Flags().GetFloat64Slice("factors")
	metric, _ := cmd.Flags().GetString("metric")
	top, _ := cmd.Flags().GetInt("top")
	workers, _ := cmd.Flags().GetInt("workers")

	ranges := make([][]float64, len(params))
	for i, p := range params {
		if !isGainParam(p) {
			return fmt.Errorf("unknown gain %q (want one of %s)", p, strings.Join(optim.GainParams, ", "))
		}
		ranges[i] = factors
	}

	base := cfg.Controller.Gains
	build := func(scale map[string]float64) (*experiment.Experiment, error) {
		ec := cfg.Experiment()
		ec.Gains = optim.ScaleGains(base, scale)
		exp := experiment.New(ec)
		return exp, exp.Setup()
	}

	ctx, cancel := signalContext()
	defer cancel()

	g := optim.NewGridSearch(params, ranges)
	g.SetWorkers(workers)
	fmt.Printf("evaluating %d candidates, minimising %s...\n\n", g.Size(), metric)

	start := time.Now()
	all, err := g.Evaluate(ctx, build, metric)
	if err != nil {
		return err
	}

	if top <= 0 || top > len(all) {
		top = len(all)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "RANK\t%s\tGAINS\t%s\n", strings.ToUpper(strings.Join(params, "\t")), strings.ToUpper(metric))
	for i, c := range all[:top] {
		cols := make([]string, len(params))
		for j, p := range params {
			cols[j] = fmt.Sprintf("x%.2f", c.Params[p])
		}
		value := fmt.Sprintf("%.6g", c.Value)
		if c.Failure != "" {
			value = "failed: " + c.Failure
		}
		fmt.Fprintf(w, "%d\t%s\t%v\t%s\n", i+1, strings.Join(cols, "\t"), optim.ScaleGains(base, c.Params), value)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d candidates in %v\n", len(all), time.Since(start).Round(time.Millisecond))
	return nil
}

func isGainParam(name string) bool {
	for _, p := range optim.GainParams {
		if p == name {
			return true
		}
	}
	return false
}
