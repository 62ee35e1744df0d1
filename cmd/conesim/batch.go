package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/san-kum/conesim/internal/automation"
	"github.com/san-kum/conesim/internal/storage"
	"github.com/spf13/cobra"
)

func runScenario(cmd *cobra.Command, args []string) error {
	base, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if sc.Name != "" {
		fmt.Printf("scenario: %s\n", sc.Name)
	}
	if sc.Description != "" {
		fmt.Printf("%s\n", sc.Description)
	}
	fmt.Println()

	results, runErr := automation.RunScenario(ctx, sc, base, newLogger())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tLABEL\tRUN\tSTEPS\tPEAK TILT\tRESULT")
	for i, r := range results {
		ps, err := closedLoopPoles(r.Config)
		if err != nil {
			return err
		}
		id, err := saveRun(st, r.Label, r.Config, ps, r.Result)
		if err != nil {
			return err
		}
		outcome := "ok"
		if r.Result.Failure != "" {
			outcome = r.Result.Failure
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%.4f\t%s\n",
			i+1, r.Label, id[:8], r.Result.StepsTaken, r.Result.Metrics["peak_tilt"], outcome)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return runErr
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	trials, _ := cmd.Flags().GetInt("trials")
	details, _ := cmd.Flags().GetBool("details")

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("running %d trials from random initial states (seed %d)...\n\n", trials, cfg.Seed)
	start := time.Now()
	results, err := automation.RunMonteCarlo(ctx, cfg.Experiment(), trials, cfg.Seed)
	if err != nil {
		return err
	}

	if details {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TRIAL\tSEED\tx1(0)\tx2(0)\tx3(0)\tx4(0)\tPEAK TILT\tRESULT")
		for _, t := range results {
			outcome := "ok"
			if !t.Survived() {
				outcome = t.Failure
			}
			fmt.Fprintf(w, "%d\t%d\t%+.3f\t%+.3f\t%+.3f\t%+.3f\t%.4f\t%s\n",
				t.ID, t.Seed, t.Init[0], t.Init[1], t.Init[2], t.Init[3], t.PeakTilt, outcome)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Println()
	}

	survived, failed := automation.MonteCarloStats(results)
	fmt.Printf("survived: %d/%d (%.1f%%)\n", survived, len(results), 100*float64(survived)/float64(len(results)))
	fmt.Printf("failed: %d\n", failed)
	fmt.Printf("elapsed: %v\n", time.Since(start).Round(time.Millisecond))
	return nil
}
