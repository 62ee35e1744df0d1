package main

import (
	"fmt"
	"math"
	"os"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/conesim/internal/analysis"
	"github.com/san-kum/conesim/internal/export"
	"github.com/san-kum/conesim/internal/poles"
	"github.com/san-kum/conesim/internal/storage"
	"github.com/spf13/cobra"
)

var captions = []string{"cart position (m)", "cart velocity (m/s)", "tilt (rad)", "tilt rate (rad/s)"}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tPRESET\tSTEPS\tDT\tSTEPPER\tINPUT\tRESULT")

	for _, run := range runs {
		outcome := "ok"
		if run.Failure != "" {
			outcome = run.Failure
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%.4fs\t%s\t%s\t%s\n",
			run.ID[:8],
			run.Timestamp.Local().Format("2006-01-02 15:04:05"),
			run.Preset,
			run.StepsTaken,
			run.SimLength,
			run.Dt,
			run.Stepper,
			run.Input,
			outcome,
		)
	}

	return w.Flush()
}

func loadRun(id string) (*storage.RunMetadata, *storage.Trajectory, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(id)
	if err != nil {
		return nil, nil, err
	}
	traj, err := st.LoadStates(meta.ID)
	if err != nil {
		return nil, nil, err
	}
	if traj.Len() == 0 {
		return nil, nil, fmt.Errorf("run %s has no samples", meta.ID)
	}
	return meta, traj, nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, traj, err := loadRun(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("gains: %v\n", meta.Gains)
	fmt.Printf("samples: %d\n\n", traj.Len())

	if phase, _ := cmd.Flags().GetBool("phase"); phase {
		portrait := analysis.NewPhasePortrait(traj.States, 2, 3)
		fmt.Println("tilt rate vs tilt")
		fmt.Print(analysis.PhasePortraitToASCII(portrait, 70, 24))
		return nil
	}

	for i, caption := range captions {
		graph := asciigraph.Plot(traj.Column(i),
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(caption),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	graph := asciigraph.Plot(traj.Forces,
		asciigraph.Height(6),
		asciigraph.Width(80),
		asciigraph.Caption("force"),
	)
	fmt.Println(graph)
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, traj, err := loadRun(args[0])
	if err != nil {
		return err
	}
	return storage.ExportJSON(os.Stdout, meta, traj)
}

func exportCSV(cmd *cobra.Command, args []string) error {
	return storage.New(dataDir).CopyStates(os.Stdout, args[0])
}

func renderRun(cmd *cobra.Command, args []string) error {
	_, traj, err := loadRun(args[0])
	if err != nil {
		return err
	}
	columns, _ := cmd.Flags().GetIntSlice("columns")
	if err := export.RenderTrajectory(args[1], traj.Times, traj.States, columns...); err != nil {
		return err
	}
	fmt.Printf("written to %s\n", args[1])
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	meta, traj, err := loadRun(args[0])
	if err != nil {
		return err
	}
	column, _ := cmd.Flags().GetInt("column")
	if column < 0 || column >= len(traj.States[0]) {
		return fmt.Errorf("--column must be between 0 and %d", len(traj.States[0])-1)
	}

	// Samples are recorded once per frame.
	sample := meta.Dt * float64(max(meta.StepsPerFrame, 1))
	data := traj.Column(column)

	fmt.Printf("frequency analysis: %s\n", meta.ID)
	fmt.Printf("signal: x%d, %d samples every %gs\n\n", column+1, len(data), sample)

	ps := analysis.PowerSpectrum(data)
	if len(ps) > 8 {
		graph := asciigraph.Plot(ps[:len(ps)/4],
			asciigraph.Height(15),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("power spectrum (x%d)", column+1)),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	freq, err := analysis.DominantFrequency(data, sample)
	if err != nil {
		return err
	}
	fmt.Printf("dominant frequency: %.3f Hz\n", freq)
	if freq > 0 {
		fmt.Printf("period: %.3f s\n", 1.0/freq)
	}

	if rate, err := analysis.GrowthRate(traj.Times, data); err == nil {
		fmt.Printf("fitted growth rate: %+.4f 1/s\n", rate)
	}

	var predicted float64
	for _, p := range meta.Poles {
		predicted = math.Max(predicted, analysis.OscillationFrequency(poles.Pole{Value: complex(p.Real, p.Imag)}))
	}
	if predicted > 0 {
		fmt.Printf("fastest pole pair rings at: %.3f Hz\n", predicted)
	}
	return nil
}
