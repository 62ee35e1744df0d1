package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/san-kum/conesim/internal/config"
	"github.com/san-kum/conesim/internal/control"
	"github.com/san-kum/conesim/internal/experiment"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	dataDir    string
	configFile string
	preset     string
	verbose    bool

	dt        float64
	simLength int
	ministeps int
	stepper   string
	input     string
	gains     []float64
	force     float64
	refPos    float64
	refTilt   float64
	seed      int64
	random    bool
	initPos   float64
	initTilt  float64

	frameRate int
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "conesim",
		Short:        "ball-on-cone balancing simulator",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".conesim", "data directory")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "apply a named preset")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "simulate to completion or watchdog failure and store the run",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	addSimFlags(runCmd)

	polesCmd := &cobra.Command{
		Use:   "poles",
		Short: "print the classified closed-loop poles",
		Args:  cobra.NoArgs,
		RunE:  printPoles,
	}
	addSimFlags(polesCmd)
	polesCmd.Flags().Bool("map", false, "draw the poles in the complex plane")
	polesCmd.Flags().Int("sweep", 0, "sweep gain k1..k4 and report the stable range")
	polesCmd.Flags().Float64("from", 0, "sweep start value")
	polesCmd.Flags().Float64("to", 0, "sweep end value")
	polesCmd.Flags().Int("points", 101, "sweep points")
	polesCmd.Flags().String("render", "", "render the sweep pole map to an image file")

	plantCmd := &cobra.Command{
		Use:   "plant",
		Short: "print the state-space model",
		Args:  cobra.NoArgs,
		RunE:  printPlant,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().Bool("phase", false, "tilt against tilt rate instead of time series")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run data to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	renderCmd := &cobra.Command{
		Use:   "render [run_id] [out.png|out.svg]",
		Short: "render a run to an image file",
		Args:  cobra.ExactArgs(2),
		RunE:  renderRun,
	}
	renderCmd.Flags().IntSlice("columns", nil, "state indices to draw (default all)")

	spectrumCmd := &cobra.Command{
		Use:   "spectrum [run_id]",
		Short: "frequency analysis of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	spectrumCmd.Flags().Int("column", 2, "state index to analyse")

	compareCmd := &cobra.Command{
		Use:   "compare",
		Short: "compare euler and rk4 on the same configuration",
		Args:  cobra.NoArgs,
		RunE:  compareIntegrators,
	}
	addSimFlags(compareCmd)

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search over gain scale factors",
		Args:  cobra.NoArgs,
		RunE:  tuneGains,
	}
	addSimFlags(tuneCmd)
	tuneCmd.Flags().StringSlice("params", []string{"k1", "k3"}, "gains to scale")
	tuneCmd.Flags().Float64Slice("factors", []float64{0.8, 0.9, 1, 1.1, 1.2}, "scale factors tried for each gain")
	tuneCmd.Flags().String("metric", "quadratic_cost", "metric to minimise")
	tuneCmd.Flags().Int("top", 5, "candidates to print")
	tuneCmd.Flags().Int("workers", 0, "parallel experiments (0 = one per CPU)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.ListPresets() {
				fmt.Printf("  %-8s %s\n", name, config.Describe(name))
			}
			return nil
		},
	}

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "balance interactively in the terminal",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	addSimFlags(liveCmd)
	liveCmd.Flags().IntVar(&frameRate, "fps", 60, "frame rate")
	liveCmd.Flags().Bool("watch", false, "reload gains when the config file changes")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "serve a live session over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServer,
	}
	addSimFlags(serveCmd)
	serveCmd.Flags().IntVar(&frameRate, "fps", 60, "frame rate")
	serveCmd.Flags().String("bind", "127.0.0.1", "listen address")
	serveCmd.Flags().Int("port", 8080, "listen port")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run and store every step of a scenario file",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	addSimFlags(scenarioCmd)

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo",
		Short: "run trials from random initial states",
		Args:  cobra.NoArgs,
		RunE:  runMonteCarlo,
	}
	addSimFlags(monteCarloCmd)
	monteCarloCmd.Flags().Int("trials", 100, "number of trials")
	monteCarloCmd.Flags().Bool("details", false, "print every trial")

	rootCmd.AddCommand(runCmd, polesCmd, plantCmd, listCmd, plotCmd, exportJSONCmd, exportCSVCmd,
		renderCmd, spectrumCmd, compareCmd, tuneCmd, presetsCmd, liveCmd, serveCmd,
		scenarioCmd, monteCarloCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addSimFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "timestep")
	cmd.Flags().IntVar(&simLength, "steps", config.DefaultSimLength, "step budget")
	cmd.Flags().IntVar(&ministeps, "ministeps", config.DefaultStepsPerFrame, "steps per frame")
	cmd.Flags().StringVar(&stepper, "stepper", config.DefaultStepper, "stepper (euler, rk4)")
	cmd.Flags().StringVar(&input, "input", experiment.InputStateFeedback, "force input (state-feedback, feedback-law, manual, none)")
	cmd.Flags().Float64SliceVar(&gains, "gains", control.DefaultGains.Slice(), "gains k1,k2,k3,k4")
	cmd.Flags().Float64Var(&force, "force", 0, "constant force of the manual input")
	cmd.Flags().Float64Var(&refPos, "ref-position", 0, "position setpoint of the feedback law")
	cmd.Flags().Float64Var(&refTilt, "ref-tilt", 0, "tilt setpoint of the feedback law")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed")
	cmd.Flags().BoolVar(&random, "random", false, "draw a random initial state")
	cmd.Flags().Float64Var(&initPos, "position", 0, "initial position (m)")
	cmd.Flags().Float64Var(&initTilt, "tilt", 0.05, "initial tilt (rad)")
}

// loadConfig builds the configuration from defaults, the config file, the
// preset and finally the flags the user actually set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if preset != "" && !config.Apply(cfg, preset) {
		return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
	}

	flags := cmd.Flags()
	if flags.Changed("dt") {
		cfg.Integration.Dt = dt
	}
	if flags.Changed("steps") {
		cfg.Integration.SimLength = simLength
	}
	if flags.Changed("ministeps") {
		cfg.Integration.StepsPerFrame = ministeps
	}
	if flags.Changed("stepper") {
		cfg.Integration.Stepper = stepper
	}
	if flags.Changed("input") {
		cfg.Controller.Input = input
	}
	if flags.Changed("gains") {
		k, err := control.GainsFromSlice(gains)
		if err != nil {
			return nil, fmt.Errorf("--gains: %w", err)
		}
		cfg.Controller.Gains = k
	}
	if flags.Changed("force") {
		cfg.Controller.Force = force
	}
	if flags.Changed("ref-position") {
		cfg.Controller.Reference[0] = refPos
	}
	if flags.Changed("ref-tilt") {
		cfg.Controller.Reference[1] = refTilt
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("random") {
		cfg.InitState.Random = random
	}
	if flags.Changed("position") {
		cfg.InitState.Position = initPos
	}
	if flags.Changed("tilt") {
		cfg.InitState.Tilt = initTilt
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loopGains are the gains that shape the closed-loop poles for the
// configured input.
func loopGains(cfg *config.Config) control.Gains {
	if cfg.Controller.Input == experiment.InputNone {
		return control.Gains{}
	}
	return cfg.Controller.Gains
}

// newLogger is silent unless -v is given.
func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// newServiceLogger always logs JSON to stderr; -v adds request lines.
func newServiceLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l.Named("conesim")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}
