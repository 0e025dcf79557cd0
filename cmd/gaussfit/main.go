package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"gaussfit/adapters/rng"
	"gaussfit/domain/fit"
	"gaussfit/internal"
	"gaussfit/internal/config"
	"gaussfit/internal/errors"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Exit codes
const (
	exitOK                   = 0
	exitError                = 1
	exitInvalidConfiguration = 2
	exitFitNonConvergence    = 3
	exitDegenerateHistogram  = 4
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	stop()
	os.Exit(exitCode(err))
}

// exitCode maps an error to the process exit status
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case stderrors.Is(err, errors.ErrInvalidConfiguration):
		return exitInvalidConfiguration
	case stderrors.Is(err, errors.ErrFitNonConvergence):
		return exitFitNonConvergence
	case stderrors.Is(err, errors.ErrDegenerateHistogram):
		return exitDegenerateHistogram
	default:
		return exitError
	}
}

// app carries what every subcommand needs once flags are parsed
type app struct {
	cfg    *config.Config
	logger *internal.Logger
	rng    *rng.SeededAdapter
	out    io.Writer
	errOut io.Writer
	flags  globalFlags
}

// globalFlags override the environment when set on the command line
type globalFlags struct {
	samples       int
	bins          int
	low           float64
	high          float64
	mean          float64
	sigma         float64
	method        string
	seed          uint64
	workers       int
	maxIterations int
	tolerance     float64
	plotDir       string
	logLevel      string
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut, rng: rng.NewSeededAdapter()}

	root := &cobra.Command{
		Use:   "gaussfit",
		Short: "Fit Gaussians to binned samples with chi2 and Poisson likelihood objectives",
		Long: `gaussfit draws samples from a normal distribution, bins them, and fits a
Gaussian by minimizing either Neyman's chi-squared or the Poisson negative
log-likelihood. It scans the objective around the minimum, repeats the
experiment to study the estimators, and runs toy goodness-of-fit tests.

Every option can be set through the environment (optionally from .env);
command-line flags win over the environment.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Flags())
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errors.InvalidConfiguration(err.Error())
	})

	f := root.PersistentFlags()
	f.IntVar(&a.flags.samples, "samples", 0, "samples per experiment (SAMPLE_COUNT)")
	f.IntVar(&a.flags.bins, "bins", 0, "number of bins (BINS)")
	f.Float64Var(&a.flags.low, "low", 0, "lower histogram edge (DOMAIN_LOW)")
	f.Float64Var(&a.flags.high, "high", 0, "upper histogram edge (DOMAIN_HIGH)")
	f.Float64Var(&a.flags.mean, "mean", 0, "true mean of the generator (TRUE_MEAN)")
	f.Float64Var(&a.flags.sigma, "sigma", 0, "true sigma of the generator (TRUE_SIGMA)")
	f.StringVar(&a.flags.method, "method", "", "fit method: chi2, nll or both (FIT_METHOD)")
	f.Uint64Var(&a.flags.seed, "seed", 0, "base seed, 0 derives one from the clock (SEED)")
	f.IntVar(&a.flags.workers, "workers", 0, "parallel workers for trials and toys (WORKERS)")
	f.IntVar(&a.flags.maxIterations, "max-iterations", 0, "minimizer iteration budget (MAX_ITERATIONS)")
	f.Float64Var(&a.flags.tolerance, "tolerance", 0, "gradient convergence tolerance (GRADIENT_TOLERANCE)")
	f.StringVar(&a.flags.plotDir, "plot-dir", "", "directory for PNG plots (PLOT_DIR)")
	f.StringVar(&a.flags.logLevel, "log-level", "", "ERROR, WARN, INFO, DEBUG or TRACE (LOG_LEVEL)")

	root.AddCommand(
		newFitCmd(a),
		newScanCmd(a),
		newTrialsCmd(a),
		newGofCmd(a),
		newGenerateCmd(a),
		newMigrateCmd(a),
	)
	return root
}

// setup loads the environment, applies explicitly set flags and validates
func (a *app) setup(flags *pflag.FlagSet) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	exp := &cfg.Experiment
	if flags.Changed("samples") {
		exp.SampleCount = a.flags.samples
	}
	if flags.Changed("bins") {
		exp.Bins = a.flags.bins
	}
	if flags.Changed("low") {
		exp.DomainLow = a.flags.low
	}
	if flags.Changed("high") {
		exp.DomainHigh = a.flags.high
	}
	if flags.Changed("mean") {
		exp.TrueMean = a.flags.mean
	}
	if flags.Changed("sigma") {
		exp.TrueSigma = a.flags.sigma
	}
	if flags.Changed("method") {
		exp.Method = fit.Method(a.flags.method)
	}
	if flags.Changed("seed") {
		exp.Seed = a.flags.seed
	}
	if flags.Changed("workers") {
		exp.Workers = a.flags.workers
	}
	if flags.Changed("max-iterations") {
		cfg.Fit.MaxIterations = a.flags.maxIterations
	}
	if flags.Changed("tolerance") {
		cfg.Fit.GradientTolerance = a.flags.tolerance
	}
	if flags.Changed("plot-dir") {
		cfg.Output.PlotDir = a.flags.plotDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.flags.logLevel
	}
	if err := applyCommandFlags(cfg, flags); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.logger = internal.NewLoggerTo(a.errOut, internal.ParseLogLevel(cfg.LogLevel))
	if exp.Seed == 0 {
		exp.Seed = a.rng.ResolveSeed(0)
		a.logger.Info("seed 0 resolved to %d", exp.Seed)
	}
	a.cfg = cfg
	return nil
}

// applyCommandFlags copies subcommand flags that shadow config values
func applyCommandFlags(cfg *config.Config, flags *pflag.FlagSet) error {
	changed := func(name string) bool {
		return flags.Lookup(name) != nil && flags.Changed(name)
	}

	ints := map[string]*int{
		"trials":       &cfg.Experiment.Trials,
		"toys":         &cfg.Experiment.Toys,
		"report-every": &cfg.Output.ReportEvery,
		"steps":        &cfg.Scan.Steps,
	}
	for name, dst := range ints {
		if !changed(name) {
			continue
		}
		v, err := flags.GetInt(name)
		if err != nil {
			return errors.InvalidConfiguration(err.Error())
		}
		*dst = v
	}
	if changed("width") {
		v, err := flags.GetFloat64("width")
		if err != nil {
			return errors.InvalidConfiguration(err.Error())
		}
		cfg.Scan.Width = v
	}
	if changed("mode") {
		v, err := flags.GetString("mode")
		if err != nil {
			return errors.InvalidConfiguration(err.Error())
		}
		cfg.Scan.Mode = fit.ScanMode(v)
	}
	return nil
}
