package config

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"

	"gaussfit/domain/core"
	"gaussfit/domain/fit"
	"gaussfit/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Experiment ExperimentConfig
	Fit        FitConfig
	Scan       ScanConfig
	Storage    StorageConfig
	Output     OutputConfig
	LogLevel   string
}

// ExperimentConfig holds the generating distribution and the binning
type ExperimentConfig struct {
	SampleCount int
	Bins        int
	DomainLow   float64
	DomainHigh  float64
	TrueMean    float64
	TrueSigma   float64
	Method      fit.Method
	Seed        uint64
	Trials      int
	Workers     int
	Toys        int
}

// FitConfig holds minimizer budgets
type FitConfig struct {
	MaxIterations     int
	GradientTolerance float64
}

// ScanConfig holds the defaults for objective scans
type ScanConfig struct {
	Steps int
	Width float64
	Mode  fit.ScanMode
}

// StorageConfig holds trial store settings
type StorageConfig struct {
	Driver string
	URL    string
}

// OutputConfig holds report and artifact settings
type OutputConfig struct {
	PlotDir     string
	ReportEvery int
}

// Default returns the configuration of the reference exercise: 1000 draws
// from Normal(20, 10) binned into 50 bins over [-20, 60) and fitted by NLL.
func Default() *Config {
	return &Config{
		Experiment: ExperimentConfig{
			SampleCount: 1000,
			Bins:        50,
			DomainLow:   -20,
			DomainHigh:  60,
			TrueMean:    20,
			TrueSigma:   10,
			Method:      fit.MethodNLL,
			Seed:        42,
			Trials:      1000,
			Workers:     runtime.NumCPU(),
			Toys:        1000,
		},
		Fit: FitConfig{
			MaxIterations:     1000,
			GradientTolerance: 1e-5,
		},
		Scan: ScanConfig{
			Steps: 100,
			Width: 5,
			Mode:  fit.ScanFixed,
		},
		Storage: StorageConfig{
			Driver: "sqlite3",
			URL:    "gaussfit.db",
		},
		Output: OutputConfig{
			PlotDir:     ".",
			ReportEvery: 100,
		},
		LogLevel: "INFO",
	}
}

// Load reads configuration from environment variables. It only parses;
// callers apply their overrides and then call Validate.
func Load() (*Config, error) {
	config := Default()
	p := &envParser{}

	exp := &config.Experiment
	exp.SampleCount = p.int("SAMPLE_COUNT", exp.SampleCount)
	exp.Bins = p.int("BINS", exp.Bins)
	exp.DomainLow = p.float("DOMAIN_LOW", exp.DomainLow)
	exp.DomainHigh = p.float("DOMAIN_HIGH", exp.DomainHigh)
	exp.TrueMean = p.float("TRUE_MEAN", exp.TrueMean)
	exp.TrueSigma = p.float("TRUE_SIGMA", exp.TrueSigma)
	exp.Method = fit.Method(getEnvOrDefault("FIT_METHOD", string(exp.Method)))
	exp.Seed = p.uint("SEED", exp.Seed)
	exp.Trials = p.int("TRIALS", exp.Trials)
	exp.Workers = p.int("WORKERS", exp.Workers)
	exp.Toys = p.int("TOYS", exp.Toys)

	config.Fit.MaxIterations = p.int("MAX_ITERATIONS", config.Fit.MaxIterations)
	config.Fit.GradientTolerance = p.float("GRADIENT_TOLERANCE", config.Fit.GradientTolerance)

	config.Scan.Steps = p.int("SCAN_STEPS", config.Scan.Steps)
	config.Scan.Width = p.float("SCAN_WIDTH", config.Scan.Width)
	config.Scan.Mode = fit.ScanMode(getEnvOrDefault("SCAN_MODE", string(config.Scan.Mode)))

	config.Storage.Driver = getEnvOrDefault("DATABASE_DRIVER", config.Storage.Driver)
	config.Storage.URL = getEnvOrDefault("DATABASE_URL", config.Storage.URL)

	config.Output.PlotDir = getEnvOrDefault("PLOT_DIR", config.Output.PlotDir)
	config.Output.ReportEvery = p.int("REPORT_EVERY", config.Output.ReportEvery)

	config.LogLevel = getEnvOrDefault("LOG_LEVEL", config.LogLevel)

	if p.err != nil {
		return nil, errors.Wrap(p.err, "failed to parse environment")
	}

	return config, nil
}

// Validate rejects settings no experiment can run with
func (c *Config) Validate() error {
	exp := c.Experiment
	switch {
	case exp.SampleCount < 1:
		return errors.InvalidConfiguration(fmt.Sprintf("sample count must be positive, got %d", exp.SampleCount))
	case exp.Bins < 1:
		return errors.InvalidConfiguration(fmt.Sprintf("bin count must be positive, got %d", exp.Bins))
	case !isFinite(exp.DomainLow) || !isFinite(exp.DomainHigh):
		return errors.InvalidConfiguration("domain bounds must be finite")
	case exp.DomainLow >= exp.DomainHigh:
		return errors.InvalidConfiguration(fmt.Sprintf("domain low %g must be below high %g", exp.DomainLow, exp.DomainHigh))
	case !isFinite(exp.TrueMean):
		return errors.InvalidConfiguration("true mean must be finite")
	case !(exp.TrueSigma > 0) || math.IsInf(exp.TrueSigma, 0):
		return errors.InvalidConfiguration(fmt.Sprintf("true sigma must be positive, got %g", exp.TrueSigma))
	case exp.Trials < 1:
		return errors.InvalidConfiguration(fmt.Sprintf("trial count must be positive, got %d", exp.Trials))
	case exp.Workers < 1:
		return errors.InvalidConfiguration(fmt.Sprintf("worker count must be positive, got %d", exp.Workers))
	case exp.Toys < 1:
		return errors.InvalidConfiguration(fmt.Sprintf("toy count must be positive, got %d", exp.Toys))
	}

	if _, err := fit.ParseMethods(string(exp.Method)); err != nil {
		return err
	}
	if c.Fit.MaxIterations < 1 {
		return errors.InvalidConfiguration("max iterations must be positive")
	}
	if !(c.Fit.GradientTolerance > 0) {
		return errors.InvalidConfiguration("gradient tolerance must be positive")
	}
	if c.Scan.Steps < 3 {
		return errors.InvalidConfiguration(fmt.Sprintf("scan needs at least 3 steps, got %d", c.Scan.Steps))
	}
	if !(c.Scan.Width > 0) {
		return errors.InvalidConfiguration("scan width must be positive")
	}
	if !c.Scan.Mode.Valid() {
		return errors.InvalidConfiguration(fmt.Sprintf("unknown scan mode %q", c.Scan.Mode))
	}
	if c.Output.ReportEvery < 1 {
		return errors.InvalidConfiguration("report interval must be positive")
	}
	return nil
}

// Fingerprint hashes the experiment section so stored runs can be grouped
// by identical setups.
func (c *Config) Fingerprint() core.Hash {
	exp := c.Experiment
	return core.NewHashFromParts(
		strconv.Itoa(exp.SampleCount),
		strconv.Itoa(exp.Bins),
		strconv.FormatFloat(exp.DomainLow, 'g', -1, 64),
		strconv.FormatFloat(exp.DomainHigh, 'g', -1, 64),
		strconv.FormatFloat(exp.TrueMean, 'g', -1, 64),
		strconv.FormatFloat(exp.TrueSigma, 'g', -1, 64),
		string(exp.Method),
		strconv.FormatUint(exp.Seed, 10),
	)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// envParser collects the first malformed variable instead of silently
// falling back to the default.
type envParser struct {
	err error
}

func (p *envParser) fail(key, value string, cause error) {
	if p.err == nil {
		p.err = errors.InvalidConfiguration(fmt.Sprintf("%s=%q is not valid: %v", key, value, cause))
	}
}

func (p *envParser) int(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		p.fail(key, value, err)
		return defaultValue
	}
	return intValue
}

func (p *envParser) uint(key string, defaultValue uint64) uint64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	uintValue, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		p.fail(key, value, err)
		return defaultValue
	}
	return uintValue
}

func (p *envParser) float(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		p.fail(key, value, err)
		return defaultValue
	}
	return floatValue
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
