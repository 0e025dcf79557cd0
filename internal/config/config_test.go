package config

import (
	stderrors "errors"
	"testing"

	"gaussfit/domain/fit"
	"gaussfit/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Experiment.SampleCount)
	assert.Equal(t, 50, cfg.Experiment.Bins)
	assert.Equal(t, -20.0, cfg.Experiment.DomainLow)
	assert.Equal(t, 60.0, cfg.Experiment.DomainHigh)
	assert.Equal(t, fit.MethodNLL, cfg.Experiment.Method)
	assert.Equal(t, fit.ScanFixed, cfg.Scan.Mode)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SAMPLE_COUNT", "25")
	t.Setenv("BINS", "100")
	t.Setenv("DOMAIN_LOW", "0")
	t.Setenv("DOMAIN_HIGH", "100")
	t.Setenv("TRUE_MEAN", "50")
	t.Setenv("FIT_METHOD", "both")
	t.Setenv("SCAN_MODE", "profiled")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Experiment.SampleCount)
	assert.Equal(t, 100, cfg.Experiment.Bins)
	assert.Equal(t, 50.0, cfg.Experiment.TrueMean)
	assert.Equal(t, fit.Method("both"), cfg.Experiment.Method)
	assert.Equal(t, fit.ScanProfiled, cfg.Scan.Mode)
}

func TestLoad_RejectsMalformedNumber(t *testing.T) {
	t.Setenv("BINS", "fifty")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))
	assert.Contains(t, err.Error(), "BINS")
}

func TestLoad_LeavesValidationToCaller(t *testing.T) {
	t.Setenv("SAMPLE_COUNT", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Experiment.SampleCount)

	err = cfg.Validate()
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))

	cfg.Experiment.SampleCount = 100
	assert.NoError(t, cfg.Validate())
}

func TestValidate_InvalidConfigurations(t *testing.T) {
	cases := map[string]func(c *Config){
		"zero sigma":       func(c *Config) { c.Experiment.TrueSigma = 0 },
		"negative sigma":   func(c *Config) { c.Experiment.TrueSigma = -1 },
		"zero samples":     func(c *Config) { c.Experiment.SampleCount = 0 },
		"inverted domain":  func(c *Config) { c.Experiment.DomainLow = 60; c.Experiment.DomainHigh = -20 },
		"empty domain":     func(c *Config) { c.Experiment.DomainHigh = c.Experiment.DomainLow },
		"no bins":          func(c *Config) { c.Experiment.Bins = 0 },
		"unknown method":   func(c *Config) { c.Experiment.Method = "lsq" },
		"short scan":       func(c *Config) { c.Scan.Steps = 2 },
		"unknown scanmode": func(c *Config) { c.Scan.Mode = "wiggle" },
		"zero tolerance":   func(c *Config) { c.Fit.GradientTolerance = 0 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration), "got %v", err)
		})
	}
}

func TestFingerprint_StableAndSensitive(t *testing.T) {
	a := Default()
	b := Default()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.Experiment.Seed = 7
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}
