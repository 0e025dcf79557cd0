package plot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gaussfit/adapters/rng"
	"gaussfit/domain/fit"
	"gaussfit/internal/experiment"
	"gaussfit/internal/fitter"
	"gaussfit/internal/objective"
	"gaussfit/internal/scanner"
	"gaussfit/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertPNG(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), data[:8])
}

func TestFitAndScanPlots(t *testing.T) {
	h, err := testkit.ReferenceHistogram(testkit.ReferenceSamples, 4)
	require.NoError(t, err)
	results, err := fitter.FitBoth(h, fitter.DefaultOptions(fit.MethodNLL), nil)
	require.NoError(t, err)

	dir := t.TempDir()
	fitPath := filepath.Join(dir, "fit.png")
	require.NoError(t, FitPlot(fitPath, h, results[fit.MethodChi2], results[fit.MethodNLL]))
	assertPNG(t, fitPath)

	f, err := fitter.New(fitter.DefaultOptions(fit.MethodNLL), nil)
	require.NoError(t, err)
	scan, err := scanner.New(f, nil).Scan(objective.NewNLL(h), results[fit.MethodNLL], scanner.DefaultRequest(fit.ParamMean))
	require.NoError(t, err)

	scanPath := filepath.Join(dir, "scan.png")
	require.NoError(t, ScanPlot(scanPath, scan))
	assertPNG(t, scanPath)
}

func TestEnsembleAndToyPlots(t *testing.T) {
	settings := experiment.Settings{
		SampleCount: 500,
		Bins:        testkit.ReferenceBins,
		DomainLow:   testkit.ReferenceLow,
		DomainHigh:  testkit.ReferenceHigh,
		TrueMean:    testkit.ReferenceMean,
		TrueSigma:   testkit.ReferenceSigma,
		Methods:     []fit.Method{fit.MethodNLL},
		Seed:        3,
		Workers:     2,
		Fit:         fitter.DefaultOptions(fit.MethodNLL),
	}
	r, err := experiment.NewRunner(settings, rng.NewSeededAdapter())
	require.NoError(t, err)
	ens, err := r.Run(context.Background(), 20)
	require.NoError(t, err)

	dir := t.TempDir()
	ensPath := filepath.Join(dir, "ensemble.png")
	require.NoError(t, EnsemblePlot(ensPath, ens, fit.MethodNLL))
	assertPNG(t, ensPath)

	single, err := r.RunSingle(context.Background())
	require.NoError(t, err)
	toys, err := r.ToyGoodnessOfFit(context.Background(), single.Histogram, single.Results[fit.MethodNLL], 50)
	require.NoError(t, err)
	toyPath := filepath.Join(dir, "toys.png")
	require.NoError(t, ToyPlot(toyPath, toys))
	assertPNG(t, toyPath)
}

func TestPlots_RejectEmptyInput(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, ScanPlot(filepath.Join(dir, "scan.png"), &fit.ScanResult{}))
	assert.Error(t, ToyPlot(filepath.Join(dir, "toys.png"), &experiment.ToyResult{}))
	assert.Error(t, EnsemblePlot(filepath.Join(dir, "ens.png"), &experiment.Ensemble{}, fit.MethodNLL))
}
