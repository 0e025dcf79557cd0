package fitter

import (
	stderrors "errors"
	"math"
	"math/rand/v2"
	"testing"

	"gaussfit/domain/fit"
	"gaussfit/internal"
	"gaussfit/internal/errors"
	"gaussfit/internal/histogram"
	"gaussfit/internal/objective"
	"gaussfit/internal/sampler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleHistogram(t *testing.T, n int, seed uint64) *histogram.Histogram {
	t.Helper()
	s, err := sampler.New(20, 10, rand.NewPCG(seed, seed^0x5eed))
	require.NoError(t, err)
	h, err := histogram.New("sample", 50, -20, 60)
	require.NoError(t, err)
	require.NoError(t, s.DrawInto(h, n))
	return h
}

func newFitter(t *testing.T, method fit.Method) *Fitter {
	t.Helper()
	f, err := New(DefaultOptions(method), internal.NewNopLogger())
	require.NoError(t, err)
	return f
}

func TestFit_RecoversTruth(t *testing.T) {
	h := sampleHistogram(t, 1000, 7)

	for _, method := range []fit.Method{fit.MethodChi2, fit.MethodNLL} {
		t.Run(string(method), func(t *testing.T) {
			res, err := newFitter(t, method).FitAuto(h)
			require.NoError(t, err)

			mean := res.Param(fit.ParamMean)
			sigma := res.Param(fit.ParamSigma)
			assert.InDelta(t, 20, mean.Value, 4*mean.Error)
			assert.InDelta(t, 10, sigma.Value, 4*sigma.Error)
			assert.Greater(t, sigma.Value, 0.0)
			assert.Equal(t, 1000, res.Entries)
			assert.Equal(t, method, res.Method)
			assert.GreaterOrEqual(t, res.PValue, 0.0)
			assert.LessOrEqual(t, res.PValue, 1.0)
		})
	}
}

func TestFit_NLLMeanErrorMatchesStandardError(t *testing.T) {
	h := sampleHistogram(t, 1000, 11)

	res, err := newFitter(t, fit.MethodNLL).FitAuto(h)
	require.NoError(t, err)

	// sigma/sqrt(N) for N=1000, sigma=10
	assert.InDelta(t, 0.316, res.Param(fit.ParamMean).Error, 0.04)
	assert.Equal(t, 47, res.NDF)
}

func TestFit_MethodsAgreeOnMean(t *testing.T) {
	h := sampleHistogram(t, 1000, 3)

	results, err := FitBoth(h, DefaultOptions(fit.MethodNLL), nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	chi2 := results[fit.MethodChi2].Param(fit.ParamMean)
	nll := results[fit.MethodNLL].Param(fit.ParamMean)
	assert.LessOrEqual(t, math.Abs(chi2.Value-nll.Value), math.Max(chi2.Error, nll.Error))
}

func TestFit_LargeSamplesWithinFiveStandardErrors(t *testing.T) {
	if testing.Short() {
		t.Skip("repeated large fits")
	}
	f := newFitter(t, fit.MethodNLL)
	for seed := uint64(100); seed < 120; seed++ {
		h := sampleHistogram(t, 10000, seed)
		res, err := f.FitAuto(h)
		require.NoError(t, err, "seed %d", seed)
		mean := res.Param(fit.ParamMean)
		assert.InDelta(t, 20, mean.Value, 5*mean.Error, "seed %d", seed)
	}
}

func TestFit_CovarianceIsConsistent(t *testing.T) {
	h := sampleHistogram(t, 2000, 5)
	res, err := newFitter(t, fit.MethodNLL).FitAuto(h)
	require.NoError(t, err)

	for i := fit.ParamIndex(0); i < fit.NumParams; i++ {
		assert.InDelta(t, math.Sqrt(res.Covariance[i][i]), res.Param(i).Error, 1e-12)
		assert.InDelta(t, 1, res.Correlation(i, i), 1e-9)
		for j := fit.ParamIndex(0); j < fit.NumParams; j++ {
			assert.InDelta(t, res.Covariance[i][j], res.Covariance[j][i], 1e-9)
			assert.LessOrEqual(t, math.Abs(res.Correlation(i, j)), 1.0+1e-9)
		}
	}
}

func TestFit_NegativeSigmaGuessReportsMagnitude(t *testing.T) {
	h := sampleHistogram(t, 1000, 9)
	guess, err := InitialGuess(h)
	require.NoError(t, err)
	guess.Sigma = -guess.Sigma

	res, err := newFitter(t, fit.MethodNLL).Fit(h, guess)
	require.NoError(t, err)
	assert.InDelta(t, 10, res.Param(fit.ParamSigma).Value, 1.5)
}

func TestFit_DegenerateHistogram(t *testing.T) {
	counts := make([]int, 50)
	counts[24] = 600
	counts[25] = 400
	h, err := histogram.FromCounts("spike", -20, 60, counts, 0, 0)
	require.NoError(t, err)

	for _, method := range []fit.Method{fit.MethodChi2, fit.MethodNLL} {
		_, err := newFitter(t, method).Fit(h, fit.Params{Constant: 600, Mean: 20, Sigma: 1})
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrDegenerateHistogram), "%s: %v", method, err)
	}

	_, err = InitialGuess(h)
	assert.True(t, stderrors.Is(err, errors.ErrDegenerateHistogram))
}

func TestFit_NonConvergenceIsReported(t *testing.T) {
	h := sampleHistogram(t, 1000, 13)
	opts := DefaultOptions(fit.MethodNLL)
	opts.MaxIterations = 1
	f, err := New(opts, internal.NewNopLogger())
	require.NoError(t, err)

	_, err = f.Fit(h, fit.Params{Constant: 1, Mean: -15, Sigma: 40})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrFitNonConvergence), "%v", err)
	assert.False(t, stderrors.Is(err, errors.ErrDegenerateHistogram))
}

func TestFit_RejectsBadGuess(t *testing.T) {
	h := sampleHistogram(t, 500, 1)
	f := newFitter(t, fit.MethodChi2)

	_, err := f.Fit(h, fit.Params{Constant: 10, Mean: math.NaN(), Sigma: 3})
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))
	_, err = f.Fit(h, fit.Params{Constant: 10, Mean: 20, Sigma: 0})
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))
}

func TestNew_RejectsInvalidOptions(t *testing.T) {
	cases := map[string]Options{
		"both":          {Method: fit.MethodBoth, MaxIterations: 10, GradientTolerance: 1e-6},
		"no iterations": {Method: fit.MethodNLL, MaxIterations: 0, GradientTolerance: 1e-6},
		"no tolerance":  {Method: fit.MethodNLL, MaxIterations: 10, GradientTolerance: 0},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(opts, nil)
			assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))
		})
	}
}

func TestInitialGuess(t *testing.T) {
	h, err := histogram.FromCounts("g", 0, 5, []int{1, 4, 9, 4, 1}, 0, 0)
	require.NoError(t, err)

	guess, err := InitialGuess(h)
	require.NoError(t, err)
	assert.Equal(t, 9.0, guess.Constant)
	assert.InDelta(t, 2.5, guess.Mean, 1e-12)
	assert.Greater(t, guess.Sigma, 0.0)
}

func TestMinimizeWithFixed_ProfileRisesByOneAtOneSigma(t *testing.T) {
	h := sampleHistogram(t, 1000, 21)
	f := newFitter(t, fit.MethodNLL)
	res, err := f.FitAuto(h)
	require.NoError(t, err)

	obj, err := objective.New(fit.MethodNLL, h)
	require.NoError(t, err)
	best := res.Params().Slice()
	mean := res.Param(fit.ParamMean)

	x, at, err := f.MinimizeWithFixed(obj, best, fit.ParamMean, mean.Value)
	require.NoError(t, err)
	assert.Equal(t, mean.Value, x[fit.ParamMean])
	assert.InDelta(t, res.Objective, at, 1e-6)

	_, up, err := f.MinimizeWithFixed(obj, best, fit.ParamMean, mean.Value+mean.Error)
	require.NoError(t, err)
	assert.InDelta(t, 1, (up-res.Objective)/obj.ErrorDef(), 0.15)

	_, _, err = f.MinimizeWithFixed(obj, best, fit.NumParams, 0)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidInput))
}
