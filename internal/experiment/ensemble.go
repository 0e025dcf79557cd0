package experiment

import (
	"math"

	"gaussfit/domain/fit"
	"gaussfit/internal"
	"gaussfit/internal/errors"
	"gaussfit/internal/fitter"
	"gaussfit/internal/histogram"

	"github.com/montanaflynn/stats"
)

// Moments is a sample mean with its population standard deviation
type Moments struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

func moments(xs []float64) Moments {
	if len(xs) == 0 {
		return Moments{}
	}
	mean, err := stats.Mean(xs)
	if err != nil {
		return Moments{Mean: math.NaN(), Std: math.NaN()}
	}
	std, err := stats.StandardDeviationPopulation(xs)
	if err != nil {
		return Moments{Mean: mean, Std: math.NaN()}
	}
	return Moments{Mean: mean, Std: std}
}

// Summary aggregates one method's fits across an ensemble
type Summary struct {
	Method    fit.Method `json:"method"`
	Trials    int        `json:"trials"`
	Successes int        `json:"successes"`
	Failures  int        `json:"failures"`

	ReducedStatistic Moments `json:"reduced_statistic"`
	PValue           Moments `json:"p_value"`
	FittedMean       Moments `json:"fitted_mean"`
	MeanError        Moments `json:"mean_error"`
	FittedSigma      Moments `json:"fitted_sigma"`

	// Pull is (fitted mean - true mean) / reported error; for honest errors
	// it has unit width.
	Pull Moments `json:"pull"`
	// Coverage is the fraction of trials whose mean ± error contains the
	// true mean, 0.683 for honest errors.
	Coverage float64 `json:"coverage"`
	// MedianPValue is robust against the pile-up at p=0 from bad fits
	MedianPValue float64 `json:"median_p_value"`

	TrueMean    float64 `json:"true_mean"`
	Bias        float64 `json:"bias"`
	TheoryError float64 `json:"theory_error"`
}

// Summarize computes one Summary per configured method
func Summarize(ens *Ensemble) []Summary {
	out := make([]Summary, 0, len(ens.Settings.Methods))
	for _, method := range ens.Settings.Methods {
		out = append(out, summarizeMethod(ens, method))
	}
	return out
}

func summarizeMethod(ens *Ensemble, method fit.Method) Summary {
	results := ens.Results(method)
	s := Summary{
		Method:      method,
		Trials:      len(ens.Trials),
		Successes:   len(results),
		Failures:    ens.Failures(method),
		TrueMean:    ens.Settings.TrueMean,
		TheoryError: ens.Settings.TheoryError(),
	}
	if len(results) == 0 {
		return s
	}

	var (
		reduced = make([]float64, len(results))
		pvalues = make([]float64, len(results))
		means   = make([]float64, len(results))
		errs    = make([]float64, len(results))
		sigmas  = make([]float64, len(results))
		pulls   = make([]float64, 0, len(results))
		covered int
	)
	for i, res := range results {
		mean := res.Param(fit.ParamMean)
		reduced[i] = res.ReducedStatistic()
		pvalues[i] = res.PValue
		means[i] = mean.Value
		errs[i] = mean.Error
		sigmas[i] = res.Param(fit.ParamSigma).Value
		if mean.Error > 0 {
			pulls = append(pulls, (mean.Value-s.TrueMean)/mean.Error)
		}
		if math.Abs(mean.Value-s.TrueMean) <= mean.Error {
			covered++
		}
	}

	s.ReducedStatistic = moments(reduced)
	s.PValue = moments(pvalues)
	s.FittedMean = moments(means)
	s.MeanError = moments(errs)
	s.FittedSigma = moments(sigmas)
	s.Pull = moments(pulls)
	s.Coverage = float64(covered) / float64(len(results))
	s.Bias = s.FittedMean.Mean - s.TrueMean
	if median, err := stats.Median(pvalues); err == nil {
		s.MedianPValue = median
	}
	return s
}

// MeanDistribution is the histogram of fitted means with its Gaussian fit
type MeanDistribution struct {
	Method    fit.Method
	Histogram *histogram.Histogram
	Fit       *fit.Result
}

// FitMeanDistribution histograms one method's fitted means over true mean ±
// 6 theory errors and fits the result with a chi2 Gaussian. The histogram
// is returned even when the fit fails, together with the fit error.
func FitMeanDistribution(ens *Ensemble, method fit.Method, logger *internal.Logger) (*MeanDistribution, error) {
	results := ens.Results(method)
	if len(results) == 0 {
		return nil, errors.InvalidInput("no successful " + string(method) + " fits to histogram")
	}

	half := 6 * ens.Settings.TheoryError()
	h, err := histogram.New(string(method)+"-fitted-mean", 50, ens.Settings.TrueMean-half, ens.Settings.TrueMean+half)
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		h.Fill(res.Param(fit.ParamMean).Value)
	}

	dist := &MeanDistribution{Method: method, Histogram: h}
	opts := ens.Settings.Fit
	opts.Method = fit.MethodChi2
	f, err := fitter.New(opts, logger)
	if err != nil {
		return dist, err
	}
	dist.Fit, err = f.FitAuto(h)
	return dist, err
}
