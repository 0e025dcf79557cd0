// Package fitter fits the Gaussian model to a histogram by minimizing a
// chi-squared or Poisson likelihood objective.
package fitter

import (
	"fmt"
	"math"

	"gaussfit/domain/fit"
	"gaussfit/internal"
	"gaussfit/internal/errors"
	"gaussfit/internal/histogram"
	"gaussfit/internal/objective"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// MinNonEmptyBins is the fewest populated bins a three-parameter fit accepts
const MinNonEmptyBins = 3

// stalledGradientFactor bounds how far above the tolerance a gradient may be
// when the line search stalls and the point is still accepted as a minimum.
const stalledGradientFactor = 100

// Options configures a Fitter
type Options struct {
	Method            fit.Method
	MaxIterations     int
	GradientTolerance float64
}

// DefaultOptions returns the budgets used by the CLI
func DefaultOptions(method fit.Method) Options {
	return Options{
		Method:            method,
		MaxIterations:     1000,
		GradientTolerance: 1e-5,
	}
}

// Fitter runs one objective type
type Fitter struct {
	opts   Options
	logger *internal.Logger
}

// New creates a fitter for a single method
func New(opts Options, logger *internal.Logger) (*Fitter, error) {
	if opts.Method != fit.MethodChi2 && opts.Method != fit.MethodNLL {
		return nil, errors.InvalidConfiguration(fmt.Sprintf("fitter needs chi2 or nll, got %q", opts.Method))
	}
	if opts.MaxIterations < 1 {
		return nil, errors.InvalidConfiguration("fitter needs a positive iteration budget")
	}
	if !(opts.GradientTolerance > 0) {
		return nil, errors.InvalidConfiguration("fitter needs a positive gradient tolerance")
	}
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Fitter{opts: opts, logger: logger}, nil
}

// Method returns the objective this fitter minimizes
func (f *Fitter) Method() fit.Method { return f.opts.Method }

// CheckHistogram returns DegenerateHistogram when h cannot constrain three
// parameters.
func CheckHistogram(h *histogram.Histogram) error {
	if n := h.NonEmptyBins(); n < MinNonEmptyBins {
		return errors.DegenerateHistogram(fmt.Sprintf(
			"histogram %q has %d non-empty bins in [%g, %g), need at least %d (entries=%d underflow=%d overflow=%d)",
			h.Name(), n, h.Low(), h.High(), MinNonEmptyBins, h.Entries(), h.Underflow(), h.Overflow()))
	}
	return nil
}

// InitialGuess estimates the parameters from the histogram itself: the
// tallest bin for the constant and the count-weighted moments of the bin
// centres for mean and sigma.
func InitialGuess(h *histogram.Histogram) (fit.Params, error) {
	if err := CheckHistogram(h); err != nil {
		return fit.Params{}, err
	}
	mean, rms, _ := h.Moments()
	if rms == 0 {
		rms = h.Width()
	}
	return fit.Params{
		Constant: float64(h.MaxCount()),
		Mean:     mean,
		Sigma:    rms,
	}, nil
}

// Fit minimizes the configured objective over h starting from guess
func (f *Fitter) Fit(h *histogram.Histogram, guess fit.Params) (*fit.Result, error) {
	if err := CheckHistogram(h); err != nil {
		return nil, err
	}
	if !guess.Finite() || guess.Sigma == 0 {
		return nil, errors.InvalidConfiguration(fmt.Sprintf("initial guess %+v must be finite with non-zero sigma", guess))
	}

	obj, err := objective.New(f.opts.Method, h)
	if err != nil {
		return nil, err
	}

	res, err := f.FitObjective(obj, guess)
	if err != nil {
		return nil, errors.Wrapf(err, "%s fit of %s", f.opts.Method, h.Name())
	}
	res.Entries = h.Entries()

	f.logger.Debug("%s fit of %s: mean=%.4f±%.4f sigma=%.4f±%.4f stat=%.2f/%d p=%.3f iter=%d",
		res.Method, h.Name(),
		res.Param(fit.ParamMean).Value, res.Param(fit.ParamMean).Error,
		res.Param(fit.ParamSigma).Value, res.Param(fit.ParamSigma).Error,
		res.Statistic, res.NDF, res.PValue, res.Iterations)
	return res, nil
}

// FitAuto fits h starting from InitialGuess
func (f *Fitter) FitAuto(h *histogram.Histogram) (*fit.Result, error) {
	guess, err := InitialGuess(h)
	if err != nil {
		return nil, err
	}
	return f.Fit(h, guess)
}

// FitObjective minimizes obj and derives uncertainties from the curvature at
// the minimum.
func (f *Fitter) FitObjective(obj objective.Objective, guess fit.Params) (*fit.Result, error) {
	best, err := f.minimize(obj, guess.Slice(), -1)
	if err != nil {
		return nil, err
	}

	cov, err := covariance(obj, best.x)
	if err != nil {
		return nil, err
	}

	res := &fit.Result{
		Method:      obj.Method(),
		Objective:   best.f,
		Iterations:  best.iterations,
		Evaluations: best.evaluations,
		Status:      best.status.String(),
	}

	// The model only sees sigma squared; report its magnitude and flip the
	// covariance terms that carry its sign.
	x := append([]float64(nil), best.x...)
	if x[fit.ParamSigma] < 0 {
		x[fit.ParamSigma] = -x[fit.ParamSigma]
		for k := fit.ParamIndex(0); k < fit.NumParams; k++ {
			if k != fit.ParamSigma {
				cov[k][fit.ParamSigma] = -cov[k][fit.ParamSigma]
				cov[fit.ParamSigma][k] = -cov[fit.ParamSigma][k]
			}
		}
	}

	for i := fit.ParamIndex(0); i < fit.NumParams; i++ {
		res.Estimates[i] = fit.Estimate{
			Name:  i.String(),
			Value: x[i],
			Error: math.Sqrt(cov[i][i]),
		}
	}
	res.Covariance = cov

	res.Statistic, res.NDF = obj.GoodnessOfFit(x)
	res.PValue = objective.PValue(res.Statistic, res.NDF)
	return res, nil
}

// MinimizeWithFixed minimizes obj over every parameter except fixed, which
// is held at value. start supplies the other parameters' starting point.
// It returns the full parameter vector at the minimum and the objective there.
func (f *Fitter) MinimizeWithFixed(obj objective.Objective, start []float64, fixed fit.ParamIndex, value float64) ([]float64, float64, error) {
	if fixed < 0 || fixed >= fit.NumParams {
		return nil, 0, errors.InvalidInput(fmt.Sprintf("cannot fix parameter index %d", fixed))
	}
	x0 := append([]float64(nil), start...)
	x0[fixed] = value
	best, err := f.minimize(obj, x0, int(fixed))
	if err != nil {
		return nil, 0, err
	}
	return best.x, best.f, nil
}

type minimum struct {
	x           []float64
	f           float64
	iterations  int
	evaluations int
	status      optimize.Status
}

// minimize runs BFGS over the free parameters. fixed < 0 means all are free.
func (f *Fitter) minimize(obj objective.Objective, start []float64, fixed int) (*minimum, error) {
	free := make([]int, 0, len(start))
	for i := range start {
		if i != fixed {
			free = append(free, i)
		}
	}
	expand := func(y []float64) []float64 {
		full := append([]float64(nil), start...)
		for j, k := range free {
			full[k] = y[j]
		}
		return full
	}

	problem := optimize.Problem{
		Func: func(y []float64) float64 {
			return obj.Evaluate(expand(y))
		},
		Grad: func(grad, y []float64) {
			g := make([]float64, len(start))
			obj.Gradient(g, expand(y))
			for j, k := range free {
				grad[j] = g[k]
			}
		},
	}

	y0 := make([]float64, len(free))
	for j, k := range free {
		y0[j] = start[k]
	}

	settings := &optimize.Settings{
		GradientThreshold: f.opts.GradientTolerance,
		MajorIterations:   f.opts.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Iterations: 20,
		},
	}

	result, err := optimize.Minimize(problem, y0, settings, &optimize.BFGS{})
	if result == nil {
		return nil, errors.FitNonConvergence(fmt.Sprintf("%s minimizer failed to start: %s", obj.Method(), errString(err)))
	}

	x := expand(result.X)
	grad := make([]float64, len(x))
	obj.Gradient(grad, x)
	worst, gnorm := -1, 0.0
	for _, k := range free {
		if g := math.Abs(grad[k]); g > gnorm || math.IsNaN(g) {
			worst, gnorm = k, g
		}
	}

	ok := err == nil && converged(result.Status)
	if !ok && gnorm <= stalledGradientFactor*f.opts.GradientTolerance {
		f.logger.Trace("%s minimizer stopped with %v but gradient %.2e is within tolerance", obj.Method(), result.Status, gnorm)
		ok = true
	}
	if !ok || math.IsNaN(result.F) || math.IsInf(result.F, 0) {
		msg := fmt.Sprintf("%s minimizer stopped with status %v after %d iterations",
			obj.Method(), result.Status, result.MajorIterations)
		if worst >= 0 {
			msg += fmt.Sprintf(", largest gradient on %s (|g|=%.3g)", fit.ParamIndex(worst), gnorm)
		}
		if err != nil {
			msg += ": " + err.Error()
		}
		return nil, errors.FitNonConvergence(msg)
	}

	return &minimum{
		x:           x,
		f:           result.F,
		iterations:  result.MajorIterations,
		evaluations: result.FuncEvaluations,
		status:      result.Status,
	}, nil
}

func converged(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.FunctionThreshold, optimize.FunctionConvergence,
		optimize.GradientThreshold, optimize.StepConvergence, optimize.MethodConverge:
		return true
	}
	return false
}

// covariance returns 2*ErrorDef*H^-1, with H the central-difference
// Jacobian of the analytic gradient.
func covariance(obj objective.Objective, x []float64) ([fit.NumParams][fit.NumParams]float64, error) {
	var cov [fit.NumParams][fit.NumParams]float64
	n := int(fit.NumParams)

	jac := mat.NewDense(n, n, nil)
	fd.Jacobian(jac, func(y, p []float64) {
		obj.Gradient(y, p)
	}, x, &fd.JacobianSettings{Formula: fd.Central})

	hess := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			hess.SetSym(i, j, 0.5*(jac.At(i, j)+jac.At(j, i)))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(hess); !ok {
		return cov, errors.FitNonConvergence(fmt.Sprintf(
			"%s Hessian is not positive definite at the minimum (diag %.3g, %.3g, %.3g)",
			obj.Method(), hess.At(0, 0), hess.At(1, 1), hess.At(2, 2)))
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return cov, errors.FitNonConvergence(fmt.Sprintf("%s Hessian is singular: %v", obj.Method(), err))
	}

	scale := 2 * obj.ErrorDef()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			cov[i][j] = scale * inv.At(i, j)
		}
	}
	for i := 0; i < n; i++ {
		if !(cov[i][i] >= 0) {
			return cov, errors.FitNonConvergence(fmt.Sprintf("%s variance of %s is %g", obj.Method(), fit.ParamIndex(i), cov[i][i]))
		}
	}
	return cov, nil
}

func errString(err error) string {
	if err == nil {
		return "no result"
	}
	return err.Error()
}

// FitBoth fits h with both objectives from the same starting point
func FitBoth(h *histogram.Histogram, opts Options, logger *internal.Logger) (map[fit.Method]*fit.Result, error) {
	guess, err := InitialGuess(h)
	if err != nil {
		return nil, err
	}
	results := make(map[fit.Method]*fit.Result, 2)
	for _, method := range []fit.Method{fit.MethodChi2, fit.MethodNLL} {
		o := opts
		o.Method = method
		f, err := New(o, logger)
		if err != nil {
			return nil, err
		}
		res, err := f.Fit(h, guess)
		if err != nil {
			return nil, err
		}
		results[method] = res
	}
	return results, nil
}
