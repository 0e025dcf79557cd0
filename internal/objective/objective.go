// Package objective holds the functions the fitter minimizes.
package objective

import (
	"math"

	"gaussfit/domain/fit"
	"gaussfit/internal/errors"
	"gaussfit/internal/histogram"

	"gonum.org/v1/gonum/stat/distuv"
)

// Objective is a scalar function of the parameter vector with an analytic
// gradient. Vectors are in fit.ParamIndex order.
type Objective interface {
	Method() fit.Method

	Evaluate(p []float64) float64
	Gradient(grad, p []float64)

	// ErrorDef is the rise of the objective that marks one standard
	// deviation: 1 for chi2, 0.5 for a negative log-likelihood.
	ErrorDef() float64

	// GoodnessOfFit returns a chi2-distributed statistic and its degrees of freedom
	GoodnessOfFit(p []float64) (stat float64, ndf int)

	// Bins is the number of bins the objective sums over
	Bins() int
}

// New builds the objective for method over h
func New(method fit.Method, h *histogram.Histogram) (Objective, error) {
	switch method {
	case fit.MethodChi2:
		return NewChi2(h), nil
	case fit.MethodNLL:
		return NewNLL(h), nil
	default:
		return nil, errors.InvalidConfiguration("objective needs a single method, got " + string(method))
	}
}

// Deviance rescales the objective so that a rise of 1 is one standard deviation
func Deviance(o Objective, p []float64) float64 {
	return o.Evaluate(p) / o.ErrorDef()
}

// PValue returns P(X >= stat) for X ~ chi2(ndf). With no degrees of freedom
// the fit is exact and the p-value is 1.
func PValue(stat float64, ndf int) float64 {
	if ndf <= 0 {
		return 1
	}
	if math.IsNaN(stat) {
		return 0
	}
	p := distuv.ChiSquared{K: float64(ndf)}.Survival(stat)
	return math.Max(0, math.Min(1, p))
}

// gaussian evaluates Constant*exp(-0.5*z^2), z=(x-Mean)/Sigma, and its
// partial derivatives with respect to each parameter.
func gaussian(x float64, p []float64) (f float64, d [fit.NumParams]float64) {
	a, mu, s := p[fit.ParamConstant], p[fit.ParamMean], p[fit.ParamSigma]
	z := (x - mu) / s
	e := math.Exp(-0.5 * z * z)
	f = a * e
	d[fit.ParamConstant] = e
	d[fit.ParamMean] = f * z / s
	d[fit.ParamSigma] = f * z * z / s
	return f, d
}

// Model evaluates the Gaussian model at x
func Model(x float64, p fit.Params) float64 {
	f, _ := gaussian(x, p.Slice())
	return f
}

func zero(grad []float64) {
	for i := range grad {
		grad[i] = 0
	}
}
