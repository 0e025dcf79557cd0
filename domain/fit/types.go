package fit

import (
	"fmt"
	"math"
	"strings"

	"gaussfit/internal/errors"
)

// ============================================================================
// METHODS
// ============================================================================

// Method selects the objective minimized by the fitter
type Method string

const (
	MethodChi2 Method = "chi2"
	MethodNLL  Method = "nll"
	// MethodBoth is only meaningful for ensembles: every trial is fitted twice
	MethodBoth Method = "both"
)

// ParseMethods expands a method name into the single-objective methods it
// stands for.
func ParseMethods(s string) ([]Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case MethodChi2:
		return []Method{MethodChi2}, nil
	case MethodNLL:
		return []Method{MethodNLL}, nil
	case MethodBoth:
		return []Method{MethodChi2, MethodNLL}, nil
	default:
		return nil, errors.InvalidConfiguration(fmt.Sprintf("unknown fit method %q (want chi2, nll or both)", s))
	}
}

// ============================================================================
// PARAMETERS
// ============================================================================

// ParamIndex addresses one model parameter in a parameter vector
type ParamIndex int

// Parameter order follows the usual "gaus" convention: constant, mean, sigma.
const (
	ParamConstant ParamIndex = iota
	ParamMean
	ParamSigma
	NumParams
)

var paramNames = [NumParams]string{"constant", "mean", "sigma"}

func (p ParamIndex) String() string {
	if p < 0 || p >= NumParams {
		return fmt.Sprintf("param(%d)", int(p))
	}
	return paramNames[p]
}

// ParseParam resolves a parameter by name
func ParseParam(s string) (ParamIndex, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range paramNames {
		if n == name {
			return ParamIndex(i), nil
		}
	}
	return 0, errors.InvalidConfiguration(fmt.Sprintf("unknown parameter %q (want constant, mean or sigma)", s))
}

// Params holds the Gaussian model parameters. The model predicts
// Constant*exp(-0.5*((x-Mean)/Sigma)^2) counts in the bin centred at x.
type Params struct {
	Constant float64 `json:"constant"`
	Mean     float64 `json:"mean"`
	Sigma    float64 `json:"sigma"`
}

// Slice returns the parameters as a vector in ParamIndex order
func (p Params) Slice() []float64 {
	return []float64{p.Constant, p.Mean, p.Sigma}
}

// ParamsFrom builds Params from a vector in ParamIndex order
func ParamsFrom(x []float64) Params {
	return Params{Constant: x[ParamConstant], Mean: x[ParamMean], Sigma: x[ParamSigma]}
}

// Finite reports whether every parameter is a finite number
func (p Params) Finite() bool {
	for _, v := range p.Slice() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ============================================================================
// FIT RESULT
// ============================================================================

// Estimate is a point estimate with its standard error
type Estimate struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Error float64 `json:"error"`
}

// Result is the terminal output of one fit
type Result struct {
	Method     Method                        `json:"method"`
	Estimates  [NumParams]Estimate           `json:"estimates"`
	Covariance [NumParams][NumParams]float64 `json:"covariance"`

	// Objective is the minimum of the objective in its own units
	Objective float64 `json:"objective"`
	// Statistic is the goodness-of-fit statistic: chi2 for chi2 fits, the
	// Baker-Cousins likelihood ratio for NLL fits
	Statistic float64 `json:"statistic"`
	NDF       int     `json:"ndf"`
	PValue    float64 `json:"p_value"`

	Entries     int    `json:"entries"`
	Iterations  int    `json:"iterations"`
	Evaluations int    `json:"evaluations"`
	Status      string `json:"status"`
}

// Param returns the estimate for one parameter
func (r *Result) Param(i ParamIndex) Estimate {
	return r.Estimates[i]
}

// Params returns the best-fit point
func (r *Result) Params() Params {
	return Params{
		Constant: r.Estimates[ParamConstant].Value,
		Mean:     r.Estimates[ParamMean].Value,
		Sigma:    r.Estimates[ParamSigma].Value,
	}
}

// ReducedStatistic returns Statistic/NDF, or 0 when there are no degrees of freedom
func (r *Result) ReducedStatistic() float64 {
	if r.NDF <= 0 {
		return 0
	}
	return r.Statistic / float64(r.NDF)
}

// Correlation returns the correlation coefficient between two parameters
func (r *Result) Correlation(i, j ParamIndex) float64 {
	den := math.Sqrt(r.Covariance[i][i] * r.Covariance[j][j])
	if den == 0 {
		return 0
	}
	return r.Covariance[i][j] / den
}

// ============================================================================
// SCAN RESULT
// ============================================================================

// ScanMode says what happens to the other parameters while one is scanned
type ScanMode string

const (
	// ScanFixed holds the other parameters at their best-fit values
	ScanFixed ScanMode = "fixed"
	// ScanProfiled re-minimizes the other parameters at every step
	ScanProfiled ScanMode = "profiled"
)

// Valid reports whether m is a known scan mode
func (m ScanMode) Valid() bool {
	return m == ScanFixed || m == ScanProfiled
}

// ScanPoint is one evaluation of the objective. Deviance is the objective
// divided by its error definition, so a rise of 1 marks one standard
// deviation for both chi2 and NLL (it is -2lnL for NLL).
type ScanPoint struct {
	Value    float64 `json:"value"`
	Deviance float64 `json:"deviance"`
}

// Interval is where the deviance crosses min+Delta on both sides
type Interval struct {
	Delta float64 `json:"delta"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Found bool    `json:"found"`
}

// HalfWidth returns the symmetric error implied by the interval
func (iv Interval) HalfWidth() float64 {
	return (iv.Upper - iv.Lower) / 2
}

// ScanResult is the trace of one parameter scan
type ScanResult struct {
	Param     ParamIndex  `json:"param"`
	Method    Method      `json:"method"`
	Mode      ScanMode    `json:"mode"`
	BestValue float64     `json:"best_value"`
	FitError  float64     `json:"fit_error"`
	Points    []ScanPoint `json:"points"`
	Minimum   ScanPoint   `json:"minimum"`
	OneSigma  Interval    `json:"one_sigma"`
	TwoSigma  Interval    `json:"two_sigma"`
}

// Error returns the symmetric 1-sigma error from the scan
func (s *ScanResult) Error() float64 {
	return s.OneSigma.HalfWidth()
}

// ErrorLow returns the distance from the best-fit value down to the lower crossing
func (s *ScanResult) ErrorLow() float64 {
	return s.BestValue - s.OneSigma.Lower
}

// ErrorHigh returns the distance from the best-fit value up to the upper crossing
func (s *ScanResult) ErrorHigh() float64 {
	return s.OneSigma.Upper - s.BestValue
}

// RelativeAgreement returns |scan error - fit error| / fit error
func (s *ScanResult) RelativeAgreement() float64 {
	if s.FitError == 0 {
		return math.Inf(1)
	}
	return math.Abs(s.Error()-s.FitError) / s.FitError
}
