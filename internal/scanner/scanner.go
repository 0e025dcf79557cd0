// Package scanner traces the objective along one parameter to cross-check
// the fitter's curvature-based uncertainty.
package scanner

import (
	"fmt"
	"math"

	"gaussfit/domain/fit"
	"gaussfit/internal"
	"gaussfit/internal/errors"
	"gaussfit/internal/fitter"
	"gaussfit/internal/objective"
)

// Deviance rises that mark one and two standard deviations
const (
	OneSigmaDelta = 1.0
	TwoSigmaDelta = 4.0
)

// Request describes one scan. HalfWidth is measured in units of the
// parameter's fitted error.
type Request struct {
	Param     fit.ParamIndex
	HalfWidth float64
	Steps     int
	Mode      fit.ScanMode
}

// DefaultRequest scans param over ±5 errors in 100 steps with the other
// parameters held at their best fit.
func DefaultRequest(param fit.ParamIndex) Request {
	return Request{Param: param, HalfWidth: 5, Steps: 100, Mode: fit.ScanFixed}
}

func (r Request) validate() error {
	if r.Param < 0 || r.Param >= fit.NumParams {
		return errors.InvalidConfiguration(fmt.Sprintf("cannot scan parameter index %d", r.Param))
	}
	if r.Steps < 3 {
		return errors.InvalidConfiguration(fmt.Sprintf("scan needs at least 3 steps, got %d", r.Steps))
	}
	if !(r.HalfWidth > 0) || math.IsInf(r.HalfWidth, 0) {
		return errors.InvalidConfiguration(fmt.Sprintf("scan half-width must be positive, got %g", r.HalfWidth))
	}
	if !r.Mode.Valid() {
		return errors.InvalidConfiguration(fmt.Sprintf("unknown scan mode %q (want fixed or profiled)", r.Mode))
	}
	return nil
}

// Scanner evaluates objectives along a parameter axis. A fitter is only
// needed for profiled scans.
type Scanner struct {
	fitter *fitter.Fitter
	logger *internal.Logger
}

// New creates a scanner
func New(f *fitter.Fitter, logger *internal.Logger) *Scanner {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Scanner{fitter: f, logger: logger}
}

// Scan evaluates obj at req.Steps evenly spaced values of req.Param
// centred on the best fit in res, and locates the min+1 and min+4
// crossings on each side of the scan minimum.
func (s *Scanner) Scan(obj objective.Objective, res *fit.Result, req Request) (*fit.ScanResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.Mode == fit.ScanProfiled && s.fitter == nil {
		return nil, errors.InvalidConfiguration("profiled scan needs a fitter")
	}

	est := res.Param(req.Param)
	if !(est.Error > 0) || math.IsInf(est.Error, 0) {
		return nil, errors.InvalidInput(fmt.Sprintf("cannot scan %s with fitted error %g", req.Param, est.Error))
	}

	best := res.Params().Slice()
	low := est.Value - req.HalfWidth*est.Error
	step := 2 * req.HalfWidth * est.Error / float64(req.Steps-1)

	points := make([]fit.ScanPoint, req.Steps)
	for i := range points {
		points[i].Value = low + float64(i)*step
	}

	var err error
	switch req.Mode {
	case fit.ScanFixed:
		for i := range points {
			x := append([]float64(nil), best...)
			x[req.Param] = points[i].Value
			points[i].Deviance = objective.Deviance(obj, x)
		}
	case fit.ScanProfiled:
		err = s.profile(obj, best, req.Param, points)
	}
	if err != nil {
		return nil, err
	}

	scan := &fit.ScanResult{
		Param:     req.Param,
		Method:    obj.Method(),
		Mode:      req.Mode,
		BestValue: est.Value,
		FitError:  est.Error,
		Points:    points,
	}

	m := argmin(points)
	scan.Minimum = points[m]
	scan.OneSigma = crossings(points, m, OneSigmaDelta)
	scan.TwoSigma = crossings(points, m, TwoSigmaDelta)

	if !scan.OneSigma.Found {
		return nil, errors.InvalidInput(fmt.Sprintf(
			"%s scan of %s over ±%g errors never rises by %g on both sides of the minimum; widen the range",
			req.Mode, req.Param, req.HalfWidth, OneSigmaDelta))
	}

	s.logger.Debug("%s %s scan of %s: best=%.4f scan error=%.4f fit error=%.4f agreement=%.3f",
		req.Mode, obj.Method(), req.Param, est.Value, scan.Error(), est.Error, scan.RelativeAgreement())
	return scan, nil
}

// profile re-minimizes the free parameters at every point, walking outward
// from the point nearest the best fit so each minimization starts warm.
func (s *Scanner) profile(obj objective.Objective, best []float64, param fit.ParamIndex, points []fit.ScanPoint) error {
	mid := 0
	for i := range points {
		if math.Abs(points[i].Value-best[param]) < math.Abs(points[mid].Value-best[param]) {
			mid = i
		}
	}

	eval := func(i int, start []float64) ([]float64, error) {
		x, f, err := s.fitter.MinimizeWithFixed(obj, start, param, points[i].Value)
		if err != nil {
			return nil, errors.Wrapf(err, "profile %s at %g", param, points[i].Value)
		}
		points[i].Deviance = f / obj.ErrorDef()
		return x, nil
	}

	center, err := eval(mid, best)
	if err != nil {
		return err
	}
	start := center
	for i := mid + 1; i < len(points); i++ {
		if start, err = eval(i, start); err != nil {
			return err
		}
	}
	start = center
	for i := mid - 1; i >= 0; i-- {
		if start, err = eval(i, start); err != nil {
			return err
		}
	}
	return nil
}

func argmin(points []fit.ScanPoint) int {
	m := 0
	for i, p := range points {
		if p.Deviance < points[m].Deviance {
			m = i
		}
	}
	return m
}

// crossings walks outward from points[m] and linearly interpolates where
// the deviance first reaches the minimum plus delta on each side.
func crossings(points []fit.ScanPoint, m int, delta float64) fit.Interval {
	target := points[m].Deviance + delta
	iv := fit.Interval{Delta: delta}

	lowFound, highFound := false, false
	for i := m + 1; i < len(points); i++ {
		if points[i].Deviance >= target {
			iv.Upper = interpolate(points[i-1], points[i], target)
			highFound = true
			break
		}
	}
	for i := m - 1; i >= 0; i-- {
		if points[i].Deviance >= target {
			iv.Lower = interpolate(points[i+1], points[i], target)
			lowFound = true
			break
		}
	}
	iv.Found = lowFound && highFound
	return iv
}

func interpolate(a, b fit.ScanPoint, target float64) float64 {
	if b.Deviance == a.Deviance {
		return b.Value
	}
	return a.Value + (target-a.Deviance)*(b.Value-a.Value)/(b.Deviance-a.Deviance)
}
