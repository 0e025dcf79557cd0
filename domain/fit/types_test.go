package fit

import (
	stderrors "errors"
	"math"
	"testing"

	"gaussfit/internal/errors"
)

func TestParseMethods(t *testing.T) {
	both, err := ParseMethods("BOTH")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(both) != 2 || both[0] != MethodChi2 || both[1] != MethodNLL {
		t.Errorf("unexpected expansion: %v", both)
	}

	_, err = ParseMethods("least-squares")
	if !stderrors.Is(err, errors.ErrInvalidConfiguration) {
		t.Errorf("expected InvalidConfiguration, got %v", err)
	}
}

func TestParseParam(t *testing.T) {
	p, err := ParseParam("Mean")
	if err != nil || p != ParamMean {
		t.Fatalf("ParseParam(Mean) = %v, %v", p, err)
	}
	if _, err := ParseParam("width"); err == nil {
		t.Error("expected error for unknown parameter")
	}
	if ParamSigma.String() != "sigma" {
		t.Errorf("unexpected name %q", ParamSigma.String())
	}
}

func TestParams_RoundTrip(t *testing.T) {
	p := Params{Constant: 40, Mean: 20, Sigma: 10}
	if ParamsFrom(p.Slice()) != p {
		t.Errorf("round trip changed params")
	}
	if !p.Finite() {
		t.Error("expected finite params")
	}
	p.Sigma = math.NaN()
	if p.Finite() {
		t.Error("expected NaN to be reported as non-finite")
	}
}

func TestResult_Derived(t *testing.T) {
	r := &Result{Statistic: 47, NDF: 47}
	r.Covariance[ParamMean][ParamMean] = 4
	r.Covariance[ParamSigma][ParamSigma] = 1
	r.Covariance[ParamMean][ParamSigma] = 1

	if r.ReducedStatistic() != 1 {
		t.Errorf("reduced statistic = %v", r.ReducedStatistic())
	}
	if got := r.Correlation(ParamMean, ParamSigma); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("correlation = %v, want 0.5", got)
	}
	if (&Result{}).ReducedStatistic() != 0 {
		t.Error("zero NDF should give zero reduced statistic")
	}
}

func TestScanResult_Errors(t *testing.T) {
	s := &ScanResult{
		BestValue: 20,
		FitError:  0.3,
		OneSigma:  Interval{Delta: 1, Lower: 19.7, Upper: 20.32, Found: true},
	}
	if math.Abs(s.Error()-0.31) > 1e-12 {
		t.Errorf("error = %v", s.Error())
	}
	if math.Abs(s.ErrorLow()-0.3) > 1e-12 || math.Abs(s.ErrorHigh()-0.32) > 1e-12 {
		t.Errorf("asymmetric errors = %v, %v", s.ErrorLow(), s.ErrorHigh())
	}
	if s.RelativeAgreement() > 0.04 {
		t.Errorf("agreement = %v", s.RelativeAgreement())
	}
}
