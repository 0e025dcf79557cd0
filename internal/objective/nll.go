package objective

import (
	"math"

	"gaussfit/domain/fit"
	"gaussfit/internal/histogram"
)

// minExpected keeps log(nu) finite where the model underflows far in a tail
const minExpected = 1e-12

// NLL is the binned Poisson negative log-likelihood, dropping the
// parameter-independent log(n!) term:
//
//	sum_i nu_i - n_i*log(nu_i)
//
// An empty bin contributes nu_i, the n -> 0 limit of the term.
type NLL struct {
	x []float64
	n []float64
}

// NewNLL builds the likelihood over every in-range bin of h
func NewNLL(h *histogram.Histogram) *NLL {
	l := &NLL{
		x: make([]float64, h.NBins()),
		n: make([]float64, h.NBins()),
	}
	for i := range l.x {
		l.x[i] = h.BinCenter(i)
		l.n[i] = float64(h.Count(i))
	}
	return l
}

func (l *NLL) Method() fit.Method { return fit.MethodNLL }
func (l *NLL) ErrorDef() float64  { return 0.5 }
func (l *NLL) Bins() int          { return len(l.x) }

func (l *NLL) Evaluate(p []float64) float64 {
	if p[fit.ParamSigma] == 0 {
		return math.Inf(1)
	}
	sum := 0.0
	for i, x := range l.x {
		f, _ := gaussian(x, p)
		nu := math.Max(f, minExpected)
		if l.n[i] > 0 {
			sum += nu - l.n[i]*math.Log(nu)
		} else {
			sum += nu
		}
	}
	return sum
}

func (l *NLL) Gradient(grad, p []float64) {
	zero(grad)
	if p[fit.ParamSigma] == 0 {
		return
	}
	for i, x := range l.x {
		f, d := gaussian(x, p)
		if f < minExpected {
			// flat in the floored region
			continue
		}
		w := 1 - l.n[i]/f
		for k := range d {
			grad[k] += w * d[k]
		}
	}
}

// GoodnessOfFit returns the Baker-Cousins likelihood ratio against the
// saturated model, 2*sum(nu - n + n*log(n/nu)), which is asymptotically
// chi2 with bins-3 degrees of freedom.
func (l *NLL) GoodnessOfFit(p []float64) (float64, int) {
	ndf := len(l.x) - int(fit.NumParams)
	if p[fit.ParamSigma] == 0 {
		return math.Inf(1), ndf
	}
	sum := 0.0
	for i, x := range l.x {
		f, _ := gaussian(x, p)
		nu := math.Max(f, minExpected)
		sum += nu - l.n[i]
		if l.n[i] > 0 {
			sum += l.n[i] * math.Log(l.n[i]/nu)
		}
	}
	return 2 * sum, ndf
}
