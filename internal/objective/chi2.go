package objective

import (
	"math"

	"gaussfit/domain/fit"
	"gaussfit/internal/histogram"
)

// Chi2 is the Neyman chi-squared: the variance of each bin is estimated by
// its observed count, so empty bins carry no information and are skipped.
type Chi2 struct {
	x []float64
	n []float64
}

// NewChi2 builds the chi-squared objective over the non-empty bins of h
func NewChi2(h *histogram.Histogram) *Chi2 {
	c := &Chi2{}
	for i := 0; i < h.NBins(); i++ {
		if n := h.Count(i); n > 0 {
			c.x = append(c.x, h.BinCenter(i))
			c.n = append(c.n, float64(n))
		}
	}
	return c
}

func (c *Chi2) Method() fit.Method { return fit.MethodChi2 }
func (c *Chi2) ErrorDef() float64  { return 1 }
func (c *Chi2) Bins() int          { return len(c.x) }

func (c *Chi2) Evaluate(p []float64) float64 {
	if p[fit.ParamSigma] == 0 {
		return math.Inf(1)
	}
	sum := 0.0
	for i, x := range c.x {
		f, _ := gaussian(x, p)
		r := c.n[i] - f
		sum += r * r / c.n[i]
	}
	return sum
}

func (c *Chi2) Gradient(grad, p []float64) {
	zero(grad)
	if p[fit.ParamSigma] == 0 {
		return
	}
	for i, x := range c.x {
		f, d := gaussian(x, p)
		w := -2 * (c.n[i] - f) / c.n[i]
		for k := range d {
			grad[k] += w * d[k]
		}
	}
}

// GoodnessOfFit returns chi2 itself with one degree of freedom per used bin
// minus the three fitted parameters.
func (c *Chi2) GoodnessOfFit(p []float64) (float64, int) {
	return c.Evaluate(p), len(c.x) - int(fit.NumParams)
}
