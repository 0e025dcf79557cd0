// Package sampler draws independent values from a normal distribution.
package sampler

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gaussfit/internal/errors"
	"gaussfit/internal/histogram"

	"gonum.org/v1/gonum/stat/distuv"
)

// Sampler draws from Normal(mean, sigma) using a caller-owned source
type Sampler struct {
	dist distuv.Normal
}

// New creates a sampler. The source is consumed on every draw; pass a
// seeded source for reproducible runs.
func New(mean, sigma float64, src rand.Source) (*Sampler, error) {
	if math.IsNaN(mean) || math.IsInf(mean, 0) {
		return nil, errors.InvalidConfiguration(fmt.Sprintf("sampler mean must be finite, got %g", mean))
	}
	if !(sigma > 0) || math.IsInf(sigma, 0) {
		return nil, errors.InvalidConfiguration(fmt.Sprintf("sampler sigma must be positive and finite, got %g", sigma))
	}
	if src == nil {
		return nil, errors.InvalidConfiguration("sampler needs a random source")
	}
	return &Sampler{dist: distuv.Normal{Mu: mean, Sigma: sigma, Src: src}}, nil
}

// Mean returns the true mean of the sampled distribution
func (s *Sampler) Mean() float64 { return s.dist.Mu }

// Sigma returns the true standard deviation of the sampled distribution
func (s *Sampler) Sigma() float64 { return s.dist.Sigma }

// Draw returns n independent values
func (s *Sampler) Draw(n int) ([]float64, error) {
	if n < 0 {
		return nil, errors.InvalidConfiguration(fmt.Sprintf("sample count must not be negative, got %d", n))
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = s.dist.Rand()
	}
	return out, nil
}

// DrawInto fills h with n values without keeping the sample set
func (s *Sampler) DrawInto(h *histogram.Histogram, n int) error {
	if n < 0 {
		return errors.InvalidConfiguration(fmt.Sprintf("sample count must not be negative, got %d", n))
	}
	for i := 0; i < n; i++ {
		h.Fill(s.dist.Rand())
	}
	return nil
}
