package experiment

import (
	"context"
	"fmt"

	"gaussfit/domain/fit"
	"gaussfit/internal/errors"
	"gaussfit/internal/histogram"
	"gaussfit/internal/objective"
	"gaussfit/internal/sampler"
)

// ConsistencyThreshold is the toy p-value below which data is called
// inconsistent with its fit
const ConsistencyThreshold = 0.05

// ToyResult compares a histogram's likelihood ratio against the saturated
// model at its best fit with pseudo-experiments drawn from that fit.
type ToyResult struct {
	Observed  float64    `json:"observed"`
	Toys      []float64  `json:"toys"`
	Exceeding int        `json:"exceeding"`
	PValue    float64    `json:"p_value"`
	Spread    Moments    `json:"spread"`
	Params    fit.Params `json:"params"`
	Entries   int        `json:"entries"`
}

// Consistent reports whether the toy p-value clears ConsistencyThreshold
func (t *ToyResult) Consistent() bool {
	return t.PValue > ConsistencyThreshold
}

// ToyGoodnessOfFit draws ntoys histograms with the same binning and entry
// count as h from Normal(best mean, best sigma), evaluates each one's
// Baker-Cousins likelihood ratio at the best-fit parameters, and returns the
// fraction of toys at or above the ratio of h itself. The ratio compares
// against the saturated model, so it responds to shape and not just to the
// normalisation at fixed parameters.
func (r *Runner) ToyGoodnessOfFit(ctx context.Context, h *histogram.Histogram, res *fit.Result, ntoys int) (*ToyResult, error) {
	if ntoys < 1 {
		return nil, errors.InvalidConfiguration(fmt.Sprintf("toy count must be positive, got %d", ntoys))
	}
	if res == nil {
		return nil, errors.InvalidInput("toy goodness of fit needs a fit result")
	}
	params := res.Params()
	p := params.Slice()
	if _, err := sampler.New(params.Mean, params.Sigma, r.rng.SeededStream("toy-check", 1)); err != nil {
		return nil, errors.Wrap(err, "best fit cannot generate toys")
	}

	observed, _ := objective.NewNLL(h).GoodnessOfFit(p)
	out := &ToyResult{
		Observed: observed,
		Toys:     make([]float64, ntoys),
		Params:   params,
		Entries:  h.Entries(),
	}

	err := forEach(ctx, ntoys, r.settings.Workers, func(ctx context.Context, i int) error {
		s, err := sampler.New(params.Mean, params.Sigma, r.rng.Stream("", "toy", i, r.settings.Seed))
		if err != nil {
			return err
		}
		toy, err := histogram.New(fmt.Sprintf("toy-%d", i), h.NBins(), h.Low(), h.High())
		if err != nil {
			return err
		}
		if err := s.DrawInto(toy, out.Entries); err != nil {
			return err
		}
		out.Toys[i], _ = objective.NewNLL(toy).GoodnessOfFit(p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, v := range out.Toys {
		if v >= out.Observed {
			out.Exceeding++
		}
	}
	out.PValue = float64(out.Exceeding) / float64(ntoys)
	out.Spread = moments(out.Toys)

	r.logger.Debug("toy goodness of fit: observed=%.2f toys=%.2f±%.2f p=%.3f",
		out.Observed, out.Spread.Mean, out.Spread.Std, out.PValue)
	return out, nil
}
