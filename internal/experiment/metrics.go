package experiment

import (
	"gaussfit/domain/fit"

	"github.com/go-kit/kit/metrics/generic"
)

// Metrics collects in-process ensemble instrumentation. The per-method
// maps are filled at construction and only read afterwards.
type Metrics struct {
	trials      *generic.Counter
	failures    map[fit.Method]*generic.Counter
	evaluations map[fit.Method]*generic.Histogram
}

// NewMetrics creates metrics for the given methods
func NewMetrics(methods []fit.Method) *Metrics {
	m := &Metrics{
		trials:      generic.NewCounter("trials_total"),
		failures:    make(map[fit.Method]*generic.Counter, len(methods)),
		evaluations: make(map[fit.Method]*generic.Histogram, len(methods)),
	}
	for _, method := range methods {
		m.failures[method] = generic.NewCounter("fit_failures_total").With("method", string(method)).(*generic.Counter)
		m.evaluations[method] = generic.NewHistogram("fit_evaluations", 50).With("method", string(method)).(*generic.Histogram)
	}
	return m
}

// ObserveTrial records one trial and each of its fits
func (m *Metrics) ObserveTrial(t TrialResult) {
	m.trials.Add(1)
	for _, o := range t.Outcomes {
		if o.Failed() {
			if c, ok := m.failures[o.Method]; ok {
				c.Add(1)
			}
			continue
		}
		if h, ok := m.evaluations[o.Method]; ok {
			h.Observe(float64(o.Result.Evaluations))
		}
	}
}

// Trials returns the number of trials observed
func (m *Metrics) Trials() float64 { return m.trials.Value() }

// Failures returns the number of failed fits for method
func (m *Metrics) Failures(method fit.Method) float64 {
	if c, ok := m.failures[method]; ok {
		return c.Value()
	}
	return 0
}

// EvaluationQuantile returns the q-quantile of objective evaluations per fit
func (m *Metrics) EvaluationQuantile(method fit.Method, q float64) float64 {
	if h, ok := m.evaluations[method]; ok {
		return h.Quantile(q)
	}
	return 0
}
