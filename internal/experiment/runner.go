// Package experiment runs the sample, histogram and fit pipeline once or as
// an ensemble of independent trials.
package experiment

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"gaussfit/domain/core"
	"gaussfit/domain/fit"
	"gaussfit/internal"
	"gaussfit/internal/config"
	"gaussfit/internal/errors"
	"gaussfit/internal/fitter"
	"gaussfit/internal/histogram"
	"gaussfit/internal/sampler"
	"gaussfit/models"
	"gaussfit/ports"

	"github.com/google/uuid"
)

// Settings is everything one trial needs
type Settings struct {
	SampleCount int
	Bins        int
	DomainLow   float64
	DomainHigh  float64
	TrueMean    float64
	TrueSigma   float64
	Methods     []fit.Method
	Seed        uint64
	Workers     int
	Fit         fitter.Options
	Fingerprint string
}

// SettingsFromConfig extracts runner settings from the application config
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	methods, err := fit.ParseMethods(string(cfg.Experiment.Method))
	if err != nil {
		return Settings{}, err
	}
	exp := cfg.Experiment
	return Settings{
		SampleCount: exp.SampleCount,
		Bins:        exp.Bins,
		DomainLow:   exp.DomainLow,
		DomainHigh:  exp.DomainHigh,
		TrueMean:    exp.TrueMean,
		TrueSigma:   exp.TrueSigma,
		Methods:     methods,
		Seed:        exp.Seed,
		Workers:     exp.Workers,
		Fit: fitter.Options{
			MaxIterations:     cfg.Fit.MaxIterations,
			GradientTolerance: cfg.Fit.GradientTolerance,
		},
		Fingerprint: cfg.Fingerprint().Short(),
	}, nil
}

// TheoryError returns sigma/sqrt(N), the standard error of the sample mean
func (s Settings) TheoryError() float64 {
	return s.TrueSigma / math.Sqrt(float64(s.SampleCount))
}

// MethodLabel names the method selection as configured
func (s Settings) MethodLabel() string {
	if len(s.Methods) == 1 {
		return string(s.Methods[0])
	}
	return string(fit.MethodBoth)
}

// Outcome is one fit of one trial. Exactly one of Result and Err is set.
type Outcome struct {
	Method fit.Method
	Result *fit.Result
	Err    error
}

// Failed reports whether the fit failed
func (o Outcome) Failed() bool { return o.Err != nil || o.Result == nil }

// TrialResult holds every fit of one trial in Settings.Methods order
type TrialResult struct {
	Index    int
	Entries  int
	Outcomes []Outcome
}

// Outcome returns the fit for method
func (t TrialResult) Outcome(method fit.Method) (Outcome, bool) {
	for _, o := range t.Outcomes {
		if o.Method == method {
			return o, true
		}
	}
	return Outcome{}, false
}

// Ensemble is the result of Run
type Ensemble struct {
	RunID    core.RunID
	Settings Settings
	Trials   []TrialResult
	Started  time.Time
	Finished time.Time
}

// Results returns the successful fits for method in trial order
func (e *Ensemble) Results(method fit.Method) []*fit.Result {
	out := make([]*fit.Result, 0, len(e.Trials))
	for _, t := range e.Trials {
		if o, ok := t.Outcome(method); ok && !o.Failed() {
			out = append(out, o.Result)
		}
	}
	return out
}

// Failures returns the number of failed fits for method
func (e *Ensemble) Failures(method fit.Method) int {
	n := 0
	for _, t := range e.Trials {
		if o, ok := t.Outcome(method); ok && o.Failed() {
			n++
		}
	}
	return n
}

// Records flattens every outcome into storage rows in trial order
func (e *Ensemble) Records(runID uuid.UUID) []models.TrialRecord {
	records := make([]models.TrialRecord, 0, len(e.Trials)*len(e.Settings.Methods))
	for _, t := range e.Trials {
		for _, o := range t.Outcomes {
			records = append(records, models.NewTrialRecord(runID, t.Index, o.Method, t.Entries, o.Result, o.Err))
		}
	}
	return records
}

// Single is the result of one experiment
type Single struct {
	Histogram *histogram.Histogram
	Results   map[fit.Method]*fit.Result
}

// Runner executes experiments
type Runner struct {
	settings Settings
	rng      ports.RNGPort
	fitters  map[fit.Method]*fitter.Fitter
	repo     ports.TrialRepository
	metrics  *Metrics
	logger   *internal.Logger

	callbackMu sync.Mutex
	onTrial    func(TrialResult)
}

// Option configures a Runner
type Option func(*Runner)

// WithRepository persists every ensemble run through repo
func WithRepository(repo ports.TrialRepository) Option {
	return func(r *Runner) { r.repo = repo }
}

// WithLogger sets the runner's logger
func WithLogger(logger *internal.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithOnTrial registers a callback invoked after each trial completes.
// Calls are serialized but arrive in completion order.
func WithOnTrial(fn func(TrialResult)) Option {
	return func(r *Runner) { r.onTrial = fn }
}

// NewRunner validates settings and builds one fitter per method
func NewRunner(settings Settings, rng ports.RNGPort, opts ...Option) (*Runner, error) {
	if rng == nil {
		return nil, errors.InvalidConfiguration("runner needs an RNG")
	}
	if len(settings.Methods) == 0 {
		return nil, errors.InvalidConfiguration("runner needs at least one fit method")
	}
	if settings.SampleCount < 0 {
		return nil, errors.InvalidConfiguration(fmt.Sprintf("sample count must not be negative, got %d", settings.SampleCount))
	}
	if _, err := histogram.New("check", settings.Bins, settings.DomainLow, settings.DomainHigh); err != nil {
		return nil, err
	}
	if _, err := sampler.New(settings.TrueMean, settings.TrueSigma, rng.SeededStream("check", 1)); err != nil {
		return nil, err
	}

	r := &Runner{
		settings: settings,
		rng:      rng,
		fitters:  make(map[fit.Method]*fitter.Fitter, len(settings.Methods)),
		logger:   internal.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = internal.NewNopLogger()
	}
	for _, method := range settings.Methods {
		o := settings.Fit
		o.Method = method
		f, err := fitter.New(o, r.logger)
		if err != nil {
			return nil, err
		}
		r.fitters[method] = f
	}
	r.metrics = NewMetrics(settings.Methods)
	return r, nil
}

// Settings returns the runner's settings
func (r *Runner) Settings() Settings { return r.settings }

// Metrics returns the instrumentation of the runner's ensembles
func (r *Runner) Metrics() *Metrics { return r.metrics }

// Fitter returns the fitter for method, or nil when the method is not configured
func (r *Runner) Fitter(method fit.Method) *fitter.Fitter { return r.fitters[method] }

// NewHistogram returns an empty histogram with the configured binning
func (r *Runner) NewHistogram(name string) (*histogram.Histogram, error) {
	return histogram.New(name, r.settings.Bins, r.settings.DomainLow, r.settings.DomainHigh)
}

// Sample draws one histogram from the stream named name
func (r *Runner) Sample(name string) (*histogram.Histogram, error) {
	return r.sampleFrom(name, r.rng.SeededStream(name, r.settings.Seed))
}

func (r *Runner) sampleFrom(name string, src rand.Source) (*histogram.Histogram, error) {
	s, err := sampler.New(r.settings.TrueMean, r.settings.TrueSigma, src)
	if err != nil {
		return nil, err
	}
	h, err := r.NewHistogram(name)
	if err != nil {
		return nil, err
	}
	if err := s.DrawInto(h, r.settings.SampleCount); err != nil {
		return nil, err
	}
	return h, nil
}

// RunSingle samples one histogram and fits it with every configured method
func (r *Runner) RunSingle(ctx context.Context) (*Single, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := r.Sample("sample")
	if err != nil {
		return nil, err
	}
	r.logger.Debug("sampled %s", h)

	results, err := r.FitHistogram(h)
	if err != nil {
		return nil, err
	}
	return &Single{Histogram: h, Results: results}, nil
}

// FitHistogram fits h with every configured method from the same guess
func (r *Runner) FitHistogram(h *histogram.Histogram) (map[fit.Method]*fit.Result, error) {
	guess, err := fitter.InitialGuess(h)
	if err != nil {
		return nil, err
	}
	results := make(map[fit.Method]*fit.Result, len(r.settings.Methods))
	for _, method := range r.settings.Methods {
		res, err := r.fitters[method].Fit(h, guess)
		if err != nil {
			return nil, err
		}
		results[method] = res
	}
	return results, nil
}

// Run executes trials independent experiments. Trial i always draws from
// the same stream, so results do not depend on the worker count. Fit
// failures are recorded per trial; only configuration errors and context
// cancellation abort the run.
func (r *Runner) Run(ctx context.Context, trials int) (*Ensemble, error) {
	if trials < 1 {
		return nil, errors.InvalidConfiguration(fmt.Sprintf("trial count must be positive, got %d", trials))
	}

	ens := &Ensemble{
		RunID:    core.NewRunID(),
		Settings: r.settings,
		Trials:   make([]TrialResult, trials),
		Started:  time.Now().UTC(),
	}

	runUUID, err := uuid.Parse(ens.RunID.String())
	if err != nil {
		return nil, errors.InternalError(fmt.Sprintf("run ID %s is not a UUID", ens.RunID))
	}
	if r.repo != nil {
		if err := r.repo.SaveRun(ctx, r.runRecord(runUUID, trials, ens.Started)); err != nil {
			return nil, err
		}
	}

	r.logger.Info("run %s: %d trials of %d samples, methods=%v workers=%d seed=%d",
		ens.RunID, trials, r.settings.SampleCount, r.settings.Methods, r.settings.Workers, r.settings.Seed)

	err = forEach(ctx, trials, r.settings.Workers, func(ctx context.Context, i int) error {
		t, err := r.runTrial(i)
		if err != nil {
			return err
		}
		ens.Trials[i] = t
		r.metrics.ObserveTrial(t)
		if r.onTrial != nil {
			r.callbackMu.Lock()
			r.onTrial(t)
			r.callbackMu.Unlock()
		}
		return nil
	})
	ens.Finished = time.Now().UTC()

	if err != nil {
		if r.repo != nil {
			// the run error is the one worth reporting
			_ = r.repo.CompleteRun(context.WithoutCancel(ctx), runUUID, models.RunStatusFailed)
		}
		return nil, errors.Wrapf(err, "run %s", ens.RunID)
	}

	if r.repo != nil {
		if err := r.persist(ctx, runUUID, ens); err != nil {
			return nil, err
		}
	}

	for _, method := range r.settings.Methods {
		if n := ens.Failures(method); n > 0 {
			r.logger.Warn("run %s: %d of %d %s fits failed", ens.RunID, n, trials, method)
		}
	}
	r.logger.Info("run %s finished in %s", ens.RunID, ens.Finished.Sub(ens.Started).Round(time.Millisecond))
	return ens, nil
}

func (r *Runner) runTrial(i int) (TrialResult, error) {
	src := r.rng.Stream("", "trial", i, r.settings.Seed)
	h, err := r.sampleFrom(fmt.Sprintf("trial-%d", i), src)
	if err != nil {
		return TrialResult{}, err
	}

	t := TrialResult{Index: i, Entries: h.Entries(), Outcomes: make([]Outcome, len(r.settings.Methods))}
	guess, guessErr := fitter.InitialGuess(h)
	for k, method := range r.settings.Methods {
		t.Outcomes[k].Method = method
		if guessErr != nil {
			t.Outcomes[k].Err = guessErr
			continue
		}
		res, err := r.fitters[method].Fit(h, guess)
		if err != nil {
			r.logger.Debug("trial %d %s fit failed: %v", i, method, err)
			t.Outcomes[k].Err = err
			continue
		}
		t.Outcomes[k].Result = res
	}
	return t, nil
}

func (r *Runner) runRecord(id uuid.UUID, trials int, started time.Time) *models.Run {
	s := r.settings
	return &models.Run{
		ID:          id,
		Method:      s.MethodLabel(),
		SampleCount: s.SampleCount,
		Bins:        s.Bins,
		DomainLow:   s.DomainLow,
		DomainHigh:  s.DomainHigh,
		TrueMean:    s.TrueMean,
		TrueSigma:   s.TrueSigma,
		Seed:        int64(s.Seed),
		Trials:      trials,
		Fingerprint: s.Fingerprint,
		Status:      models.RunStatusRunning,
		StartedAt:   started,
	}
}

func (r *Runner) persist(ctx context.Context, runID uuid.UUID, ens *Ensemble) error {
	records := ens.Records(runID)
	if err := r.repo.SaveTrials(ctx, records); err != nil {
		_ = r.repo.CompleteRun(context.WithoutCancel(ctx), runID, models.RunStatusFailed)
		return err
	}
	return r.repo.CompleteRun(ctx, runID, models.RunStatusComplete)
}
