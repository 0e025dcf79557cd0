package experiment

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"

	"gaussfit/adapters/rng"
	"gaussfit/domain/fit"
	"gaussfit/internal/config"
	"gaussfit/internal/errors"
	"gaussfit/internal/fitter"
	"gaussfit/internal/testkit"
	"gaussfit/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func referenceSettings(samples, workers int, methods ...fit.Method) Settings {
	return Settings{
		SampleCount: samples,
		Bins:        testkit.ReferenceBins,
		DomainLow:   testkit.ReferenceLow,
		DomainHigh:  testkit.ReferenceHigh,
		TrueMean:    testkit.ReferenceMean,
		TrueSigma:   testkit.ReferenceSigma,
		Methods:     methods,
		Seed:        42,
		Workers:     workers,
		Fit:         fitter.DefaultOptions(fit.MethodNLL),
	}
}

func newRunner(t *testing.T, s Settings, opts ...Option) *Runner {
	t.Helper()
	r, err := NewRunner(s, rng.NewSeededAdapter(), opts...)
	require.NoError(t, err)
	return r
}

type MockTrialRepository struct {
	mock.Mock
}

func (m *MockTrialRepository) SaveRun(ctx context.Context, run *models.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockTrialRepository) CompleteRun(ctx context.Context, runID uuid.UUID, status models.RunStatus) error {
	args := m.Called(ctx, runID, status)
	return args.Error(0)
}

func (m *MockTrialRepository) SaveTrials(ctx context.Context, records []models.TrialRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func (m *MockTrialRepository) ListTrials(ctx context.Context, runID uuid.UUID, method fit.Method) ([]models.TrialRecord, error) {
	args := m.Called(ctx, runID, method)
	return args.Get(0).([]models.TrialRecord), args.Error(1)
}

func (m *MockTrialRepository) GetRun(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(*models.Run), args.Error(1)
}

func TestRun_IndependentOfWorkerCount(t *testing.T) {
	ctx := context.Background()
	serial, err := newRunner(t, referenceSettings(500, 1, fit.MethodNLL)).Run(ctx, 12)
	require.NoError(t, err)
	parallel, err := newRunner(t, referenceSettings(500, 6, fit.MethodNLL)).Run(ctx, 12)
	require.NoError(t, err)

	require.Len(t, parallel.Trials, 12)
	for i := range serial.Trials {
		a, _ := serial.Trials[i].Outcome(fit.MethodNLL)
		b, _ := parallel.Trials[i].Outcome(fit.MethodNLL)
		require.False(t, a.Failed())
		require.False(t, b.Failed())
		assert.Equal(t, i, parallel.Trials[i].Index)
		assert.Equal(t, a.Result.Params(), b.Result.Params(), "trial %d", i)
	}
}

func TestRun_TrialsDiffer(t *testing.T) {
	ens, err := newRunner(t, referenceSettings(500, 2, fit.MethodNLL)).Run(context.Background(), 3)
	require.NoError(t, err)

	results := ens.Results(fit.MethodNLL)
	require.Len(t, results, 3)
	assert.NotEqual(t, results[0].Params(), results[1].Params())
}

func TestRun_BothMethodsPerTrial(t *testing.T) {
	var seen atomic.Int32
	r := newRunner(t, referenceSettings(1000, 4, fit.MethodChi2, fit.MethodNLL),
		WithOnTrial(func(tr TrialResult) { seen.Add(1) }))

	ens, err := r.Run(context.Background(), 8)
	require.NoError(t, err)
	assert.EqualValues(t, 8, seen.Load())
	assert.EqualValues(t, 8, r.Metrics().Trials())

	for _, tr := range ens.Trials {
		require.Len(t, tr.Outcomes, 2)
		assert.Equal(t, fit.MethodChi2, tr.Outcomes[0].Method)
		assert.Equal(t, fit.MethodNLL, tr.Outcomes[1].Method)
		assert.Equal(t, 1000, tr.Entries)
	}
	assert.Greater(t, r.Metrics().EvaluationQuantile(fit.MethodNLL, 0.5), 0.0)
}

func TestRun_RecordsFailuresWithoutAborting(t *testing.T) {
	// two draws can never fill the three bins a fit needs
	s := referenceSettings(2, 2, fit.MethodChi2, fit.MethodNLL)
	r := newRunner(t, s)

	ens, err := r.Run(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, ens.Trials, 20)

	for _, method := range s.Methods {
		assert.Equal(t, 20, ens.Failures(method))
		assert.Empty(t, ens.Results(method))
		assert.EqualValues(t, 20, r.Metrics().Failures(method))
	}
	o, _ := ens.Trials[0].Outcome(fit.MethodNLL)
	assert.True(t, stderrors.Is(o.Err, errors.ErrDegenerateHistogram))
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newRunner(t, referenceSettings(1000, 2, fit.MethodNLL)).Run(ctx, 50)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, context.Canceled))
}

func TestRun_PersistsThroughRepository(t *testing.T) {
	repo := testkit.NewInMemoryTrialRepository()
	r := newRunner(t, referenceSettings(500, 3, fit.MethodChi2, fit.MethodNLL), WithRepository(repo))

	ens, err := r.Run(context.Background(), 5)
	require.NoError(t, err)

	ids := repo.RunIDs()
	require.Len(t, ids, 1)
	assert.Equal(t, ens.RunID.String(), ids[0].String())

	run, err := repo.GetRun(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusComplete, run.Status)
	assert.Equal(t, "both", run.Method)

	records, err := repo.ListTrials(context.Background(), ids[0], fit.MethodNLL)
	require.NoError(t, err)
	require.Len(t, records, 5)
	for i, rec := range records {
		assert.Equal(t, i, rec.Trial)
	}
}

func TestRun_MarksRunFailedWhenTrialsCannotBeSaved(t *testing.T) {
	repo := new(MockTrialRepository)
	repo.On("SaveRun", mock.Anything, mock.AnythingOfType("*models.Run")).Return(nil)
	repo.On("SaveTrials", mock.Anything, mock.Anything).Return(errors.StorageError("disk full", nil))
	repo.On("CompleteRun", mock.Anything, mock.Anything, models.RunStatusFailed).Return(nil)

	r := newRunner(t, referenceSettings(200, 1, fit.MethodNLL), WithRepository(repo))
	_, err := r.Run(context.Background(), 2)
	require.Error(t, err)
	assert.Equal(t, errors.CodeStorageError, errors.GetCode(err))
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "CompleteRun", mock.Anything, mock.Anything, models.RunStatusComplete)
}

func TestRunSingle_IsReproducible(t *testing.T) {
	s := referenceSettings(1000, 1, fit.MethodChi2, fit.MethodNLL)
	a, err := newRunner(t, s).RunSingle(context.Background())
	require.NoError(t, err)
	b, err := newRunner(t, s).RunSingle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, a.Histogram.Counts(), b.Histogram.Counts())
	assert.Equal(t, a.Results[fit.MethodNLL].Params(), b.Results[fit.MethodNLL].Params())
	require.Contains(t, a.Results, fit.MethodChi2)
}

func TestNewRunner_InvalidSettings(t *testing.T) {
	cases := map[string]func(*Settings){
		"no methods": func(s *Settings) { s.Methods = nil },
		"no bins":    func(s *Settings) { s.Bins = 0 },
		"bad sigma":  func(s *Settings) { s.TrueSigma = -1 },
		"bad domain": func(s *Settings) { s.DomainLow = s.DomainHigh },
		"bad fit":    func(s *Settings) { s.Fit.MaxIterations = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := referenceSettings(100, 1, fit.MethodNLL)
			mutate(&s)
			_, err := NewRunner(s, rng.NewSeededAdapter())
			assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration), "%v", err)
		})
	}
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Experiment.Method = fit.MethodBoth

	s, err := SettingsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []fit.Method{fit.MethodChi2, fit.MethodNLL}, s.Methods)
	assert.Equal(t, "both", s.MethodLabel())
	assert.InDelta(t, 0.316, s.TheoryError(), 1e-3)
	assert.NotEmpty(t, s.Fingerprint)
}
