package sqlstore

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"testing"
	"time"

	"gaussfit/domain/fit"
	"gaussfit/internal/errors"
	"gaussfit/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "trials.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(ctx))
	return store
}

func testRun() *models.Run {
	return &models.Run{
		ID:          uuid.New(),
		Method:      "both",
		SampleCount: 1000,
		Bins:        50,
		DomainLow:   -20,
		DomainHigh:  60,
		TrueMean:    20,
		TrueSigma:   10,
		Seed:        42,
		Trials:      3,
		Fingerprint: "abc123",
		Status:      models.RunStatusRunning,
		StartedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestMigrator_IsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	applied, err := NewMigrator(store.DB(), nil).Up(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied, "second run applies nothing")

	status, err := NewMigrator(store.DB(), nil).Status(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, status)
	for _, s := range status {
		assert.True(t, s.Applied, "migration %s", s.Version)
	}
	assert.Equal(t, "001", status[0].Version)
}

func TestStore_RunRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	run := testRun()

	require.NoError(t, store.SaveRun(ctx, run))
	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, run.Fingerprint, got.Fingerprint)
	assert.Equal(t, models.RunStatusRunning, got.Status)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, store.CompleteRun(ctx, run.ID, models.RunStatusComplete))
	got, err = store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusComplete, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestStore_MissingRun(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.GetRun(ctx, uuid.New())
	assert.True(t, stderrors.Is(err, errors.ErrNotFound))

	err = store.CompleteRun(ctx, uuid.New(), models.RunStatusFailed)
	assert.True(t, stderrors.Is(err, errors.ErrNotFound))
}

func TestStore_TrialsFilteredByMethod(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	run := testRun()
	require.NoError(t, store.SaveRun(ctx, run))

	res := &fit.Result{Method: fit.MethodNLL, NDF: 47, Statistic: 40, PValue: 0.7, Status: "GradientThreshold"}
	res.Estimates[fit.ParamMean] = fit.Estimate{Name: "mean", Value: 20.1, Error: 0.32}

	records := []models.TrialRecord{
		models.NewTrialRecord(run.ID, 1, fit.MethodNLL, 1000, res, nil),
		models.NewTrialRecord(run.ID, 0, fit.MethodNLL, 1000, res, nil),
		models.NewTrialRecord(run.ID, 0, fit.MethodChi2, 1000, nil, errors.FitNonConvergence("stalled")),
	}
	require.NoError(t, store.SaveTrials(ctx, records))

	nll, err := store.ListTrials(ctx, run.ID, fit.MethodNLL)
	require.NoError(t, err)
	require.Len(t, nll, 2)
	assert.Equal(t, 0, nll[0].Trial)
	assert.Equal(t, 1, nll[1].Trial)
	assert.InDelta(t, 20.1, nll[0].Mean, 1e-12)
	assert.InDelta(t, 40.0/47, nll[0].ReducedStatistic(), 1e-12)

	all, err := store.ListTrials(ctx, run.ID, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "chi2", all[0].Method)
	assert.True(t, all[0].Failed())
	assert.Equal(t, "stalled", all[0].ErrorMessage)
}

func TestStore_DuplicateTrialRollsBack(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	run := testRun()
	require.NoError(t, store.SaveRun(ctx, run))

	rec := models.NewTrialRecord(run.ID, 0, fit.MethodChi2, 10, nil, errors.DegenerateHistogram("two bins"))
	err := store.SaveTrials(ctx, []models.TrialRecord{rec, rec})
	require.Error(t, err)

	stored, err := store.ListTrials(ctx, run.ID, "")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "x", nil)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))
}
