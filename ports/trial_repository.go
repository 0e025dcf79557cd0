package ports

import (
	"context"

	"gaussfit/domain/fit"
	"gaussfit/models"

	"github.com/google/uuid"
)

// TrialRepository stores ensemble runs and their per-trial fits
type TrialRepository interface {
	// SaveRun inserts a run header
	SaveRun(ctx context.Context, run *models.Run) error

	// CompleteRun marks a run finished with the given status
	CompleteRun(ctx context.Context, runID uuid.UUID, status models.RunStatus) error

	// SaveTrials inserts trial records in one transaction
	SaveTrials(ctx context.Context, records []models.TrialRecord) error

	// ListTrials returns a run's trials ordered by trial index. An empty
	// method returns every method.
	ListTrials(ctx context.Context, runID uuid.UUID, method fit.Method) ([]models.TrialRecord, error)

	// GetRun retrieves a run header
	GetRun(ctx context.Context, runID uuid.UUID) (*models.Run, error)
}
