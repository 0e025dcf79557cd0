package testkit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"gaussfit/domain/fit"
	"gaussfit/internal/errors"
	"gaussfit/internal/histogram"
	"gaussfit/internal/sampler"
	"gaussfit/models"
	"gaussfit/ports"

	"github.com/google/uuid"
)

// Reference experiment: 1000 draws from Normal(20, 10) in 50 bins over [-20, 60)
const (
	ReferenceSamples = 1000
	ReferenceBins    = 50
	ReferenceLow     = -20.0
	ReferenceHigh    = 60.0
	ReferenceMean    = 20.0
	ReferenceSigma   = 10.0
)

// GaussianHistogram fills a histogram with n draws from Normal(mean, sigma)
// using a PCG stream seeded by seed.
func GaussianHistogram(name string, n int, mean, sigma float64, nbins int, low, high float64, seed uint64) (*histogram.Histogram, error) {
	s, err := sampler.New(mean, sigma, rand.NewPCG(seed, 0x9e3779b97f4a7c15))
	if err != nil {
		return nil, err
	}
	h, err := histogram.New(name, nbins, low, high)
	if err != nil {
		return nil, err
	}
	if err := s.DrawInto(h, n); err != nil {
		return nil, err
	}
	return h, nil
}

// ReferenceHistogram returns the reference experiment with n draws
func ReferenceHistogram(n int, seed uint64) (*histogram.Histogram, error) {
	return GaussianHistogram(fmt.Sprintf("reference-%d", seed), n,
		ReferenceMean, ReferenceSigma, ReferenceBins, ReferenceLow, ReferenceHigh, seed)
}

// InMemoryTrialRepository implements ports.TrialRepository with maps
type InMemoryTrialRepository struct {
	runs   map[uuid.UUID]models.Run
	trials map[uuid.UUID][]models.TrialRecord
	mu     sync.RWMutex
}

var _ ports.TrialRepository = (*InMemoryTrialRepository)(nil)

func NewInMemoryTrialRepository() *InMemoryTrialRepository {
	return &InMemoryTrialRepository{
		runs:   make(map[uuid.UUID]models.Run),
		trials: make(map[uuid.UUID][]models.TrialRecord),
	}
}

func (s *InMemoryTrialRepository) SaveRun(ctx context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return errors.StorageError(fmt.Sprintf("run %s already exists", run.ID), nil)
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *InMemoryTrialRepository) CompleteRun(ctx context.Context, runID uuid.UUID, status models.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return errors.NotFound("run " + runID.String())
	}
	run.Status = status
	s.runs[runID] = run
	return nil
}

func (s *InMemoryTrialRepository) SaveTrials(ctx context.Context, records []models.TrialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		if _, ok := s.runs[rec.RunID]; !ok {
			return errors.NotFound("run " + rec.RunID.String())
		}
	}
	for _, rec := range records {
		s.trials[rec.RunID] = append(s.trials[rec.RunID], rec)
	}
	return nil
}

func (s *InMemoryTrialRepository) ListTrials(ctx context.Context, runID uuid.UUID, method fit.Method) ([]models.TrialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.TrialRecord
	for _, rec := range s.trials[runID] {
		if method == "" || rec.Method == string(method) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Trial != out[j].Trial {
			return out[i].Trial < out[j].Trial
		}
		return out[i].Method < out[j].Method
	})
	return out, nil
}

func (s *InMemoryTrialRepository) GetRun(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, errors.NotFound("run " + runID.String())
	}
	return &run, nil
}

// RunIDs returns the stored run IDs
func (s *InMemoryTrialRepository) RunIDs() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	return ids
}
