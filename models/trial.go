package models

import (
	"time"

	"gaussfit/domain/fit"

	"github.com/google/uuid"
)

// RunStatus tracks an ensemble run through its lifecycle
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is the stored header of one ensemble
type Run struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Method      string     `json:"method" db:"method"`
	SampleCount int        `json:"sample_count" db:"sample_count"`
	Bins        int        `json:"bins" db:"bins"`
	DomainLow   float64    `json:"domain_low" db:"domain_low"`
	DomainHigh  float64    `json:"domain_high" db:"domain_high"`
	TrueMean    float64    `json:"true_mean" db:"true_mean"`
	TrueSigma   float64    `json:"true_sigma" db:"true_sigma"`
	Seed        int64      `json:"seed" db:"seed"`
	Trials      int        `json:"trials" db:"trials"`
	Fingerprint string     `json:"fingerprint" db:"fingerprint"`
	Status      RunStatus  `json:"status" db:"status"`
	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// TrialRecord is one fit of one trial. A failed fit keeps zero estimates
// and carries the failure in ErrorMessage.
type TrialRecord struct {
	RunID         uuid.UUID `json:"run_id" db:"run_id"`
	Trial         int       `json:"trial" db:"trial"`
	Method        string    `json:"method" db:"method"`
	Entries       int       `json:"entries" db:"entries"`
	Constant      float64   `json:"constant" db:"constant"`
	ConstantError float64   `json:"constant_error" db:"constant_error"`
	Mean          float64   `json:"mean" db:"mean"`
	MeanError     float64   `json:"mean_error" db:"mean_error"`
	Sigma         float64   `json:"sigma" db:"sigma"`
	SigmaError    float64   `json:"sigma_error" db:"sigma_error"`
	Statistic     float64   `json:"statistic" db:"statistic"`
	NDF           int       `json:"ndf" db:"ndf"`
	PValue        float64   `json:"p_value" db:"p_value"`
	Iterations    int       `json:"iterations" db:"iterations"`
	Status        string    `json:"status" db:"status"`
	ErrorMessage  string    `json:"error_message" db:"error_message"`
}

// NewTrialRecord flattens a fit outcome for storage
func NewTrialRecord(runID uuid.UUID, trial int, method fit.Method, entries int, res *fit.Result, fitErr error) TrialRecord {
	rec := TrialRecord{
		RunID:   runID,
		Trial:   trial,
		Method:  string(method),
		Entries: entries,
	}
	if fitErr != nil || res == nil {
		rec.Status = "failed"
		if fitErr != nil {
			rec.ErrorMessage = fitErr.Error()
		}
		return rec
	}
	rec.Constant = res.Param(fit.ParamConstant).Value
	rec.ConstantError = res.Param(fit.ParamConstant).Error
	rec.Mean = res.Param(fit.ParamMean).Value
	rec.MeanError = res.Param(fit.ParamMean).Error
	rec.Sigma = res.Param(fit.ParamSigma).Value
	rec.SigmaError = res.Param(fit.ParamSigma).Error
	rec.Statistic = res.Statistic
	rec.NDF = res.NDF
	rec.PValue = res.PValue
	rec.Iterations = res.Iterations
	rec.Status = res.Status
	return rec
}

// Failed reports whether the stored fit failed
func (r TrialRecord) Failed() bool {
	return r.ErrorMessage != "" || r.Status == "failed"
}

// ReducedStatistic returns Statistic/NDF, or 0 without degrees of freedom
func (r TrialRecord) ReducedStatistic() float64 {
	if r.NDF <= 0 {
		return 0
	}
	return r.Statistic / float64(r.NDF)
}
