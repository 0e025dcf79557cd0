// Package sqlstore persists ensemble runs through sqlx, on SQLite or
// PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"gaussfit/domain/fit"
	"gaussfit/internal"
	"gaussfit/internal/errors"
	"gaussfit/models"
	"gaussfit/ports"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Store implements ports.TrialRepository
type Store struct {
	db     *sqlx.DB
	logger *internal.Logger
}

var _ ports.TrialRepository = (*Store)(nil)

// Open connects to the database behind driver and url
func Open(ctx context.Context, driver, url string, logger *internal.Logger) (*Store, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, errors.InvalidConfiguration(fmt.Sprintf("unsupported database driver %q (want %s or %s)", driver, DriverSQLite, DriverPostgres))
	}
	db, err := sqlx.ConnectContext(ctx, driver, url)
	if err != nil {
		return nil, errors.StorageError(fmt.Sprintf("failed to connect to %s database", driver), err)
	}
	if driver == DriverSQLite {
		// one writer at a time
		db.SetMaxOpenConns(1)
	}
	return New(db, logger), nil
}

// New wraps an open connection
func New(db *sqlx.DB, logger *internal.Logger) *Store {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Store{db: db, logger: logger}
}

// DB exposes the underlying connection
func (s *Store) DB() *sqlx.DB { return s.db }

// Close closes the connection
func (s *Store) Close() error { return s.db.Close() }

// Migrate applies pending schema migrations
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := NewMigrator(s.db, s.logger).Up(ctx); err != nil {
		return errors.StorageError("migration failed", err)
	}
	return nil
}

// SaveRun inserts a run header
func (s *Store) SaveRun(ctx context.Context, run *models.Run) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO runs (id, method, sample_count, bins, domain_low, domain_high, true_mean, true_sigma,
			seed, trials, fingerprint, status, started_at, completed_at)
		VALUES (:id, :method, :sample_count, :bins, :domain_low, :domain_high, :true_mean, :true_sigma,
			:seed, :trials, :fingerprint, :status, :started_at, :completed_at)
	`, run)
	if err != nil {
		return errors.StorageError(fmt.Sprintf("failed to save run %s", run.ID), err)
	}
	return nil
}

// CompleteRun marks a run finished
func (s *Store) CompleteRun(ctx context.Context, runID uuid.UUID, status models.RunStatus) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE runs SET status = ?, completed_at = ? WHERE id = ?
	`), status, time.Now().UTC(), runID)
	if err != nil {
		return errors.StorageError(fmt.Sprintf("failed to complete run %s", runID), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("run " + runID.String())
	}
	return nil
}

// SaveTrials inserts records in one transaction
func (s *Store) SaveTrials(ctx context.Context, records []models.TrialRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.StorageError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO trials (run_id, trial, method, entries, constant, constant_error, mean, mean_error,
			sigma, sigma_error, statistic, ndf, p_value, iterations, status, error_message)
		VALUES (:run_id, :trial, :method, :entries, :constant, :constant_error, :mean, :mean_error,
			:sigma, :sigma_error, :statistic, :ndf, :p_value, :iterations, :status, :error_message)
	`)
	if err != nil {
		return errors.StorageError("failed to prepare trial insert", err)
	}
	defer stmt.Close()

	for i := range records {
		if _, err := stmt.ExecContext(ctx, &records[i]); err != nil {
			return errors.StorageError(fmt.Sprintf("failed to save trial %d (%s)", records[i].Trial, records[i].Method), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.StorageError("failed to commit trials", err)
	}
	s.logger.Debug("saved %d trial records", len(records))
	return nil
}

// ListTrials returns a run's trials ordered by trial index and method
func (s *Store) ListTrials(ctx context.Context, runID uuid.UUID, method fit.Method) ([]models.TrialRecord, error) {
	query := `
		SELECT run_id, trial, method, entries, constant, constant_error, mean, mean_error,
			sigma, sigma_error, statistic, ndf, p_value, iterations, status, error_message
		FROM trials
		WHERE run_id = ?`
	args := []interface{}{runID}
	if method != "" {
		query += " AND method = ?"
		args = append(args, string(method))
	}
	query += " ORDER BY trial, method"

	var records []models.TrialRecord
	if err := s.db.SelectContext(ctx, &records, s.db.Rebind(query), args...); err != nil {
		return nil, errors.StorageError(fmt.Sprintf("failed to list trials of run %s", runID), err)
	}
	return records, nil
}

// GetRun retrieves a run header
func (s *Store) GetRun(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	var run models.Run
	err := s.db.GetContext(ctx, &run, s.db.Rebind(`
		SELECT id, method, sample_count, bins, domain_low, domain_high, true_mean, true_sigma,
			seed, trials, fingerprint, status, started_at, completed_at
		FROM runs
		WHERE id = ?
	`), runID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("run " + runID.String())
	}
	if err != nil {
		return nil, errors.StorageError(fmt.Sprintf("failed to get run %s", runID), err)
	}
	return &run, nil
}
