package excel

import (
	"gaussfit/internal"
	"gaussfit/internal/errors"
	"gaussfit/internal/experiment"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

var trialsHeader = []interface{}{
	"trial", "method", "entries", "status",
	"constant", "constant_error", "mean", "mean_error", "sigma", "sigma_error",
	"statistic", "ndf", "reduced", "p_value", "iterations", "error",
}

var summaryHeader = []interface{}{
	"method", "trials", "successes", "failures",
	"mean_of_means", "std_of_means", "theory_error", "bias",
	"mean_error", "reduced_statistic", "p_value", "median_p_value",
	"fitted_sigma", "pull_mean", "pull_std", "coverage",
}

// ExportEnsemble writes one row per trial and method to the trials sheet
// and the per-method summaries to the summary sheet.
func ExportEnsemble(path string, ens *experiment.Ensemble, sums []experiment.Summary, logger *internal.Logger) error {
	runID, err := uuid.Parse(ens.RunID.String())
	if err != nil {
		return errors.InvalidInput("ensemble has no valid run ID")
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", SheetTrials); err != nil {
		return errors.Wrap(err, "failed to name trials sheet")
	}

	records := ens.Records(runID)
	rows := make([][]interface{}, 0, len(records)+1)
	rows = append(rows, trialsHeader)
	for _, rec := range records {
		rows = append(rows, []interface{}{
			rec.Trial, rec.Method, rec.Entries, rec.Status,
			rec.Constant, rec.ConstantError, rec.Mean, rec.MeanError, rec.Sigma, rec.SigmaError,
			rec.Statistic, rec.NDF, rec.ReducedStatistic(), rec.PValue, rec.Iterations, rec.ErrorMessage,
		})
	}
	if err := writeRows(f, SheetTrials, rows); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetSummary); err != nil {
		return errors.Wrap(err, "failed to create summary sheet")
	}
	rows = [][]interface{}{summaryHeader}
	for _, s := range sums {
		rows = append(rows, []interface{}{
			string(s.Method), s.Trials, s.Successes, s.Failures,
			s.FittedMean.Mean, s.FittedMean.Std, s.TheoryError, s.Bias,
			s.MeanError.Mean, s.ReducedStatistic.Mean, s.PValue.Mean, s.MedianPValue,
			s.FittedSigma.Mean, s.Pull.Mean, s.Pull.Std, s.Coverage,
		})
	}
	if err := writeRows(f, SheetSummary, rows); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return errors.Wrapf(err, "failed to save %s", path)
	}
	if logger != nil {
		logger.Info("[excel] exported run %s (%d rows) to %s", ens.RunID, len(records), path)
	}
	return nil
}
