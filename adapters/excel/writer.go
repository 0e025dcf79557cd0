package excel

import (
	"fmt"

	"gaussfit/internal"
	"gaussfit/internal/errors"
	"gaussfit/internal/histogram"

	"github.com/xuri/excelize/v2"
)

// WriteHistogram saves h as a workbook with a meta sheet and one row per bin
func WriteHistogram(path string, h *histogram.Histogram, logger *internal.Logger) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetMeta); err != nil {
		return errors.Wrap(err, "failed to name meta sheet")
	}
	meta := [][]interface{}{
		{keyName, h.Name()},
		{keyBins, h.NBins()},
		{keyLow, h.Low()},
		{keyHigh, h.High()},
		{keyUnderflow, h.Underflow()},
		{keyOverflow, h.Overflow()},
		{keyEntries, h.Entries()},
	}
	if err := writeRows(f, SheetMeta, meta); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetHistogram); err != nil {
		return errors.Wrap(err, "failed to create histogram sheet")
	}
	rows := make([][]interface{}, 0, h.NBins()+1)
	rows = append(rows, histogramHeader)
	for i, b := range h.Bins() {
		rows = append(rows, []interface{}{i, b.Low, b.High, b.Count})
	}
	if err := writeRows(f, SheetHistogram, rows); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return errors.Wrapf(err, "failed to save %s", path)
	}
	if logger != nil {
		logger.Debug("[excel] wrote histogram %q (%d bins, %d entries) to %s", h.Name(), h.NBins(), h.Entries(), path)
	}
	return nil
}

// writeRows writes rows starting at A1
func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return errors.Wrap(err, "invalid cell")
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return errors.Wrap(err, fmt.Sprintf("failed to write %s row %d", sheet, i+1))
		}
	}
	return nil
}
