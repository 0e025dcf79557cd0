package excel

import (
	"fmt"
	"strconv"
	"strings"

	"gaussfit/internal"
	"gaussfit/internal/errors"
	"gaussfit/internal/histogram"

	"github.com/xuri/excelize/v2"
)

// ReadHistogram loads a histogram written by WriteHistogram. Missing sheets,
// unparsable cells and inconsistent counters are InvalidInput.
func ReadHistogram(path string, logger *internal.Logger) (*histogram.Histogram, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, invalid(errors.Wrapf(err, "failed to open histogram file %s", path))
	}
	defer f.Close()

	// raw values keep floats exact instead of applying the General format
	raw := excelize.Options{RawCellValue: true}
	metaRows, err := f.GetRows(SheetMeta, raw)
	if err != nil {
		return nil, invalid(errors.Wrapf(err, "%s: missing %s sheet", path, SheetMeta))
	}
	meta, err := parseMeta(metaRows)
	if err != nil {
		return nil, invalid(errors.Wrapf(err, "%s", path))
	}

	binRows, err := f.GetRows(SheetHistogram, raw)
	if err != nil {
		return nil, invalid(errors.Wrapf(err, "%s: missing %s sheet", path, SheetHistogram))
	}
	counts, err := parseBins(binRows, meta)
	if err != nil {
		return nil, invalid(errors.Wrapf(err, "%s", path))
	}

	h, err := histogram.FromCounts(meta.name, meta.low, meta.high, counts, meta.underflow, meta.overflow)
	if err != nil {
		return nil, invalid(errors.Wrapf(err, "%s", path))
	}
	if h.Entries() != meta.entries {
		return nil, errors.InvalidInput(fmt.Sprintf("%s: counters sum to %d entries, meta says %d", path, h.Entries(), meta.entries))
	}

	if logger != nil {
		logger.Debug("[excel] read histogram %q (%d bins, %d entries) from %s", h.Name(), h.NBins(), h.Entries(), path)
	}
	return h, nil
}

func invalid(err error) error {
	return errors.WithCode(errors.CodeInvalidInput, err)
}

type histogramMeta struct {
	name      string
	bins      int
	low       float64
	high      float64
	underflow int
	overflow  int
	entries   int
}

func parseMeta(rows [][]string) (histogramMeta, error) {
	values := make(map[string]string, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		values[strings.TrimSpace(row[0])] = strings.TrimSpace(row[1])
	}

	var m histogramMeta
	var p cellParser
	m.name = values[keyName]
	m.bins = p.int(keyBins, values)
	m.low = p.float(keyLow, values)
	m.high = p.float(keyHigh, values)
	m.underflow = p.int(keyUnderflow, values)
	m.overflow = p.int(keyOverflow, values)
	m.entries = p.int(keyEntries, values)
	return m, p.err
}

func parseBins(rows [][]string, meta histogramMeta) ([]int, error) {
	if len(rows) == 0 || !headerMatches(rows[0]) {
		return nil, errors.InvalidInput(fmt.Sprintf("%s sheet must start with the header bin, low, high, count", SheetHistogram))
	}
	rows = rows[1:]
	if len(rows) != meta.bins {
		return nil, errors.InvalidInput(fmt.Sprintf("%s sheet has %d bins, meta says %d", SheetHistogram, len(rows), meta.bins))
	}

	counts := make([]int, len(rows))
	for i, row := range rows {
		if len(row) < len(histogramHeader) {
			return nil, errors.InvalidInput(fmt.Sprintf("bin row %d has %d cells", i, len(row)))
		}
		index, err := strconv.Atoi(strings.TrimSpace(row[0]))
		if err != nil || index != i {
			return nil, errors.InvalidInput(fmt.Sprintf("bin row %d is labelled %q", i, row[0]))
		}
		count, err := strconv.Atoi(strings.TrimSpace(row[3]))
		if err != nil {
			return nil, errors.InvalidInput(fmt.Sprintf("bin %d count %q is not an integer", i, row[3]))
		}
		counts[i] = count
	}
	return counts, nil
}

func headerMatches(row []string) bool {
	if len(row) < len(histogramHeader) {
		return false
	}
	for i, want := range histogramHeader {
		if !strings.EqualFold(strings.TrimSpace(row[i]), want.(string)) {
			return false
		}
	}
	return true
}

// cellParser keeps the first missing or malformed meta value
type cellParser struct {
	err error
}

func (p *cellParser) lookup(key string, values map[string]string) (string, bool) {
	v, ok := values[key]
	if !ok && p.err == nil {
		p.err = errors.InvalidInput(fmt.Sprintf("%s sheet has no %q row", SheetMeta, key))
	}
	return v, ok
}

func (p *cellParser) int(key string, values map[string]string) int {
	v, ok := p.lookup(key, values)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil && p.err == nil {
		p.err = errors.InvalidInput(fmt.Sprintf("meta %s=%q is not an integer", key, v))
	}
	return n
}

func (p *cellParser) float(key string, values map[string]string) float64 {
	v, ok := p.lookup(key, values)
	if !ok {
		return 0
	}
	x, err := strconv.ParseFloat(v, 64)
	if err != nil && p.err == nil {
		p.err = errors.InvalidInput(fmt.Sprintf("meta %s=%q is not a number", key, v))
	}
	return x
}
