package excel

// Sheet names of the histogram workbook
const (
	SheetMeta      = "meta"
	SheetHistogram = "histogram"
	SheetTrials    = "trials"
	SheetSummary   = "summary"
)

// meta keys, written in this order
const (
	keyName      = "name"
	keyBins      = "bins"
	keyLow       = "low"
	keyHigh      = "high"
	keyUnderflow = "underflow"
	keyOverflow  = "overflow"
	keyEntries   = "entries"
)

var histogramHeader = []interface{}{"bin", "low", "high", "count"}
