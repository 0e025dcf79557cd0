// Package histogram implements fixed-range, uniform-width histograms.
//
// Bin i covers [low+i*width, low+(i+1)*width). Values below low go to the
// underflow counter; values at or above high, and NaN, go to the overflow
// counter. Neither counter takes part in a fit, but both are kept so that
// the bin counts plus underflow plus overflow always equal the number of
// values filled.
package histogram

import (
	"fmt"
	"math"

	"gaussfit/internal/errors"
)

// Bin is one (low edge, high edge, count) triple
type Bin struct {
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Count int     `json:"count"`
}

// Center returns the midpoint of the bin
func (b Bin) Center() float64 {
	return 0.5 * (b.Low + b.High)
}

// Histogram counts values into nbins uniform bins over [low, high)
type Histogram struct {
	name      string
	low       float64
	high      float64
	width     float64
	counts    []int
	underflow int
	overflow  int
}

// New creates an empty histogram
func New(name string, nbins int, low, high float64) (*Histogram, error) {
	if nbins < 1 {
		return nil, errors.InvalidConfiguration(fmt.Sprintf("histogram %q needs at least one bin, got %d", name, nbins))
	}
	if math.IsNaN(low) || math.IsNaN(high) || math.IsInf(low, 0) || math.IsInf(high, 0) {
		return nil, errors.InvalidConfiguration(fmt.Sprintf("histogram %q range [%g, %g) must be finite", name, low, high))
	}
	if low >= high {
		return nil, errors.InvalidConfiguration(fmt.Sprintf("histogram %q range low %g must be below high %g", name, low, high))
	}
	return &Histogram{
		name:   name,
		low:    low,
		high:   high,
		width:  (high - low) / float64(nbins),
		counts: make([]int, nbins),
	}, nil
}

// FromSamples bins a sample set into a new histogram
func FromSamples(name string, samples []float64, nbins int, low, high float64) (*Histogram, error) {
	h, err := New(name, nbins, low, high)
	if err != nil {
		return nil, err
	}
	h.FillAll(samples)
	return h, nil
}

// FromCounts restores a histogram from stored counters
func FromCounts(name string, low, high float64, counts []int, underflow, overflow int) (*Histogram, error) {
	h, err := New(name, len(counts), low, high)
	if err != nil {
		return nil, err
	}
	if underflow < 0 || overflow < 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("histogram %q has negative under/overflow (%d, %d)", name, underflow, overflow))
	}
	for i, c := range counts {
		if c < 0 {
			return nil, errors.InvalidInput(fmt.Sprintf("histogram %q bin %d has negative count %d", name, i, c))
		}
	}
	copy(h.counts, counts)
	h.underflow = underflow
	h.overflow = overflow
	return h, nil
}

// Fill adds one value
func (h *Histogram) Fill(x float64) {
	switch {
	case math.IsNaN(x) || x >= h.high:
		h.overflow++
	case x < h.low:
		h.underflow++
	default:
		i := int((x - h.low) / h.width)
		// (x-low)/width can round up to nbins just below high
		if i >= len(h.counts) {
			i = len(h.counts) - 1
		}
		h.counts[i]++
	}
}

// FillAll adds every value in xs
func (h *Histogram) FillAll(xs []float64) {
	for _, x := range xs {
		h.Fill(x)
	}
}

// Reset zeroes all counters, keeping the binning
func (h *Histogram) Reset() {
	for i := range h.counts {
		h.counts[i] = 0
	}
	h.underflow = 0
	h.overflow = 0
}

// Clone returns an independent copy
func (h *Histogram) Clone(name string) *Histogram {
	c := *h
	c.name = name
	c.counts = append([]int(nil), h.counts...)
	return &c
}

func (h *Histogram) Name() string    { return h.name }
func (h *Histogram) NBins() int      { return len(h.counts) }
func (h *Histogram) Low() float64    { return h.low }
func (h *Histogram) High() float64   { return h.high }
func (h *Histogram) Width() float64  { return h.width }
func (h *Histogram) Underflow() int  { return h.underflow }
func (h *Histogram) Overflow() int   { return h.overflow }
func (h *Histogram) Count(i int) int { return h.counts[i] }

// BinLow returns the lower edge of bin i
func (h *Histogram) BinLow(i int) float64 {
	return h.low + float64(i)*h.width
}

// BinHigh returns the upper edge of bin i. The last bin ends exactly at high.
func (h *Histogram) BinHigh(i int) float64 {
	if i == len(h.counts)-1 {
		return h.high
	}
	return h.low + float64(i+1)*h.width
}

// BinCenter returns the midpoint of bin i
func (h *Histogram) BinCenter(i int) float64 {
	return h.low + (float64(i)+0.5)*h.width
}

// Counts returns a copy of the in-range counts
func (h *Histogram) Counts() []int {
	return append([]int(nil), h.counts...)
}

// Bins returns the histogram as (low, high, count) triples
func (h *Histogram) Bins() []Bin {
	bins := make([]Bin, len(h.counts))
	for i, c := range h.counts {
		bins[i] = Bin{Low: h.BinLow(i), High: h.BinHigh(i), Count: c}
	}
	return bins
}

// InRange returns the number of values that landed in a bin
func (h *Histogram) InRange() int {
	total := 0
	for _, c := range h.counts {
		total += c
	}
	return total
}

// Entries returns the number of values filled, including under/overflow
func (h *Histogram) Entries() int {
	return h.InRange() + h.underflow + h.overflow
}

// NonEmptyBins returns the number of bins with a positive count
func (h *Histogram) NonEmptyBins() int {
	n := 0
	for _, c := range h.counts {
		if c > 0 {
			n++
		}
	}
	return n
}

// MaxCount returns the largest bin count
func (h *Histogram) MaxCount() int {
	max := 0
	for _, c := range h.counts {
		if c > max {
			max = c
		}
	}
	return max
}

// Moments returns the count-weighted mean and RMS of the bin centres.
// ok is false when no value is in range.
func (h *Histogram) Moments() (mean, rms float64, ok bool) {
	total := h.InRange()
	if total == 0 {
		return 0, 0, false
	}
	var sum, sumSq float64
	for i, c := range h.counts {
		x := h.BinCenter(i)
		sum += float64(c) * x
		sumSq += float64(c) * x * x
	}
	mean = sum / float64(total)
	variance := sumSq/float64(total) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance), true
}

// String summarises the histogram for logs
func (h *Histogram) String() string {
	return fmt.Sprintf("%s: %d bins [%g, %g) entries=%d under=%d over=%d",
		h.name, len(h.counts), h.low, h.high, h.Entries(), h.underflow, h.overflow)
}
