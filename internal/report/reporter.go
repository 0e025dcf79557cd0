// Package report renders fit, scan and ensemble results as plain text.
package report

import (
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"gaussfit/domain/fit"
	"gaussfit/internal/experiment"
	"gaussfit/internal/histogram"
)

var rule = strings.Repeat("==", 40)

// Reporter writes human-readable summaries. It keeps the first write error
// and turns every later call into a no-op; Err returns it.
type Reporter struct {
	w   io.Writer
	err error
}

// New creates a reporter writing to w
func New(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// Err returns the first write error
func (r *Reporter) Err() error { return r.err }

func (r *Reporter) printf(format string, args ...interface{}) {
	if r.err != nil {
		return
	}
	_, r.err = fmt.Fprintf(r.w, format, args...)
}

// table runs fn against a tabwriter and flushes it
func (r *Reporter) table(fn func(tw *tabwriter.Writer)) {
	if r.err != nil {
		return
	}
	tw := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	fn(tw)
	r.err = tw.Flush()
}

// Histogram prints the binning and counters of h
func (r *Reporter) Histogram(h *histogram.Histogram) error {
	r.printf("Histogram %q: %d entries in %d bins over [%g, %g) (underflow %d, overflow %d)\n",
		h.Name(), h.Entries(), h.NBins(), h.Low(), h.High(), h.Underflow(), h.Overflow())
	return r.err
}

// Fit prints parameters with errors and the goodness of fit
func (r *Reporter) Fit(res *fit.Result) error {
	r.printf("\n%s fit (%s, %d iterations)\n", strings.ToUpper(string(res.Method)), res.Status, res.Iterations)
	r.table(func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "  parameter\tvalue\terror\t")
		for i := fit.ParamIndex(0); i < fit.NumParams; i++ {
			est := res.Param(i)
			fmt.Fprintf(tw, "  %s\t%.4f\t± %.4f\t\n", est.Name, est.Value, est.Error)
		}
	})
	r.printf("  %s = %.2f / %d ndf (reduced %.3f), p-value = %.4f\n",
		statisticName(res.Method), res.Statistic, res.NDF, res.ReducedStatistic(), res.PValue)
	r.printf("  corr(mean, sigma) = %.3f, corr(constant, sigma) = %.3f\n",
		res.Correlation(fit.ParamMean, fit.ParamSigma), res.Correlation(fit.ParamConstant, fit.ParamSigma))
	return r.err
}

func statisticName(m fit.Method) string {
	if m == fit.MethodNLL {
		return "LR chi2"
	}
	return "chi2"
}

// Comparison prints how far apart the chi2 and NLL means are in units of
// the larger of their errors.
func (r *Reporter) Comparison(chi2, nll *fit.Result) error {
	a, b := chi2.Param(fit.ParamMean), nll.Param(fit.ParamMean)
	scale := math.Max(a.Error, b.Error)
	diff := math.Abs(a.Value - b.Value)
	verdict := "agree"
	if diff > scale {
		verdict = "DISAGREE"
	}
	r.printf("\nchi2 vs NLL mean: %.4f vs %.4f, |diff| = %.4f (%.2f errors): %s\n",
		a.Value, b.Value, diff, diff/scale, verdict)
	r.printf("chi2 vs NLL mean error: %.4f vs %.4f\n", a.Error, b.Error)
	return r.err
}

// Scan prints the scan minimum and its crossings
func (r *Reporter) Scan(scan *fit.ScanResult) error {
	r.printf("\n%s %s scan of %s (%d points)\n", scan.Mode, strings.ToUpper(string(scan.Method)), scan.Param, len(scan.Points))
	r.table(func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "  best fit\t%.4f\t± %.4f\t\n", scan.BestValue, scan.FitError)
		fmt.Fprintf(tw, "  scan minimum\t%.4f\tdeviance %.2f\t\n", scan.Minimum.Value, scan.Minimum.Deviance)
		fmt.Fprintf(tw, "  Δ=1 interval\t[%.4f, %.4f]\t-%.4f +%.4f\t\n",
			scan.OneSigma.Lower, scan.OneSigma.Upper, scan.ErrorLow(), scan.ErrorHigh())
		if scan.TwoSigma.Found {
			fmt.Fprintf(tw, "  Δ=4 interval\t[%.4f, %.4f]\t± %.4f\t\n",
				scan.TwoSigma.Lower, scan.TwoSigma.Upper, scan.TwoSigma.HalfWidth())
		} else {
			fmt.Fprintln(tw, "  Δ=4 interval\toutside scan range\t\t")
		}
	})
	r.printf("  scan error %.4f vs fit error %.4f: relative difference %.1f%%\n",
		scan.Error(), scan.FitError, 100*scan.RelativeAgreement())
	return r.err
}

// TrialHeader prints the banner and column header of a trial table
func (r *Reporter) TrialHeader(methods []fit.Method, trials, samples int) error {
	r.printf("Running %d experiments with %d points each...\n", trials, samples)
	r.printf("%s\n", rule)
	if len(methods) == 1 {
		r.printf("%-10s%-15s%-15s%-15s%-15s\n", "Trial", "Statistic", "Probability", "Reduced", "Mean")
		return r.err
	}
	r.printf("%-10s", "Trial")
	for _, m := range methods {
		r.printf("%-18s", strings.ToUpper(string(m))+" Mean")
	}
	r.printf("\n")
	return r.err
}

// TrialRow prints one trial under TrialHeader
func (r *Reporter) TrialRow(t experiment.TrialResult) error {
	if len(t.Outcomes) == 1 {
		o := t.Outcomes[0]
		if o.Failed() {
			r.printf("%-10d%s\n", t.Index, failure(o))
			return r.err
		}
		res := o.Result
		r.printf("%-10d%-15.2f%-15.3f%-15.2f%-15.2f\n",
			t.Index, res.Statistic, res.PValue, res.ReducedStatistic(), res.Param(fit.ParamMean).Value)
		return r.err
	}
	r.printf("%-10d", t.Index)
	for _, o := range t.Outcomes {
		if o.Failed() {
			r.printf("%-18s", "failed")
			continue
		}
		r.printf("%-18.3f", o.Result.Param(fit.ParamMean).Value)
	}
	r.printf("\n")
	return r.err
}

func failure(o experiment.Outcome) string {
	if o.Err != nil {
		return "failed: " + o.Err.Error()
	}
	return "failed"
}

// Summary prints the per-method ensemble statistics
func (r *Reporter) Summary(sums []experiment.Summary) error {
	for _, s := range sums {
		r.printf("\n%s\n", rule)
		r.printf("SUMMARY STATISTICS (%s): %d of %d fits succeeded\n", strings.ToUpper(string(s.Method)), s.Successes, s.Trials)
		r.printf("%s\n", rule)
		if s.Successes == 0 {
			continue
		}
		r.table(func(tw *tabwriter.Writer) {
			fmt.Fprintf(tw, "Reduced statistic:\t%.3f ± %.3f\t\n", s.ReducedStatistic.Mean, s.ReducedStatistic.Std)
			fmt.Fprintf(tw, "Probability:\t%.3f ± %.3f\t(median %.3f)\n", s.PValue.Mean, s.PValue.Std, s.MedianPValue)
			fmt.Fprintf(tw, "Fitted mean:\t%.3f ± %.3f\t\n", s.FittedMean.Mean, s.FittedMean.Std)
			fmt.Fprintf(tw, "Expected mean:\t%.3f\t(bias %+.4f)\n", s.TrueMean, s.Bias)
			fmt.Fprintf(tw, "Mean error:\t%.3f ± %.3f\t\n", s.MeanError.Mean, s.MeanError.Std)
			fmt.Fprintf(tw, "Std dev of means:\t%.3f\t\n", s.FittedMean.Std)
			fmt.Fprintf(tw, "Std error (theory):\t%.3f\t\n", s.TheoryError)
			fmt.Fprintf(tw, "Fitted sigma:\t%.3f ± %.3f\t\n", s.FittedSigma.Mean, s.FittedSigma.Std)
			fmt.Fprintf(tw, "Pull:\t%.3f ± %.3f\t\n", s.Pull.Mean, s.Pull.Std)
			fmt.Fprintf(tw, "Coverage:\t%.3f\t(expect 0.683)\n", s.Coverage)
		})
	}
	return r.err
}

// MeanDistribution prints the Gaussian fit of the fitted-mean histogram
func (r *Reporter) MeanDistribution(d *experiment.MeanDistribution) error {
	if d.Fit == nil {
		r.printf("\nFitted %s mean distribution: %d entries, no fit\n", d.Method, d.Histogram.Entries())
		return r.err
	}
	mean, sigma := d.Fit.Param(fit.ParamMean), d.Fit.Param(fit.ParamSigma)
	r.printf("\nFitted %s mean distribution: %d entries, gaussian mean %.4f ± %.4f, width %.4f ± %.4f\n",
		d.Method, d.Histogram.Entries(), mean.Value, mean.Error, sigma.Value, sigma.Error)
	return r.err
}

// Toys prints the toy goodness-of-fit result and its conclusion
func (r *Reporter) Toys(t *experiment.ToyResult) error {
	r.printf("\n%s\n", rule)
	r.printf("RESULTS:\n")
	r.printf("%s\n", rule)
	r.table(func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "Parent likelihood ratio:\t%.2f\t\n", t.Observed)
		fmt.Fprintf(tw, "Pseudo-experiment ratio:\t%.2f ± %.2f\t\n", t.Spread.Mean, t.Spread.Std)
		fmt.Fprintf(tw, "P-value (fraction >= parent):\t%.3f\t\n", t.PValue)
		fmt.Fprintf(tw, "Pseudo-experiments >= parent:\t%d/%d\t\n", t.Exceeding, len(t.Toys))
	})
	if t.Consistent() {
		r.printf("\nConclusion: Data is CONSISTENT with the fit (p = %.3f)\n", t.PValue)
	} else {
		r.printf("\nConclusion: Data may be INCONSISTENT with the fit (p = %.3f)\n", t.PValue)
	}
	return r.err
}
