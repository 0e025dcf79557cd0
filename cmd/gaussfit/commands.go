package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gaussfit/adapters/excel"
	"gaussfit/adapters/plot"
	"gaussfit/domain/fit"
	"gaussfit/internal/config"
	"gaussfit/internal/experiment"
	"gaussfit/internal/histogram"
	"gaussfit/internal/objective"
	"gaussfit/internal/report"
	"gaussfit/internal/scanner"

	"github.com/spf13/cobra"
)

// newRunner builds a runner from the resolved config, optionally forcing the methods
func (a *app) newRunner(methods []fit.Method, opts ...experiment.Option) (*experiment.Runner, error) {
	settings, err := experiment.SettingsFromConfig(a.cfg)
	if err != nil {
		return nil, err
	}
	if methods != nil {
		settings.Methods = methods
	}
	opts = append([]experiment.Option{experiment.WithLogger(a.logger)}, opts...)
	return experiment.NewRunner(settings, a.rng, opts...)
}

// histogramFor reads path when given, otherwise draws a fresh sample
func (a *app) histogramFor(r *experiment.Runner, path string) (*histogram.Histogram, error) {
	if path != "" {
		return excel.ReadHistogram(path, a.logger)
	}
	return r.Sample("sample")
}

func (a *app) plotPath(name string) (string, error) {
	dir := a.cfg.Output.PlotDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create plot directory %s: %w", dir, err)
	}
	return filepath.Join(dir, name), nil
}

// orderedResults returns results in the runner's method order
func orderedResults(methods []fit.Method, results map[fit.Method]*fit.Result) []*fit.Result {
	out := make([]*fit.Result, 0, len(methods))
	for _, m := range methods {
		if res, ok := results[m]; ok {
			out = append(out, res)
		}
	}
	return out
}

func newFitCmd(a *app) *cobra.Command {
	var histPath, saveHist string
	var withPlot bool

	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit one experiment",
		Long: `Sample one histogram (or read it with --hist) and fit it with the configured
method. With --method both the chi2 and NLL results are compared.

Example: gaussfit fit --method both --seed 7 --plot`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.newRunner(nil)
			if err != nil {
				return err
			}
			h, err := a.histogramFor(r, histPath)
			if err != nil {
				return err
			}
			results, err := r.FitHistogram(h)
			if err != nil {
				return err
			}

			methods := r.Settings().Methods
			rep := report.New(a.out)
			rep.Histogram(h)
			for _, res := range orderedResults(methods, results) {
				rep.Fit(res)
			}
			if chi2, nll := results[fit.MethodChi2], results[fit.MethodNLL]; chi2 != nil && nll != nil {
				rep.Comparison(chi2, nll)
			}
			if err := rep.Err(); err != nil {
				return err
			}

			if saveHist != "" {
				if err := excel.WriteHistogram(saveHist, h, a.logger); err != nil {
					return err
				}
				a.logger.Info("histogram saved to %s", saveHist)
			}
			if withPlot {
				path, err := a.plotPath("fit.png")
				if err != nil {
					return err
				}
				if err := plot.FitPlot(path, h, orderedResults(methods, results)...); err != nil {
					return err
				}
				a.logger.Info("fit plot written to %s", path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&histPath, "hist", "", "read the histogram from this workbook instead of sampling")
	cmd.Flags().StringVar(&saveHist, "save-hist", "", "write the fitted histogram to this workbook")
	cmd.Flags().BoolVar(&withPlot, "plot", false, "write fit.png to the plot directory")
	return cmd
}

func newScanCmd(a *app) *cobra.Command {
	var histPath, param string
	var withPlot bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Fit, then scan the objective along one parameter",
		Long: `Fit one histogram and evaluate the objective over best ± width errors of
--param. The Δ=1 crossings give the scan error, compared against the error
from the fit covariance. --mode profiled re-minimizes the other parameters
at every step.

Example: gaussfit scan --param mean --method both --steps 200 --plot`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := fit.ParseParam(param)
			if err != nil {
				return err
			}
			r, err := a.newRunner(nil)
			if err != nil {
				return err
			}
			h, err := a.histogramFor(r, histPath)
			if err != nil {
				return err
			}
			results, err := r.FitHistogram(h)
			if err != nil {
				return err
			}

			req := scanner.Request{
				Param:     index,
				HalfWidth: a.cfg.Scan.Width,
				Steps:     a.cfg.Scan.Steps,
				Mode:      a.cfg.Scan.Mode,
			}
			rep := report.New(a.out)
			rep.Histogram(h)
			for _, res := range orderedResults(r.Settings().Methods, results) {
				obj, err := objective.New(res.Method, h)
				if err != nil {
					return err
				}
				scan, err := scanner.New(r.Fitter(res.Method), a.logger).Scan(obj, res, req)
				if err != nil {
					return err
				}
				rep.Fit(res)
				rep.Scan(scan)
				if err := rep.Err(); err != nil {
					return err
				}

				if withPlot {
					path, err := a.plotPath(fmt.Sprintf("scan_%s_%s.png", res.Method, index))
					if err != nil {
						return err
					}
					if err := plot.ScanPlot(path, scan); err != nil {
						return err
					}
					a.logger.Info("scan plot written to %s", path)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&histPath, "hist", "", "read the histogram from this workbook instead of sampling")
	cmd.Flags().StringVar(&param, "param", "mean", "parameter to scan: constant, mean or sigma")
	cmd.Flags().String("mode", string(fit.ScanFixed), "fixed or profiled (SCAN_MODE)")
	cmd.Flags().Int("steps", config.Default().Scan.Steps, "scan points (SCAN_STEPS)")
	cmd.Flags().Float64("width", config.Default().Scan.Width, "half-width in units of the fit error (SCAN_WIDTH)")
	cmd.Flags().BoolVar(&withPlot, "plot", false, "write scan_<method>_<param>.png to the plot directory")
	return cmd
}

func newGenerateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [path]",
		Short: "Write a sampled histogram to a workbook",
		Long: `Draw one histogram with the configured generator and binning and save it
as a workbook that fit, scan and gof accept through --hist.

Example: gaussfit generate parent.xlsx --samples 1000 --seed 42`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "histogram.xlsx"
			if len(args) == 1 {
				path = args[0]
			}
			r, err := a.newRunner(nil)
			if err != nil {
				return err
			}
			h, err := r.Sample("sample")
			if err != nil {
				return err
			}
			if err := excel.WriteHistogram(path, h, a.logger); err != nil {
				return err
			}
			rep := report.New(a.out)
			rep.Histogram(h)
			if err := rep.Err(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "written to %s\n", path)
			return nil
		},
	}
	return cmd
}
