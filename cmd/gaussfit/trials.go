package main

import (
	"fmt"

	"gaussfit/adapters/excel"
	"gaussfit/adapters/plot"
	"gaussfit/adapters/sqlstore"
	"gaussfit/domain/fit"
	"gaussfit/internal/config"
	"gaussfit/internal/errors"
	"gaussfit/internal/experiment"
	"gaussfit/internal/report"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"
)

func newTrialsCmd(a *app) *cobra.Command {
	var progress, store, withPlot bool
	var exportPath string

	cmd := &cobra.Command{
		Use:   "trials",
		Short: "Repeat the experiment and summarize the estimators",
		Long: `Run --trials independent experiments on a worker pool, fit each with the
configured method (both fits per trial with --method both), print every
--report-every-th trial and summarize reduced statistic, p-value, fitted
mean and its error against sigma/sqrt(N).

Example: gaussfit trials --trials 1000 --samples 10 --method both --progress`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			trials := a.cfg.Experiment.Trials

			var opts []experiment.Option
			if store {
				st, err := sqlstore.Open(ctx, a.cfg.Storage.Driver, a.cfg.Storage.URL, a.logger)
				if err != nil {
					return err
				}
				defer st.Close()
				if err := st.Migrate(ctx); err != nil {
					return err
				}
				opts = append(opts, experiment.WithRepository(st))
			}

			var bar *pb.ProgressBar
			if progress {
				bar = pb.New(trials)
				bar.SetWriter(a.errOut)
				bar.Start()
				opts = append(opts, experiment.WithOnTrial(func(experiment.TrialResult) {
					bar.Increment()
				}))
			}

			r, err := a.newRunner(nil, opts...)
			if err != nil {
				return err
			}

			rep := report.New(a.out)
			rep.TrialHeader(r.Settings().Methods, trials, r.Settings().SampleCount)

			ens, err := r.Run(ctx, trials)
			if bar != nil {
				bar.Finish()
			}
			if err != nil {
				return err
			}

			every := a.cfg.Output.ReportEvery
			for i, t := range ens.Trials {
				if i%every == 0 {
					rep.TrialRow(t)
				}
			}

			sums := experiment.Summarize(ens)
			rep.Summary(sums)
			for _, m := range r.Settings().Methods {
				dist, err := experiment.FitMeanDistribution(ens, m, a.logger)
				if err != nil {
					a.logger.Warn("no %s mean distribution fit: %v", m, err)
					continue
				}
				rep.MeanDistribution(dist)
			}
			if err := rep.Err(); err != nil {
				return err
			}

			a.logger.Info("run %s: %d trials in %s", ens.RunID, len(ens.Trials), ens.Finished.Sub(ens.Started))
			for _, m := range r.Settings().Methods {
				a.logger.Debug("%s: median function evaluations %.0f", m, r.Metrics().EvaluationQuantile(m, 0.5))
			}
			for _, s := range sums {
				if s.Trials > 0 && s.Successes == 0 {
					return allFailed(ens, s)
				}
			}

			if exportPath != "" {
				if err := excel.ExportEnsemble(exportPath, ens, sums, a.logger); err != nil {
					return err
				}
			}
			if withPlot {
				for _, m := range r.Settings().Methods {
					path, err := a.plotPath(fmt.Sprintf("ensemble_%s.png", m))
					if err != nil {
						return err
					}
					if err := plot.EnsemblePlot(path, ens, m); err != nil {
						return err
					}
					a.logger.Info("ensemble plot written to %s", path)
				}
			}
			return nil
		},
	}

	defaults := config.Default()
	cmd.Flags().Int("trials", defaults.Experiment.Trials, "number of experiments (TRIALS)")
	cmd.Flags().Int("report-every", defaults.Output.ReportEvery, "print every n-th trial (REPORT_EVERY)")
	cmd.Flags().BoolVar(&progress, "progress", false, "show a progress bar on stderr")
	cmd.Flags().BoolVar(&store, "store", false, "persist the run to DATABASE_DRIVER/DATABASE_URL")
	cmd.Flags().StringVar(&exportPath, "export", "", "write trials and summary to this workbook")
	cmd.Flags().BoolVar(&withPlot, "plot", false, "write ensemble_<method>.png to the plot directory")
	return cmd
}

// allFailed returns the first recorded failure of a method that never
// converged, so the exit code names the cause.
func allFailed(ens *experiment.Ensemble, s experiment.Summary) error {
	msg := fmt.Sprintf("all %d %s fits failed", s.Trials, s.Method)
	for _, t := range ens.Trials {
		if o, ok := t.Outcome(s.Method); ok && o.Err != nil {
			return errors.Wrap(o.Err, msg)
		}
	}
	return errors.FitNonConvergence(msg)
}

func newGofCmd(a *app) *cobra.Command {
	var histPath string
	var withPlot bool

	cmd := &cobra.Command{
		Use:   "gof",
		Short: "Toy goodness-of-fit test of an NLL fit",
		Long: `Fit a histogram (sampled, or read with --hist) by NLL, then generate --toys
pseudo-experiments from the best fit with the same number of entries. The
p-value is the fraction of toys whose likelihood ratio against the saturated
model is at least the observed one;
the data is called consistent when p > 0.05.

Example: gaussfit gof --hist parent.xlsx --toys 1000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.newRunner([]fit.Method{fit.MethodNLL})
			if err != nil {
				return err
			}
			h, err := a.histogramFor(r, histPath)
			if err != nil {
				return err
			}
			res, err := r.Fitter(fit.MethodNLL).FitAuto(h)
			if err != nil {
				return err
			}

			rep := report.New(a.out)
			rep.Histogram(h)
			rep.Fit(res)
			toys, err := r.ToyGoodnessOfFit(cmd.Context(), h, res, a.cfg.Experiment.Toys)
			if err != nil {
				return err
			}
			rep.Toys(toys)
			if err := rep.Err(); err != nil {
				return err
			}

			if withPlot {
				path, err := a.plotPath("toys.png")
				if err != nil {
					return err
				}
				if err := plot.ToyPlot(path, toys); err != nil {
					return err
				}
				a.logger.Info("toy plot written to %s", path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&histPath, "hist", "", "read the parent histogram from this workbook instead of sampling")
	cmd.Flags().Int("toys", config.Default().Experiment.Toys, "number of pseudo-experiments (TOYS)")
	cmd.Flags().BoolVar(&withPlot, "plot", false, "write toys.png to the plot directory")
	return cmd
}

func newMigrateCmd(a *app) *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the trial store schema",
		Long: `Apply pending schema migrations to DATABASE_URL using DATABASE_DRIVER
(sqlite3 or postgres). With --status, list migrations without applying.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := sqlstore.Open(ctx, a.cfg.Storage.Driver, a.cfg.Storage.URL, a.logger)
			if err != nil {
				return err
			}
			defer st.Close()

			m := sqlstore.NewMigrator(st.DB(), a.logger)
			if status {
				statuses, err := m.Status(ctx)
				if err != nil {
					return err
				}
				for _, s := range statuses {
					state := "pending"
					if s.Applied {
						state = "applied"
					}
					fmt.Fprintf(a.out, "%s  %-40s %s\n", s.Version, s.Name, state)
				}
				return nil
			}

			applied, err := m.Up(ctx)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(a.out, "schema is up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintf(a.out, "applied %s\n", v)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "list migrations and whether they are applied")
	return cmd
}
