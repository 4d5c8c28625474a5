package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"faersignal/domain/analysis"
	"faersignal/domain/signal"
	"faersignal/internal/report"
)

type buildFlags struct {
	specPath      string
	source        string
	input         string
	since         string
	until         string
	mode          string
	minA          int
	ranking       string
	drug          string
	pt            string
	noFDR         bool
	allRoles      bool
	normalize     bool
	keepBelowMinA bool
	top           int
	out           string
}

func newBuildCmd() *cobra.Command {
	var f buildFlags

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compute signals for every drug-event pair and export the table",
		Long: `Aggregate reports into per-pair 2x2 counts, compute PRR, ROR, IC and
chi-square with their flags, classify each pair and write CSV, XLSX and a
JSON manifest.

Flags override values loaded from --spec; unset flags keep the spec value.

Example: faersignal build --source demo --mode balanced --min-a 3 --top 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := setup(ctx, false)
			if err != nil {
				return err
			}
			defer c.Shutdown(ctx)

			spec := c.DefaultSpec()
			if f.specPath != "" {
				if spec, err = analysis.LoadSpec(f.specPath); err != nil {
					return err
				}
			}
			applyBuildFlags(cmd, f, &spec)
			if f.out != "" {
				c.Exporter.Dir = f.out
			}

			run, err := c.Analysis.Execute(ctx, spec)
			if err != nil {
				return err
			}
			paths, err := c.Exporter.Export(run)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			printSummary(w, run)
			printTop(w, run.Top(run.Manifest.Spec.TopN))
			fmt.Fprintf(w, "\nCSV:      %s\nXLSX:     %s\nManifest: %s\n", paths.CSV, paths.XLSX, paths.Manifest)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.specPath, "spec", "", "YAML spec file")
	fl.StringVar(&f.source, "source", "", "pair count source: demo, db or file")
	fl.StringVar(&f.input, "input", "", "CSV or XLSX of pair counts (source file)")
	fl.StringVar(&f.since, "since", "", "first receipt date, YYYY-MM-DD")
	fl.StringVar(&f.until, "until", "", "last receipt date, YYYY-MM-DD")
	fl.StringVar(&f.mode, "mode", "", "signal mode: sensitive, balanced or specific")
	fl.IntVar(&f.minA, "min-a", signal.DefaultMinA, "minimum co-occurrence count")
	fl.StringVar(&f.ranking, "ranking", "", "ranking: ic025, a_desc or balance_score")
	fl.StringVar(&f.drug, "drug", "", "drug name prefix filter")
	fl.StringVar(&f.pt, "pt", "", "preferred term prefix filter")
	fl.BoolVar(&f.noFDR, "no-fdr", false, "skip the Benjamini-Hochberg correction")
	fl.BoolVar(&f.allRoles, "all-roles", false, "count concomitant and interacting drugs too")
	fl.BoolVar(&f.normalize, "normalize", false, "normalize drug names before aggregating")
	fl.BoolVar(&f.keepBelowMinA, "keep-below-min-a", false, "keep pairs below --min-a in the output")
	fl.IntVar(&f.top, "top", analysis.DefaultTopN, "rows to print")
	fl.StringVar(&f.out, "out", "", "export directory (default EXPORT_DIR)")

	return cmd
}

// applyBuildFlags copies every flag the user set onto spec.
func applyBuildFlags(cmd *cobra.Command, f buildFlags, spec *analysis.Spec) {
	changed := cmd.Flags().Changed
	if changed("source") {
		spec.Source = analysis.Source(f.source)
	}
	if changed("input") {
		spec.InputPath = f.input
		if !changed("source") {
			spec.Source = analysis.SourceFile
		}
	}
	if changed("since") {
		spec.Since = f.since
	}
	if changed("until") {
		spec.Until = f.until
	}
	if changed("mode") {
		spec.SignalMode = signal.Mode(f.mode)
	}
	if changed("min-a") {
		spec.MinA = f.minA
	}
	if changed("ranking") {
		spec.Ranking = signal.Ranking(f.ranking)
	}
	if changed("drug") {
		spec.DrugFilter = f.drug
	}
	if changed("pt") {
		spec.PTFilter = f.pt
	}
	if changed("no-fdr") {
		spec.FDR = !f.noFDR
	}
	if changed("all-roles") {
		spec.SuspectOnly = !f.allRoles
	}
	if changed("normalize") {
		spec.DrugNormalization = f.normalize
	}
	if changed("keep-below-min-a") {
		spec.KeepBelowMinA = f.keepBelowMinA
	}
	if changed("top") {
		spec.TopN = f.top
	}
}

func printSummary(w io.Writer, run *analysis.Run) {
	m := run.Manifest
	s := m.Summary
	fmt.Fprintf(w, "Run %s (%s, mode %s, min_a %d)\n", m.RunID, m.Spec.Source, m.Spec.SignalMode, m.Spec.MinA)
	fmt.Fprintf(w, "Reports %d, pairs evaluated %d, rejected %d, below min_a %d\n",
		m.Dataset.TotalReports, s.EvaluatedRows, s.RejectedRows, s.BelowMinA)
	fmt.Fprintf(w, "Signals %d, FDR significant %d\n\n", s.SignalCount, s.FDRSignificant)
}

func printTop(w io.Writer, rows []signal.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DRUG\tPT\tA\tPRR\tROR\tROR025\tIC\tIC025\tQ\tSIGNAL")
	for _, r := range rows {
		marker := ""
		if r.Signal {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Drug, r.PT, r.A,
			report.Format(r.Metrics.PRR, 2),
			report.Format(r.Metrics.ROR, 2),
			report.Format(r.Metrics.RORCI.Lower, 2),
			report.Format(r.Metrics.IC, 2),
			report.Format(r.Metrics.ICCI.Lower, 2),
			report.FormatP(r.QValue),
			marker,
		)
	}
	tw.Flush()
}
