package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"faersignal/app"
	"faersignal/domain/core"
	"faersignal/domain/faers"
	"faersignal/internal/container"
)

type etlFlags struct {
	source    string
	input     string
	since     string
	until     string
	drug      string
	limit     int
	normalize bool
}

func newETLCmd() *cobra.Command {
	var f etlFlags

	cmd := &cobra.Command{
		Use:   "etl",
		Short: "Load reports from openFDA or the quarterly extracts into postgres",
		Long: `Load adverse event reports into the reports, drugs and reactions tables.

  --source openfda   page through the openFDA drug/event API, or read a
                     downloaded .json or .zip given with --input
  --source qfiles    read a FAERS quarterly ASCII extract (directory or zip)

Reports already stored are skipped, so reruns are safe.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := etlQuery(f)
			if err != nil {
				return err
			}

			c, err := setup(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			feed, err := c.ReportFeed(f.source, f.input)
			if err != nil {
				return err
			}
			summary, err := c.Ingest.Ingest(cmd.Context(), feed, q, f.normalize)
			if summary != nil {
				printIngestSummary(cmd, summary)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&f.source, "source", container.FeedOpenFDA, "report source: openfda or qfiles")
	cmd.Flags().StringVar(&f.input, "input", "", "local file or directory to read instead of the API")
	cmd.Flags().StringVar(&f.since, "since", "", "first receive date, YYYY-MM-DD")
	cmd.Flags().StringVar(&f.until, "until", "", "last receive date, YYYY-MM-DD")
	cmd.Flags().StringVar(&f.drug, "drug", "", "only reports listing this drug name")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum reports to load (0 loads all)")
	cmd.Flags().BoolVar(&f.normalize, "normalize", false, "resolve drug names through RxNorm before storing")
	return cmd
}

func etlQuery(f etlFlags) (faers.IngestQuery, error) {
	switch f.source {
	case container.FeedOpenFDA, container.FeedQFiles:
	default:
		return faers.IngestQuery{}, fmt.Errorf("%w: %q (want openfda or qfiles)", core.ErrUnknownSource, f.source)
	}
	since, err := core.ParseDate(f.since)
	if err != nil {
		return faers.IngestQuery{}, err
	}
	until, err := core.ParseDate(f.until)
	if err != nil {
		return faers.IngestQuery{}, err
	}
	return faers.IngestQuery{
		Drug:  strings.TrimSpace(f.drug),
		Since: since,
		Until: until,
		Limit: f.limit,
	}, nil
}

func printIngestSummary(cmd *cobra.Command, s *app.IngestSummary) {
	fmt.Fprintf(cmd.OutOrStdout(), "loaded %d reports (%d drugs, %d reactions) in %d batches\n",
		s.Reports, s.Drugs, s.Reactions, s.Batches)
	if len(s.Normalization) > 0 {
		printCounts(cmd, "normalized", s.Normalization)
	}
}
