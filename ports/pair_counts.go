package ports

import (
	"context"

	"faersignal/domain/analysis"
	"faersignal/domain/faers"
	"faersignal/domain/signal"
)

// PairCountSource produces the per-pair 2x2 counts a batch runs over.
type PairCountSource interface {
	PairCounts(ctx context.Context, scope faers.Scope) ([]signal.PairCount, error)
}

// DatasetStatsProvider is implemented by sources that can describe the
// report population behind their counts. It is optional.
type DatasetStatsProvider interface {
	DatasetStats(ctx context.Context, scope faers.Scope) (analysis.DatasetStats, error)
}

// ReportStore writes report records, for seeding and ingestion.
type ReportStore interface {
	InsertReports(ctx context.Context, reports []faers.Report) error
}
