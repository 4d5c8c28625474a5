package ports

import (
	"context"

	"faersignal/domain/faers"
)

// ReportFeed streams report records from an external source. sink receives
// batches in source order; an error from sink stops the feed and is
// returned. Feeds may apply q themselves; callers still filter.
type ReportFeed interface {
	Stream(ctx context.Context, q faers.IngestQuery, sink func([]faers.Report) error) error
}
