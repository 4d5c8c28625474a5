package app

import (
	"context"
	stderrors "errors"

	"faersignal/domain/faers"
	"faersignal/internal"
	"faersignal/internal/errors"
	"faersignal/ports"
)

// IngestSummary counts what one ingestion run handed to the store.
// Reports already stored are skipped by the store and still counted here.
type IngestSummary struct {
	Reports       int            `json:"reports"`
	Drugs         int            `json:"drugs"`
	Reactions     int            `json:"reactions"`
	Batches       int            `json:"batches"`
	Normalization map[string]int `json:"normalization"`
}

// IngestService loads reports from a feed into a report store.
type IngestService struct {
	store         ports.ReportStore
	normalization *NormalizationService
	logger        *internal.Logger
}

var errLimitReached = stderrors.New("ingest limit reached")

// NewIngestService creates an ingest service. A nil normalization service
// stores drug names as reported.
func NewIngestService(store ports.ReportStore, normalization *NormalizationService, logger *internal.Logger) *IngestService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &IngestService{store: store, normalization: normalization, logger: logger}
}

// Ingest streams feed into the store batch by batch. Reports outside q are
// dropped and the run stops once q.Limit reports were stored. Drug entries
// with openFDA harmonized names are always normalized from them; lookup
// also resolves the other names before they are stored.
func (s *IngestService) Ingest(ctx context.Context, feed ports.ReportFeed, q faers.IngestQuery, lookup bool) (*IngestSummary, error) {
	if q.Limit < 0 {
		return nil, errors.InvalidInput("limit must be >= 0")
	}
	if q.Since != nil && q.Until != nil && q.Until.Before(*q.Since) {
		return nil, errors.InvalidInput("until is before since")
	}

	summary := &IngestSummary{Normalization: make(map[string]int)}
	err := feed.Stream(ctx, q, func(batch []faers.Report) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		accepted := make([]faers.Report, 0, len(batch))
		for _, r := range batch {
			if q.Limit > 0 && summary.Reports+len(accepted) >= q.Limit {
				break
			}
			if q.Accepts(r) {
				accepted = append(accepted, r)
			}
		}

		if len(accepted) > 0 {
			if s.normalization != nil {
				counts, err := s.normalization.NormalizeReports(ctx, accepted, lookup)
				if err != nil {
					return err
				}
				for k, v := range counts {
					summary.Normalization[k] += v
				}
			}
			if err := s.store.InsertReports(ctx, accepted); err != nil {
				return errors.Wrap(err, "failed to store reports")
			}

			summary.Batches++
			summary.Reports += len(accepted)
			for _, r := range accepted {
				summary.Drugs += len(r.Drugs)
				summary.Reactions += len(r.Reactions)
			}
			s.logger.Info("[IngestService] batch %d: stored %d reports (%d total)", summary.Batches, len(accepted), summary.Reports)
		}

		if q.Limit > 0 && summary.Reports >= q.Limit {
			return errLimitReached
		}
		return nil
	})
	if err != nil && !stderrors.Is(err, errLimitReached) {
		return summary, err
	}
	return summary, nil
}
