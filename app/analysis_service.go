package app

import (
	"context"
	"fmt"
	"time"

	"faersignal/domain/analysis"
	"faersignal/domain/core"
	"faersignal/domain/faers"
	"faersignal/domain/signal"
	"faersignal/internal"
	"faersignal/internal/errors"
	"faersignal/ports"
)

// SourceResolver returns the pair count source a spec reads from.
type SourceResolver func(spec analysis.Spec) (ports.PairCountSource, error)

// normalizable sources can rewrite their drug names in place.
type normalizable interface {
	Normalize(ctx context.Context, n ports.DrugNormalizer) (map[string]int, error)
}

// AnalysisService runs a spec end to end: fetch pair counts, run the batch,
// build the manifest and persist the run.
type AnalysisService struct {
	batch      *BatchService
	sources    SourceResolver
	runs       ports.RunRepository
	normalizer ports.DrugNormalizer
	workers    int
	logger     *internal.Logger
}

// AnalysisServiceOption customises an AnalysisService.
type AnalysisServiceOption func(*AnalysisService)

// WithRunRepository persists every completed run.
func WithRunRepository(runs ports.RunRepository) AnalysisServiceOption {
	return func(s *AnalysisService) { s.runs = runs }
}

// WithNormalizer enables drug name normalization for in-memory sources.
func WithNormalizer(n ports.DrugNormalizer) AnalysisServiceOption {
	return func(s *AnalysisService) { s.normalizer = n }
}

// WithWorkers sets the batch parallelism.
func WithWorkers(n int) AnalysisServiceOption {
	return func(s *AnalysisService) { s.workers = n }
}

// NewAnalysisService creates an analysis service
func NewAnalysisService(batch *BatchService, sources SourceResolver, logger *internal.Logger, opts ...AnalysisServiceOption) *AnalysisService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	s := &AnalysisService{
		batch:   batch,
		sources: sources,
		workers: 4,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScopeFromSpec converts the report-selection part of a spec.
func ScopeFromSpec(spec analysis.Spec) (faers.Scope, error) {
	since, err := core.ParseDate(spec.Since)
	if err != nil {
		return faers.Scope{}, err
	}
	until, err := core.ParseDate(spec.Until)
	if err != nil {
		return faers.Scope{}, err
	}
	return faers.Scope{
		SuspectOnly:   spec.SuspectOnly,
		Since:         since,
		Until:         until,
		DrugPrefix:    spec.DrugFilter,
		PTPrefix:      spec.PTFilter,
		UseNormalized: spec.DrugNormalization,
	}, nil
}

// Execute runs spec against its configured source.
func (s *AnalysisService) Execute(ctx context.Context, spec analysis.Spec) (*analysis.Run, error) {
	if err := spec.Normalize(); err != nil {
		return nil, errors.Wrap(err, "invalid analysis spec")
	}
	if s.sources == nil {
		return nil, errors.ConfigInvalid("no pair count sources configured")
	}
	src, err := s.sources(spec)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve source %q", spec.Source)
	}
	scope, err := ScopeFromSpec(spec)
	if err != nil {
		return nil, errors.Wrap(err, "invalid report window")
	}

	var normStats map[string]int
	if spec.DrugNormalization && s.normalizer != nil {
		if n, ok := src.(normalizable); ok {
			normStats, err = n.Normalize(ctx, s.normalizer)
			if err != nil {
				return nil, errors.Wrap(err, "drug name normalization failed")
			}
		}
	}

	rows, err := src.PairCounts(ctx, scope)
	if err != nil {
		return nil, errors.Wrap(err, "failed to aggregate pair counts")
	}

	stats := DatasetStatsFromRows(rows)
	if provider, ok := src.(ports.DatasetStatsProvider); ok {
		if stats, err = provider.DatasetStats(ctx, scope); err != nil {
			return nil, errors.Wrap(err, "failed to read dataset stats")
		}
	}
	if normStats != nil && stats.Normalization == nil {
		stats.Normalization = normStats
	}

	return s.run(ctx, spec, rows, stats)
}

// ExecuteRows runs spec over rows supplied by the caller, ignoring the
// spec's source.
func (s *AnalysisService) ExecuteRows(ctx context.Context, spec analysis.Spec, rows []signal.PairCount) (*analysis.Run, error) {
	if err := spec.Normalize(); err != nil {
		return nil, errors.Wrap(err, "invalid analysis spec")
	}
	return s.run(ctx, spec, rows, DatasetStatsFromRows(rows))
}

func (s *AnalysisService) run(ctx context.Context, spec analysis.Spec, rows []signal.PairCount, stats analysis.DatasetStats) (*analysis.Run, error) {
	start := time.Now()
	manifest := analysis.NewManifest(spec)
	manifest.Dataset = stats
	manifest.Fingerprint = analysis.Fingerprint(spec, rows)

	log := s.logger.WithField("run_id", manifest.RunID.String())
	log.Info("[AnalysisService] running %d pair rows (source=%s, mode=%s)", len(rows), spec.Source, spec.SignalMode)

	result, err := s.batch.Run(ctx, rows, OptionsFromSpec(spec, s.workers))
	if err != nil {
		return nil, errors.Wrap(err, "batch failed")
	}

	manifest.Summary = result.Summary
	manifest.Duration = time.Since(start)

	run := &analysis.Run{
		Manifest: manifest,
		Results:  result.Results,
		Rejected: result.Rejected,
	}

	if s.runs != nil {
		if err := s.runs.SaveRun(ctx, run); err != nil {
			return nil, errors.Wrapf(err, "failed to save run %s", manifest.RunID)
		}
	}

	log.Info("[AnalysisService] run complete: %d signals out of %d rows", manifest.Summary.SignalCount, manifest.Summary.EvaluatedRows)
	return run, nil
}

// GetRun loads a stored manifest and up to limit result rows.
func (s *AnalysisService) GetRun(ctx context.Context, id core.RunID, limit int) (*analysis.Run, error) {
	if s.runs == nil {
		return nil, errors.NotFound(fmt.Sprintf("run %s", id))
	}
	manifest, err := s.runs.GetManifest(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load run %s", id)
	}
	results, err := s.runs.GetResults(ctx, id, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load results of run %s", id)
	}
	return &analysis.Run{Manifest: *manifest, Results: results}, nil
}

// ListRuns returns the most recent manifests.
func (s *AnalysisService) ListRuns(ctx context.Context, limit int) ([]analysis.Manifest, error) {
	if s.runs == nil {
		return nil, nil
	}
	return s.runs.ListRuns(ctx, limit)
}

// DatasetStatsFromRows estimates population stats from pair rows alone.
func DatasetStatsFromRows(rows []signal.PairCount) analysis.DatasetStats {
	drugs := make(map[string]struct{})
	pts := make(map[string]struct{})
	var total int64
	for _, r := range rows {
		drugs[r.Drug] = struct{}{}
		pts[r.PT] = struct{}{}
		total = max(total, r.TotalReports)
	}
	return analysis.DatasetStats{
		TotalReports: total,
		Drugs:        int64(len(drugs)),
		Reactions:    int64(len(pts)),
	}
}
