package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"faersignal/domain/analysis"
	"faersignal/domain/faers"
	"faersignal/domain/signal"
	"faersignal/internal"
)

// evaluateChunk is the number of rows one worker evaluates per task.
const evaluateChunk = 256

// BatchOptions are the settings threaded through one batch.
type BatchOptions struct {
	MinA int
	Mode signal.Mode
	// ApplyFDR adds Benjamini-Hochberg q-values over the chi-square p-values.
	ApplyFDR bool
	// KeepBelowMinA keeps rows with A < MinA in the output. They are dropped
	// by default, before FDR, so they do not enlarge the tested family.
	KeepBelowMinA bool
	DrugPrefix    string
	PTPrefix      string
	Ranking       signal.Ranking
	// TopN sizes the ranked view returned by BatchResult.Top. Results always
	// hold every evaluated row.
	TopN    int
	Workers int
}

// DefaultBatchOptions returns the recommended settings.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{
		MinA:     signal.DefaultMinA,
		Mode:     signal.DefaultMode,
		ApplyFDR: true,
		Ranking:  signal.DefaultRanking,
		TopN:     analysis.DefaultTopN,
		Workers:  4,
	}
}

// OptionsFromSpec maps a run spec to batch options.
func OptionsFromSpec(spec analysis.Spec, workers int) BatchOptions {
	return BatchOptions{
		MinA:          spec.MinA,
		Mode:          spec.SignalMode,
		ApplyFDR:      spec.FDR,
		KeepBelowMinA: spec.KeepBelowMinA,
		DrugPrefix:    spec.DrugFilter,
		PTPrefix:      spec.PTFilter,
		Ranking:       spec.Ranking,
		TopN:          spec.TopN,
		Workers:       workers,
	}
}

// Validate rejects unusable options before any row is touched.
func (o BatchOptions) Validate() error {
	if _, err := o.Mode.RequiredFlags(); err != nil {
		return err
	}
	if _, err := signal.ParseRanking(string(o.Ranking)); err != nil {
		return err
	}
	if o.MinA < 0 {
		return fmt.Errorf("min_a must be >= 0, got %d", o.MinA)
	}
	if o.TopN < 0 {
		return fmt.Errorf("top_n must be >= 0, got %d", o.TopN)
	}
	return nil
}

// BatchResult is the output of one batch.
type BatchResult struct {
	// Results are the evaluated rows in ranked order.
	Results  []signal.Result
	Rejected []signal.RowError
	Summary  analysis.Summary
	TopN     int
}

// Top returns the first TopN ranked rows, or all rows when TopN is 0.
func (r *BatchResult) Top() []signal.Result {
	if r.TopN <= 0 || r.TopN >= len(r.Results) {
		return r.Results
	}
	return r.Results[:r.TopN]
}

// BatchService applies the metrics, flags, classification and FDR steps to a
// table of pair counts.
type BatchService struct {
	logger *internal.Logger
}

// NewBatchService creates a batch service
func NewBatchService(logger *internal.Logger) *BatchService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &BatchService{logger: logger}
}

// Run evaluates rows. Rows are filtered by prefix, validated, evaluated in
// parallel, gated by MinA, FDR-corrected as a whole and ranked. Invalid rows
// are returned in Rejected and never reach the metrics.
func (s *BatchService) Run(ctx context.Context, rows []signal.PairCount, opts BatchOptions) (*BatchResult, error) {
	if opts.Mode == "" {
		opts.Mode = signal.DefaultMode
	}
	if opts.Ranking == "" {
		opts.Ranking = signal.DefaultRanking
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	start := time.Now()
	log := s.logger.WithFields(map[string]interface{}{
		"rows": len(rows),
		"mode": opts.Mode,
	})
	log.Debug("[BatchService] starting batch")

	summary := analysis.Summary{InputRows: len(rows)}

	filtered := make([]signal.PairCount, 0, len(rows))
	var rejected []signal.RowError
	for i, row := range rows {
		if !faers.HasPrefixFold(row.Drug, opts.DrugPrefix) || !faers.HasPrefixFold(row.PT, opts.PTPrefix) {
			continue
		}
		summary.FilteredRows++
		if err := row.Validate(); err != nil {
			rejected = append(rejected, signal.RowError{Index: i, Drug: row.Drug, PT: row.PT, Err: err})
			continue
		}
		filtered = append(filtered, row)
	}
	summary.RejectedRows = len(rejected)
	if len(rejected) > 0 {
		log.Warn("[BatchService] rejected %d invalid rows (first: %v)", len(rejected), rejected[0])
	}

	evaluated, err := s.evaluate(ctx, filtered, opts)
	if err != nil {
		return nil, err
	}

	results := evaluated[:0]
	for _, r := range evaluated {
		if !opts.KeepBelowMinA && r.A < int64(opts.MinA) {
			summary.BelowMinA++
			continue
		}
		results = append(results, r)
	}

	// Barrier: every p-value exists before any q-value is assigned.
	if opts.ApplyFDR {
		applyFDR(results)
	}

	signal.SortResults(results, opts.Ranking)
	summarize(&summary, results)

	log.WithFields(map[string]interface{}{
		"evaluated":   summary.EvaluatedRows,
		"rejected":    summary.RejectedRows,
		"below_min_a": summary.BelowMinA,
		"signals":     summary.SignalCount,
		"duration":    time.Since(start).String(),
	}).Info("[BatchService] batch complete")

	return &BatchResult{
		Results:  results,
		Rejected: rejected,
		Summary:  summary,
		TopN:     opts.TopN,
	}, nil
}

// evaluate computes every row in chunks across opts.Workers goroutines.
// Output order matches input order.
func (s *BatchService) evaluate(ctx context.Context, rows []signal.PairCount, opts BatchOptions) ([]signal.Result, error) {
	out := make([]signal.Result, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for lo := 0; lo < len(rows); lo += evaluateChunk {
		lo, hi := lo, min(lo+evaluateChunk, len(rows))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				r, err := signal.Evaluate(rows[i], opts.MinA, opts.Mode)
				if err != nil {
					return err
				}
				out[i] = r
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// applyFDR sets QValue on every result from its chi-square p-value.
func applyFDR(results []signal.Result) {
	p := make([]float64, len(results))
	for i, r := range results {
		p[i] = r.Metrics.ChiSquareP
	}
	for i, q := range signal.BenjaminiHochberg(p) {
		results[i].QValue = q
	}
}
