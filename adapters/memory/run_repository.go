// Package memory holds in-process implementations of the repository ports,
// used when no database is configured and in tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"faersignal/domain/analysis"
	"faersignal/domain/core"
	"faersignal/domain/signal"
	"faersignal/ports"
)

// RunRepository keeps runs in a map.
type RunRepository struct {
	mu   sync.RWMutex
	runs map[core.RunID]analysis.Run
}

var _ ports.RunRepository = (*RunRepository)(nil)

// NewRunRepository creates an empty repository.
func NewRunRepository() *RunRepository {
	return &RunRepository{runs: make(map[core.RunID]analysis.Run)}
}

func (r *RunRepository) SaveRun(ctx context.Context, run *analysis.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := analysis.Run{
		Manifest: run.Manifest,
		Results:  append([]signal.Result(nil), run.Results...),
		Rejected: append([]signal.RowError(nil), run.Rejected...),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.Manifest.RunID] = stored
	return nil
}

func (r *RunRepository) GetManifest(ctx context.Context, id core.RunID) (*analysis.Manifest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, core.NewNotFoundError("run", id.String())
	}
	m := run.Manifest
	return &m, nil
}

func (r *RunRepository) GetResults(ctx context.Context, id core.RunID, limit int) ([]signal.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, core.NewNotFoundError("run", id.String())
	}
	results := run.Results
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return append([]signal.Result(nil), results...), nil
}

// ListRuns returns manifests newest first.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]analysis.Manifest, error) {
	r.mu.RLock()
	out := make([]analysis.Manifest, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run.Manifest)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Time().After(out[j].CreatedAt.Time())
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
