package ports

import (
	"context"

	"faersignal/domain/analysis"
	"faersignal/domain/core"
	"faersignal/domain/signal"
)

// RunRepository persists completed runs and their result rows.
type RunRepository interface {
	SaveRun(ctx context.Context, run *analysis.Run) error
	GetManifest(ctx context.Context, id core.RunID) (*analysis.Manifest, error)
	// GetResults returns result rows in ranked order. limit <= 0 returns all.
	GetResults(ctx context.Context, id core.RunID, limit int) ([]signal.Result, error)
	ListRuns(ctx context.Context, limit int) ([]analysis.Manifest, error)
}
