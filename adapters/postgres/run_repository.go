package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"

	"github.com/jmoiron/sqlx"

	"faersignal/domain/analysis"
	"faersignal/domain/core"
	"faersignal/domain/signal"
	"faersignal/internal/errors"
	"faersignal/ports"
)

// resultInsertBatch bounds rows per multi-row INSERT, well under the
// postgres limit of 65535 bind parameters.
const resultInsertBatch = 500

// RunRepository stores run manifests in signal_runs and their rows in
// signal_results.
type RunRepository struct {
	db *sqlx.DB
}

var _ ports.RunRepository = (*RunRepository)(nil)

// NewRunRepository creates a new run repository
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

type resultRow struct {
	RunID        string          `db:"run_id"`
	Rank         int             `db:"rank"`
	Drug         string          `db:"drug"`
	PT           string          `db:"pt"`
	A            int64           `db:"a"`
	B            int64           `db:"b"`
	C            int64           `db:"c"`
	D            int64           `db:"d"`
	TotalReports int64           `db:"total_reports"`
	PRR          sql.NullFloat64 `db:"prr"`
	Chi2         sql.NullFloat64 `db:"chi2"`
	Chi2P        sql.NullFloat64 `db:"chi2_p"`
	ROR          sql.NullFloat64 `db:"ror"`
	RORLower     sql.NullFloat64 `db:"ror_ci_l"`
	RORUpper     sql.NullFloat64 `db:"ror_ci_u"`
	IC           sql.NullFloat64 `db:"ic"`
	ICLower      sql.NullFloat64 `db:"ic_ci_l"`
	ICUpper      sql.NullFloat64 `db:"ic_ci_u"`
	Haldane      bool            `db:"haldane"`
	FlagEvans    bool            `db:"flag_evans"`
	FlagROR025   bool            `db:"flag_ror025"`
	FlagIC025    bool            `db:"flag_ic025"`
	Signal       bool            `db:"signal"`
	QValue       sql.NullFloat64 `db:"q_value"`
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func toRow(id core.RunID, rank int, r signal.Result) resultRow {
	m := r.Metrics
	return resultRow{
		RunID:        id.String(),
		Rank:         rank,
		Drug:         r.Drug,
		PT:           r.PT,
		A:            r.A,
		B:            r.B,
		C:            r.C,
		D:            r.D,
		TotalReports: r.TotalReports,
		PRR:          nullFloat(m.PRR),
		Chi2:         nullFloat(m.ChiSquare),
		Chi2P:        nullFloat(m.ChiSquareP),
		ROR:          nullFloat(m.ROR),
		RORLower:     nullFloat(m.RORCI.Lower),
		RORUpper:     nullFloat(m.RORCI.Upper),
		IC:           nullFloat(m.IC),
		ICLower:      nullFloat(m.ICCI.Lower),
		ICUpper:      nullFloat(m.ICCI.Upper),
		Haldane:      m.HaldaneApplied,
		FlagEvans:    r.Flags.Evans,
		FlagROR025:   r.Flags.ROR025,
		FlagIC025:    r.Flags.IC025,
		Signal:       r.Signal,
		QValue:       nullFloat(r.QValue),
	}
}

func (row resultRow) result() signal.Result {
	return signal.Result{
		PairCount: signal.PairCount{
			Drug: row.Drug, PT: row.PT,
			A: row.A, B: row.B, C: row.C, D: row.D,
			TotalReports: row.TotalReports,
		},
		Metrics: signal.MetricResult{
			PRR:            fromNull(row.PRR),
			ChiSquare:      fromNull(row.Chi2),
			ChiSquareP:     fromNull(row.Chi2P),
			ROR:            fromNull(row.ROR),
			RORCI:          signal.Interval{Lower: fromNull(row.RORLower), Upper: fromNull(row.RORUpper)},
			IC:             fromNull(row.IC),
			ICCI:           signal.Interval{Lower: fromNull(row.ICLower), Upper: fromNull(row.ICUpper)},
			HaldaneApplied: row.Haldane,
		},
		Flags:  signal.Flags{Evans: row.FlagEvans, ROR025: row.FlagROR025, IC025: row.FlagIC025},
		Signal: row.Signal,
		QValue: fromNull(row.QValue),
	}
}

const insertResultQuery = `
	INSERT INTO signal_results (
		run_id, rank, drug, pt, a, b, c, d, total_reports,
		prr, chi2, chi2_p, ror, ror_ci_l, ror_ci_u, ic, ic_ci_l, ic_ci_u,
		haldane, flag_evans, flag_ror025, flag_ic025, signal, q_value
	) VALUES (
		:run_id, :rank, :drug, :pt, :a, :b, :c, :d, :total_reports,
		:prr, :chi2, :chi2_p, :ror, :ror_ci_l, :ror_ci_u, :ic, :ic_ci_l, :ic_ci_u,
		:haldane, :flag_evans, :flag_ror025, :flag_ic025, :signal, :q_value
	)`

// SaveRun writes the manifest and every result row in one transaction.
func (r *RunRepository) SaveRun(ctx context.Context, run *analysis.Run) error {
	m := run.Manifest
	manifestJSON, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO signal_runs (run_id, created_at, fingerprint, signal_mode, min_a, manifest)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.RunID.String(), m.CreatedAt.Time(), m.Fingerprint.String(),
		string(m.Spec.SignalMode), m.Spec.MinA, manifestJSON); err != nil {
		return errors.DatabaseError("failed to insert run", err)
	}

	for lo := 0; lo < len(run.Results); lo += resultInsertBatch {
		hi := min(lo+resultInsertBatch, len(run.Results))
		rows := make([]resultRow, 0, hi-lo)
		for i := lo; i < hi; i++ {
			rows = append(rows, toRow(m.RunID, i+1, run.Results[i]))
		}
		if _, err := tx.NamedExecContext(ctx, insertResultQuery, rows); err != nil {
			return errors.DatabaseError(fmt.Sprintf("failed to insert results %d-%d", lo+1, hi), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("failed to commit run", err)
	}
	return nil
}

// GetManifest loads the manifest of a run.
func (r *RunRepository) GetManifest(ctx context.Context, id core.RunID) (*analysis.Manifest, error) {
	var raw []byte
	err := r.db.GetContext(ctx, &raw, `SELECT manifest FROM signal_runs WHERE run_id = $1`, id.String())
	if err == sql.ErrNoRows {
		return nil, core.NewNotFoundError("run", id.String())
	}
	if err != nil {
		return nil, errors.DatabaseError("failed to load run", err)
	}

	var m analysis.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return &m, nil
}

// GetResults returns the rows of a run in rank order.
func (r *RunRepository) GetResults(ctx context.Context, id core.RunID, limit int) ([]signal.Result, error) {
	if _, err := r.GetManifest(ctx, id); err != nil {
		return nil, err
	}

	var lim interface{}
	if limit > 0 {
		lim = limit
	}
	var rows []resultRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT run_id, rank, drug, pt, a, b, c, d, total_reports,
		       prr, chi2, chi2_p, ror, ror_ci_l, ror_ci_u, ic, ic_ci_l, ic_ci_u,
		       haldane, flag_evans, flag_ror025, flag_ic025, signal, q_value
		FROM signal_results
		WHERE run_id = $1
		ORDER BY rank
		LIMIT $2`, id.String(), lim); err != nil {
		return nil, errors.DatabaseError("failed to load results", err)
	}

	out := make([]signal.Result, len(rows))
	for i, row := range rows {
		out[i] = row.result()
	}
	return out, nil
}

// ListRuns returns manifests newest first.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]analysis.Manifest, error) {
	var lim interface{}
	if limit > 0 {
		lim = limit
	}
	var raws [][]byte
	if err := r.db.SelectContext(ctx, &raws, `
		SELECT manifest FROM signal_runs
		ORDER BY created_at DESC
		LIMIT $1`, lim); err != nil {
		return nil, errors.DatabaseError("failed to list runs", err)
	}

	out := make([]analysis.Manifest, 0, len(raws))
	for _, raw := range raws {
		var m analysis.Manifest
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}
