package migration

import (
	"context"
	"fmt"

	"faersignal/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Reset(ctx context.Context, db *sqlx.DB) error
	Version() string
}

var _ Migrator = (*MigrationRunner)(nil)

// Apply brings the schema to m's version, then empties the report tables
// when reset is set.
func Apply(ctx context.Context, m Migrator, db *sqlx.DB, reset bool) error {
	if err := m.Run(ctx, db); err != nil {
		return err
	}
	if reset {
		return m.Reset(ctx, db)
	}
	return nil
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.1.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// step is one idempotent DDL statement.
type step struct {
	name string
	sql  string
}

var steps = []step{
	{"reports table", `
		CREATE TABLE IF NOT EXISTS reports (
			safetyreportid          TEXT PRIMARY KEY,
			receivedate             DATE,
			primarysource_qualifier INTEGER
		)`},
	{"drugs table", `
		CREATE TABLE IF NOT EXISTS drugs (
			id             BIGSERIAL PRIMARY KEY,
			safetyreportid TEXT NOT NULL REFERENCES reports(safetyreportid) ON DELETE CASCADE,
			drug_name      TEXT NOT NULL,
			drug_name_norm TEXT,
			norm_source    TEXT,
			role           INTEGER NOT NULL
		)`},
	{"drugs norm_source column", `
		ALTER TABLE drugs ADD COLUMN IF NOT EXISTS norm_source TEXT`},
	{"reactions table", `
		CREATE TABLE IF NOT EXISTS reactions (
			id             BIGSERIAL PRIMARY KEY,
			safetyreportid TEXT NOT NULL REFERENCES reports(safetyreportid) ON DELETE CASCADE,
			meddra_pt      TEXT NOT NULL
		)`},
	{"drug_normalizations table", `
		CREATE TABLE IF NOT EXISTS drug_normalizations (
			raw_name   TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			source     TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`},
	{"signal_runs table", `
		CREATE TABLE IF NOT EXISTS signal_runs (
			run_id      UUID PRIMARY KEY,
			created_at  TIMESTAMPTZ NOT NULL,
			fingerprint TEXT NOT NULL,
			signal_mode TEXT NOT NULL,
			min_a       INTEGER NOT NULL,
			manifest    JSONB NOT NULL
		)`},
	{"signal_results table", `
		CREATE TABLE IF NOT EXISTS signal_results (
			run_id        UUID NOT NULL REFERENCES signal_runs(run_id) ON DELETE CASCADE,
			rank          INTEGER NOT NULL,
			drug          TEXT NOT NULL,
			pt            TEXT NOT NULL,
			a             BIGINT NOT NULL,
			b             BIGINT NOT NULL,
			c             BIGINT NOT NULL,
			d             BIGINT NOT NULL,
			total_reports BIGINT NOT NULL,
			prr           DOUBLE PRECISION,
			chi2          DOUBLE PRECISION,
			chi2_p        DOUBLE PRECISION,
			ror           DOUBLE PRECISION,
			ror_ci_l      DOUBLE PRECISION,
			ror_ci_u      DOUBLE PRECISION,
			ic            DOUBLE PRECISION,
			ic_ci_l       DOUBLE PRECISION,
			ic_ci_u       DOUBLE PRECISION,
			haldane       BOOLEAN NOT NULL,
			flag_evans    BOOLEAN NOT NULL,
			flag_ror025   BOOLEAN NOT NULL,
			flag_ic025    BOOLEAN NOT NULL,
			signal        BOOLEAN NOT NULL,
			q_value       DOUBLE PRECISION,
			PRIMARY KEY (run_id, rank)
		)`},
	{"indexes", `
		CREATE INDEX IF NOT EXISTS idx_reports_receivedate ON reports(receivedate);
		CREATE INDEX IF NOT EXISTS idx_drugs_report ON drugs(safetyreportid);
		CREATE INDEX IF NOT EXISTS idx_drugs_role ON drugs(role);
		CREATE INDEX IF NOT EXISTS idx_reactions_report ON reactions(safetyreportid);
		CREATE INDEX IF NOT EXISTS idx_signal_runs_created ON signal_runs(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_signal_results_pair ON signal_results(drug, pt)`},
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	for _, s := range steps {
		if _, err := db.ExecContext(ctx, s.sql); err != nil {
			return errors.Wrap(err, fmt.Sprintf("failed to create %s", s.name))
		}
	}
	return nil
}

// Reset removes every report record, keeping run history.
func (r *MigrationRunner) Reset(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, `TRUNCATE reactions, drugs, reports`); err != nil {
		return errors.Wrap(err, "failed to reset report tables")
	}
	return nil
}
