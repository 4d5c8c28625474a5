package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"faersignal/domain/faers"
	"faersignal/internal/errors"
	"faersignal/ports"
)

// ReportRepository writes report records into the FAERS tables.
type ReportRepository struct {
	db *sqlx.DB
}

var _ ports.ReportStore = (*ReportRepository)(nil)

// NewReportRepository creates a new report repository
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// InsertReports stores reports in one transaction. A report ID that already
// exists is skipped together with its drugs and reactions.
func (r *ReportRepository) InsertReports(ctx context.Context, reports []faers.Report) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	for _, rep := range reports {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO reports (safetyreportid, receivedate, primarysource_qualifier)
			VALUES ($1, $2, $3)
			ON CONFLICT (safetyreportid) DO NOTHING`,
			rep.SafetyReportID, rep.ReceiveDate, rep.Qualifier)
		if err != nil {
			return errors.DatabaseError("failed to insert report "+rep.SafetyReportID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			continue
		}

		for _, d := range rep.Drugs {
			var norm, source interface{}
			if d.NormalizedName != "" {
				norm = d.NormalizedName
				source = string(d.NormSource)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO drugs (safetyreportid, drug_name, drug_name_norm, norm_source, role)
				VALUES ($1, $2, $3, $4, $5)`,
				rep.SafetyReportID, d.Name, norm, source, int(d.Role)); err != nil {
				return errors.DatabaseError("failed to insert drug for report "+rep.SafetyReportID, err)
			}
		}
		for _, pt := range rep.Reactions {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO reactions (safetyreportid, meddra_pt)
				VALUES ($1, $2)`,
				rep.SafetyReportID, pt); err != nil {
				return errors.DatabaseError("failed to insert reaction for report "+rep.SafetyReportID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("failed to commit reports", err)
	}
	return nil
}
