package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"faersignal/domain/analysis"
	"faersignal/domain/faers"
	"faersignal/domain/signal"
	"faersignal/internal/errors"
	"faersignal/ports"
)

// scopedReportsCTE selects the in-scope reports and their (drug, pt) sets.
// $1 roles, $2 since, $3 until, $4 use normalized names.
const scopedReportsCTE = `
	WITH scoped AS (
		SELECT DISTINCT r.safetyreportid
		FROM reports r
		JOIN drugs d ON d.safetyreportid = r.safetyreportid
		WHERE d.role = ANY($1)
		  AND ($2::date IS NULL OR r.receivedate >= $2::date)
		  AND ($3::date IS NULL OR r.receivedate <= $3::date)
	),
	drug_reports AS (
		SELECT DISTINCT d.safetyreportid,
		       lower(btrim(CASE WHEN $4::boolean AND coalesce(btrim(d.drug_name_norm), '') <> ''
		                        THEN d.drug_name_norm ELSE d.drug_name END)) AS drug
		FROM drugs d
		JOIN scoped s ON s.safetyreportid = d.safetyreportid
		WHERE d.role = ANY($1)
	),
	pt_reports AS (
		SELECT DISTINCT x.safetyreportid, btrim(x.meddra_pt) AS pt
		FROM reactions x
		JOIN scoped s ON s.safetyreportid = x.safetyreportid
		WHERE btrim(x.meddra_pt) <> ''
	)`

// pairCountsQuery derives A, B, C, D and N per pair:
// B = drug reports - A, C = pt reports - A, D = N - A - B - C.
// $5 and $6 are case-insensitive drug and pt prefixes.
const pairCountsQuery = scopedReportsCTE + `,
	n AS (SELECT count(*) AS total_reports FROM scoped),
	drug_n AS (SELECT drug, count(*) AS n_drug FROM drug_reports WHERE drug <> '' GROUP BY drug),
	pt_n AS (SELECT pt, count(*) AS n_pt FROM pt_reports GROUP BY pt),
	pairs AS (
		SELECT dr.drug, pr.pt, count(*) AS a
		FROM drug_reports dr
		JOIN pt_reports pr ON pr.safetyreportid = dr.safetyreportid
		WHERE dr.drug <> ''
		GROUP BY dr.drug, pr.pt
	)
	SELECT p.drug, p.pt, p.a,
	       dn.n_drug - p.a AS b,
	       pn.n_pt - p.a AS c,
	       n.total_reports - dn.n_drug - pn.n_pt + p.a AS d,
	       n.total_reports
	FROM pairs p
	JOIN drug_n dn ON dn.drug = p.drug
	JOIN pt_n pn ON pn.pt = p.pt
	CROSS JOIN n
	WHERE left(lower(p.drug), length($5::text)) = lower($5::text)
	  AND left(lower(p.pt), length($6::text)) = lower($6::text)
	ORDER BY p.drug, p.pt`

const datasetStatsQuery = scopedReportsCTE + `
	SELECT (SELECT count(*) FROM scoped) AS total_reports,
	       (SELECT count(DISTINCT drug) FROM drug_reports WHERE drug <> '') AS drugs,
	       (SELECT count(DISTINCT pt) FROM pt_reports) AS reactions`

// PairCountRepository aggregates pair counts from the FAERS tables.
type PairCountRepository struct {
	db *sqlx.DB
}

var (
	_ ports.PairCountSource      = (*PairCountRepository)(nil)
	_ ports.DatasetStatsProvider = (*PairCountRepository)(nil)
)

// NewPairCountRepository creates a new pair count repository
func NewPairCountRepository(db *sqlx.DB) *PairCountRepository {
	return &PairCountRepository{db: db}
}

func scopeArgs(scope faers.Scope) []interface{} {
	return []interface{}{
		pq.Array(scope.RoleCodes()),
		scope.Since,
		scope.Until,
		scope.UseNormalized,
	}
}

// PairCounts implements ports.PairCountSource.
func (r *PairCountRepository) PairCounts(ctx context.Context, scope faers.Scope) ([]signal.PairCount, error) {
	args := append(scopeArgs(scope),
		strings.TrimSpace(scope.DrugPrefix),
		strings.TrimSpace(scope.PTPrefix),
	)

	var rows []signal.PairCount
	if err := r.db.SelectContext(ctx, &rows, pairCountsQuery, args...); err != nil {
		return nil, errors.DatabaseError("failed to aggregate pair counts", err)
	}
	return rows, nil
}

// DatasetStats implements ports.DatasetStatsProvider.
func (r *PairCountRepository) DatasetStats(ctx context.Context, scope faers.Scope) (analysis.DatasetStats, error) {
	var stats analysis.DatasetStats
	if err := r.db.GetContext(ctx, &stats, datasetStatsQuery, scopeArgs(scope)...); err != nil {
		return stats, errors.DatabaseError("failed to read dataset stats", err)
	}

	norm, err := NewDrugRepository(r.db).NormalizationStats(ctx)
	if err != nil {
		return stats, err
	}
	if len(norm) > 0 {
		stats.Normalization = norm
	}
	return stats, nil
}

// String describes the source for logs.
func (r *PairCountRepository) String() string {
	return fmt.Sprintf("postgres(%s)", r.db.DriverName())
}
