package postgres

import (
	"context"
	"sort"

	"github.com/jmoiron/sqlx"

	"faersignal/domain/faers"
	"faersignal/internal/errors"
	"faersignal/ports"
)

// DrugRepository reads raw drug names and stores normalizations.
type DrugRepository struct {
	db *sqlx.DB
}

var _ ports.DrugRepository = (*DrugRepository)(nil)

// NewDrugRepository creates a new drug repository
func NewDrugRepository(db *sqlx.DB) *DrugRepository {
	return &DrugRepository{db: db}
}

type normalizationRow struct {
	RawName string `db:"raw_name"`
	Name    string `db:"name"`
	Source  string `db:"source"`
}

// DistinctDrugNames returns lower-cased raw names. onlyUnnormalized skips
// names already present in drug_normalizations.
func (r *DrugRepository) DistinctDrugNames(ctx context.Context, onlyUnnormalized bool) ([]string, error) {
	query := `
		SELECT DISTINCT lower(btrim(d.drug_name)) AS name
		FROM drugs d
		WHERE btrim(d.drug_name) <> ''`
	if onlyUnnormalized {
		query += `
		  AND NOT EXISTS (
			SELECT 1 FROM drug_normalizations n WHERE n.raw_name = lower(btrim(d.drug_name))
		  )`
	}
	query += `
		ORDER BY name`

	var names []string
	if err := r.db.SelectContext(ctx, &names, query); err != nil {
		return nil, errors.DatabaseError("failed to list drug names", err)
	}
	return names, nil
}

// SaveNormalizations upserts byRaw and copies the names onto drugs in one
// transaction. Drug rows that were normalized from their own openFDA
// harmonized fields at ingest keep that name.
func (r *DrugRepository) SaveNormalizations(ctx context.Context, byRaw map[string]faers.Normalization) error {
	if len(byRaw) == 0 {
		return nil
	}

	keys := make([]string, 0, len(byRaw))
	for k := range byRaw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO drug_normalizations (raw_name, name, source, updated_at)
		VALUES (:raw_name, :name, :source, NOW())
		ON CONFLICT (raw_name) DO UPDATE
		SET name = EXCLUDED.name, source = EXCLUDED.source, updated_at = NOW()`
	for _, k := range keys {
		n := byRaw[k]
		row := normalizationRow{RawName: k, Name: n.Name, Source: string(n.Source)}
		if _, err := tx.NamedExecContext(ctx, upsert, row); err != nil {
			return errors.DatabaseError("failed to save normalization for "+k, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE drugs d
		SET drug_name_norm = n.name, norm_source = n.source
		FROM drug_normalizations n
		WHERE n.raw_name = lower(btrim(d.drug_name))
		  AND d.norm_source IS DISTINCT FROM $1`, string(faers.SourceOpenFDA)); err != nil {
		return errors.DatabaseError("failed to apply normalizations", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("failed to commit normalizations", err)
	}
	return nil
}

// NormalizationStats counts stored normalizations per source label.
func (r *DrugRepository) NormalizationStats(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Source string `db:"source"`
		Count  int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT source, count(*) AS count
		FROM drug_normalizations
		GROUP BY source`); err != nil {
		return nil, errors.DatabaseError("failed to read normalization stats", err)
	}

	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Source] = row.Count
	}
	return out, nil
}
