package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faersignal/domain/analysis"
	"faersignal/domain/core"
	"faersignal/domain/faers"
	"faersignal/domain/signal"
	apperrors "faersignal/internal/errors"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestPairCountRepository_PairCounts(t *testing.T) {
	db, mock := newMockDB(t)
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"drug", "pt", "a", "b", "c", "d", "total_reports"}).
		AddRow("aspirin", "headache", 1, 1, 0, 1, 3).
		AddRow("aspirin", "nausea", 1, 1, 1, 0, 3)
	mock.ExpectQuery(`WITH scoped AS .* FROM pairs p`).
		WithArgs(sqlmock.AnyArg(), since, nil, false, "asp", "").
		WillReturnRows(rows)

	repo := NewPairCountRepository(db)
	got, err := repo.PairCounts(context.Background(), faers.Scope{SuspectOnly: true, Since: &since, DrugPrefix: " asp "})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, signal.PairCount{Drug: "aspirin", PT: "nausea", A: 1, B: 1, C: 1, D: 0, TotalReports: 3}, got[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPairCountRepository_DatabaseError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`WITH scoped AS`).WillReturnError(errors.New("relation \"reports\" does not exist"))

	_, err := NewPairCountRepository(db).PairCounts(context.Background(), faers.Scope{})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDatabaseError, apperrors.GetCode(err))
}

func TestPairCountRepository_DatasetStats(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT \(SELECT count\(\*\) FROM scoped\)`).
		WillReturnRows(sqlmock.NewRows([]string{"total_reports", "drugs", "reactions"}).AddRow(4, 2, 2))
	mock.ExpectQuery(`FROM drug_normalizations`).
		WillReturnRows(sqlmock.NewRows([]string{"source", "count"}).
			AddRow("rxnorm_api", 3).
			AddRow("unmapped", 1))

	stats, err := NewPairCountRepository(db).DatasetStats(context.Background(), faers.Scope{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalReports)
	assert.Equal(t, int64(2), stats.Drugs)
	assert.Equal(t, 3, stats.Normalization["rxnorm_api"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func sampleRun() *analysis.Run {
	m := analysis.NewManifest(analysis.DefaultSpec())
	m.Fingerprint = core.NewHash([]byte("rows"))
	strong, _ := signal.Evaluate(signal.PairCount{Drug: "aspirin", PT: "nausea", A: 50, B: 100, C: 10, D: 1000, TotalReports: 1160}, 3, signal.ModeBalanced)
	zero, _ := signal.Evaluate(signal.PairCount{Drug: "aspirin", PT: "headache", A: 1, B: 1, C: 0, D: 1, TotalReports: 3}, 3, signal.ModeBalanced)
	return &analysis.Run{Manifest: m, Results: []signal.Result{strong, zero}}
}

func TestRunRepository_SaveRun(t *testing.T) {
	db, mock := newMockDB(t)
	run := sampleRun()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO signal_runs`).
		WithArgs(run.Manifest.RunID.String(), sqlmock.AnyArg(), run.Manifest.Fingerprint.String(), "balanced", 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO signal_results`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, NewRunRepository(db).SaveRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepository_SaveRunRollsBack(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO signal_runs`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO signal_results`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := NewRunRepository(db).SaveRun(context.Background(), sampleRun())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDatabaseError, apperrors.GetCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepository_GetManifestNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	id := core.NewRunID()
	mock.ExpectQuery(`SELECT manifest FROM signal_runs WHERE run_id = \$1`).
		WithArgs(id.String()).
		WillReturnError(sql.ErrNoRows)

	_, err := NewRunRepository(db).GetManifest(context.Background(), id)
	assert.True(t, core.IsNotFoundError(err))
}

func TestRunRepository_GetResultsRestoresUndefined(t *testing.T) {
	db, mock := newMockDB(t)
	run := sampleRun()
	manifestJSON, err := json.Marshal(run.Manifest)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT manifest FROM signal_runs`).
		WillReturnRows(sqlmock.NewRows([]string{"manifest"}).AddRow(manifestJSON))

	cols := []string{"run_id", "rank", "drug", "pt", "a", "b", "c", "d", "total_reports",
		"prr", "chi2", "chi2_p", "ror", "ror_ci_l", "ror_ci_u", "ic", "ic_ci_l", "ic_ci_u",
		"haldane", "flag_evans", "flag_ror025", "flag_ic025", "signal", "q_value"}
	mock.ExpectQuery(`FROM signal_results`).
		WithArgs(run.Manifest.RunID.String(), 10).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			run.Manifest.RunID.String(), 1, "aspirin", "nausea", 1, 1, 0, 0, 2,
			nil, nil, nil, 3.0, 0.5, 18.0, 0.2, -1.1, 1.5,
			true, false, false, false, false, nil))

	results, err := NewRunRepository(db).GetResults(context.Background(), run.Manifest.RunID, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.True(t, math.IsNaN(r.Metrics.PRR))
	assert.True(t, math.IsNaN(r.QValue))
	assert.Equal(t, 3.0, r.Metrics.ROR)
	assert.True(t, r.Metrics.RORCI.Defined())
	assert.True(t, r.Metrics.HaldaneApplied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepository_ListRuns(t *testing.T) {
	db, mock := newMockDB(t)
	run := sampleRun()
	manifestJSON, err := json.Marshal(run.Manifest)
	require.NoError(t, err)

	mock.ExpectQuery(`ORDER BY created_at DESC`).
		WithArgs(nil).
		WillReturnRows(sqlmock.NewRows([]string{"manifest"}).AddRow(manifestJSON))

	list, err := NewRunRepository(db).ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, run.Manifest.RunID, list[0].RunID)
	assert.Equal(t, run.Manifest.Spec, list[0].Spec)
}

func TestDrugRepository_SaveNormalizations(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO drug_normalizations`).
		WithArgs("aspirin", "aspirin", "unmapped").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO drug_normalizations`).
		WithArgs("bayer aspirin", "aspirin", "rxnorm_api").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Rows normalized from their openFDA fields at ingest are left alone.
	mock.ExpectExec(`UPDATE drugs d\s+SET drug_name_norm = n.name, norm_source = n.source`).
		WithArgs("openfda_harmonized").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	err := NewDrugRepository(db).SaveNormalizations(context.Background(), map[string]faers.Normalization{
		"bayer aspirin": {Name: "aspirin", Source: faers.SourceRxNorm},
		"aspirin":       faers.Unmapped("aspirin"),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDrugRepository_DistinctDrugNames(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`NOT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("aspirin").AddRow("ibuprofen"))

	names, err := NewDrugRepository(db).DistinctDrugNames(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"aspirin", "ibuprofen"}, names)
}

func TestReportRepository_InsertReports(t *testing.T) {
	db, mock := newMockDB(t)
	reports := []faers.Report{
		{
			SafetyReportID: "r1",
			ReceiveDate:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Qualifier:      1,
			Drugs:          []faers.DrugEntry{{Name: "aspirin", Role: faers.RolePrimarySuspect}},
			Reactions:      []string{"nausea"},
		},
		{SafetyReportID: "r0", Drugs: []faers.DrugEntry{{Name: "x", Role: 1}}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO reports`).WithArgs("r1", reports[0].ReceiveDate, 1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO drugs`).WithArgs("r1", "aspirin", nil, nil, 1).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO reactions`).WithArgs("r1", "nausea").WillReturnResult(sqlmock.NewResult(1, 1))
	// r0 already exists: its children are skipped.
	mock.ExpectExec(`INSERT INTO reports`).WithArgs("r0", sqlmock.AnyArg(), 0).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, NewReportRepository(db).InsertReports(context.Background(), reports))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepository_InsertReportsKeepsNormSource(t *testing.T) {
	db, mock := newMockDB(t)
	received := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	reports := []faers.Report{{
		SafetyReportID: "10001",
		ReceiveDate:    received,
		Drugs: []faers.DrugEntry{
			{Name: "BAYER ASPIRIN", NormalizedName: "aspirin", NormSource: faers.SourceOpenFDA, Role: faers.RolePrimarySuspect},
			{Name: "LIPITOR", Role: faers.RoleConcomitant},
		},
	}}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO reports`).WithArgs("10001", received, 0).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO drugs`).
		WithArgs("10001", "BAYER ASPIRIN", "aspirin", "openfda_harmonized", 1).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO drugs`).
		WithArgs("10001", "LIPITOR", nil, nil, 3).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, NewReportRepository(db).InsertReports(context.Background(), reports))
	assert.NoError(t, mock.ExpectationsWereMet())
}
