package excel

import (
	"bytes"
	"context"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"faersignal/domain/analysis"
	"faersignal/domain/faers"
	"faersignal/domain/signal"
	apperrors "faersignal/internal/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPairCountReader_CSV(t *testing.T) {
	path := writeFile(t, "counts.csv", "Drug,PT,A,B,C,D,N\n"+
		"aspirin,nausea,1,1,1,0,3\n"+
		",,,,,,\n"+
		"ibuprofen,headache,2.0,0,1,5,8\n")

	rows, err := NewPairCountReader(path, nil).PairCounts(context.Background(), faers.Scope{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, signal.PairCount{Drug: "aspirin", PT: "nausea", A: 1, B: 1, C: 1, D: 0, TotalReports: 3}, rows[0])
	assert.Equal(t, int64(2), rows[1].A)
}

func TestPairCountReader_PrefixFilters(t *testing.T) {
	path := writeFile(t, "counts.csv", "drug,pt,a,b,c,d,total_reports\n"+
		"Aspirin,Nausea,1,1,1,0,3\n"+
		"aspirin,headache,1,1,0,1,3\n"+
		"ibuprofen,nausea,1,0,1,1,3\n")

	rows, err := NewPairCountReader(path, nil).PairCounts(context.Background(),
		faers.Scope{DrugPrefix: "asp", PTPrefix: "nau"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Aspirin", rows[0].Drug)
}

func TestPairCountReader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errText string
	}{
		{"missing column", "drug,pt,a,b,c\nx,y,1,1,1\n", "missing columns: d, total_reports"},
		{"bad count", "drug,pt,a,b,c,d,n\nx,y,1,1,1.5,0,3\n", "line 2 column c"},
		{"empty count", "drug,pt,a,b,c,d,n\nx,y,1,,1,0,3\n", "empty count"},
		{"line after empty line", "drug,pt,a,b,c,d,n\n\nx,y,1,1,1,0,3\nx,z,x,1,1,0,3\n", "line 4 column a"},
		{"line after blank cells", "drug,pt,a,b,c,d,n\n,,,,,,\nx,y,1,1,1,0,3\nx,z,x,1,1,0,3\n", "line 4 column a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "counts.csv", tt.content)
			_, err := NewPairCountReader(path, nil).PairCounts(context.Background(), faers.Scope{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errText)
			assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))
		})
	}
}

func TestPairCountReader_MissingFile(t *testing.T) {
	_, err := NewPairCountReader(filepath.Join(t.TempDir(), "nope.xlsx"), nil).
		PairCounts(context.Background(), faers.Scope{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "XLSX file not found")
}

func TestPairCountReader_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counts.xlsx")
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"drug", "pt", "A", "B", "C", "D", "total_reports"},
		{"aspirin", "nausea", 50, 100, 10, 1000, 1160},
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, f.SetCellValue("Sheet1", cell, v))
		}
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	got, err := NewPairCountReader(path, nil).PairCounts(context.Background(), faers.Scope{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1160), got[0].TotalReports)
}

func TestPairCountReader_XLSXLineAfterBlankRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counts.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"drug", "pt", "a", "b", "c", "d", "n"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{"aspirin", "nausea", 1, 1, 1, 0, 3}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A4", &[]interface{}{"aspirin", "rash", "many", 1, 1, 0, 3}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	_, err := NewPairCountReader(path, nil).PairCounts(context.Background(), faers.Scope{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 4 column a")
}

func evaluated(t *testing.T) []signal.Result {
	t.Helper()
	strong, err := signal.Evaluate(signal.PairCount{Drug: "aspirin", PT: "nausea", A: 50, B: 100, C: 10, D: 1000, TotalReports: 1160}, 3, signal.ModeBalanced)
	require.NoError(t, err)
	undefined, err := signal.Evaluate(signal.PairCount{Drug: "x", PT: "y", A: 1, B: 0, C: 0, D: 0, TotalReports: 1}, 3, signal.ModeBalanced)
	require.NoError(t, err)
	strong.QValue = 0.01
	return []signal.Result{strong, undefined}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, evaluated(t)))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, signal.ResultColumns, records[0])

	strong := records[1]
	assert.Equal(t, "aspirin", strong[0])
	assert.Equal(t, "50", strong[2])
	assert.Equal(t, "true", strong[19])
	assert.Equal(t, "0.01", strong[20])

	// The all-but-A-zero row gets Haldane, so only the q-value stays empty.
	assert.Equal(t, "", records[2][20])
}

func TestWriteCSV_UndefinedCellsEmpty(t *testing.T) {
	r := evaluated(t)[0]
	r.Metrics.PRR = math.NaN()
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []signal.Result{r}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	fields := strings.Split(lines[1], ",")
	assert.Equal(t, "", fields[7])
}

func TestExporter_Export(t *testing.T) {
	results := evaluated(t)
	run := &analysis.Run{Manifest: analysis.NewManifest(analysis.DefaultSpec()), Results: results}
	run.Manifest.Summary.EvaluatedRows = len(results)

	dir := filepath.Join(t.TempDir(), "exports")
	paths, err := NewExporter(dir).Export(run)
	require.NoError(t, err)

	for _, p := range []string{paths.CSV, paths.XLSX, paths.Manifest} {
		assert.FileExists(t, p)
		assert.Contains(t, filepath.Base(p), run.Manifest.RunID.String())
	}

	f, err := excelize.OpenFile(paths.XLSX)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{SignalsSheet, ManifestSheet}, f.GetSheetList())

	sheetRows, err := f.GetRows(SignalsSheet)
	require.NoError(t, err)
	require.Len(t, sheetRows, 3)
	assert.Equal(t, "drug", sheetRows[0][0])
	assert.Equal(t, "aspirin", sheetRows[1][0])

	id, err := f.GetCellValue(ManifestSheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, run.Manifest.RunID.String(), id)

	manifest, err := os.ReadFile(paths.Manifest)
	require.NoError(t, err)
	assert.Contains(t, string(manifest), `"evaluated_rows": 2`)
}
