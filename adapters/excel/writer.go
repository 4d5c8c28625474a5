package excel

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"faersignal/domain/analysis"
	"faersignal/domain/signal"
)

const (
	SignalsSheet  = "signals"
	ManifestSheet = "manifest"
)

// cellText renders one Values() entry for CSV. Undefined numbers are empty.
func cellText(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// WriteCSV writes results with a header row in signal.ResultColumns order.
func WriteCSV(w io.Writer, results []signal.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(signal.ResultColumns); err != nil {
		return err
	}
	record := make([]string, len(signal.ResultColumns))
	for _, r := range results {
		for i, v := range r.Values() {
			record[i] = cellText(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes a workbook with the result rows on the signals sheet and
// the run's key facts on the manifest sheet.
func WriteXLSX(path string, run *analysis.Run) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SignalsSheet); err != nil {
		return err
	}

	for i, h := range signal.ResultColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SignalsSheet, cell, h); err != nil {
			return err
		}
	}
	for r, res := range run.Results {
		rowIdx := r + 2
		for c, v := range res.Values() {
			if v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, rowIdx)
			if err := f.SetCellValue(SignalsSheet, cell, v); err != nil {
				return err
			}
		}
	}
	if err := f.SetPanes(SignalsSheet, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return err
	}

	if _, err := f.NewSheet(ManifestSheet); err != nil {
		return err
	}
	for i, kv := range manifestRows(run.Manifest) {
		for c, v := range kv {
			cell, _ := excelize.CoordinatesToCellName(c+1, i+1)
			if err := f.SetCellValue(ManifestSheet, cell, v); err != nil {
				return err
			}
		}
	}

	return f.SaveAs(path)
}

func manifestRows(m analysis.Manifest) [][2]interface{} {
	s := m.Spec
	return [][2]interface{}{
		{"run_id", m.RunID.String()},
		{"created_at", m.CreatedAt.String()},
		{"fingerprint", m.Fingerprint.String()},
		{"code_version", m.CodeVersion},
		{"go_version", m.GoVersion},
		{"source", string(s.Source)},
		{"since", s.Since},
		{"until", s.Until},
		{"suspect_only", s.SuspectOnly},
		{"min_a", s.MinA},
		{"drug_filter", s.DrugFilter},
		{"pt_filter", s.PTFilter},
		{"drug_normalization", s.DrugNormalization},
		{"fdr", s.FDR},
		{"signal_mode", string(s.SignalMode)},
		{"ranking_criterion", string(s.Ranking)},
		{"tie_breaker", s.TieBreaker},
		{"total_reports", m.Dataset.TotalReports},
		{"drugs", m.Dataset.Drugs},
		{"reactions", m.Dataset.Reactions},
		{"input_rows", m.Summary.InputRows},
		{"rejected_rows", m.Summary.RejectedRows},
		{"evaluated_rows", m.Summary.EvaluatedRows},
		{"signal_count", m.Summary.SignalCount},
		{"fdr_significant", m.Summary.FDRSignificant},
	}
}

// Exporter writes the CSV, XLSX and manifest files of a run into Dir.
type Exporter struct {
	Dir string
}

// ExportPaths lists the files written for one run.
type ExportPaths struct {
	CSV      string `json:"csv"`
	XLSX     string `json:"xlsx"`
	Manifest string `json:"manifest"`
}

// NewExporter creates an exporter writing into dir.
func NewExporter(dir string) *Exporter {
	return &Exporter{Dir: dir}
}

// Export writes every format. File names carry the run ID.
func (e *Exporter) Export(run *analysis.Run) (ExportPaths, error) {
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return ExportPaths{}, fmt.Errorf("failed to create export dir: %w", err)
	}
	id := run.Manifest.RunID.String()
	paths := ExportPaths{
		CSV:      filepath.Join(e.Dir, "faers_signals_"+id+".csv"),
		XLSX:     filepath.Join(e.Dir, "faers_signals_"+id+".xlsx"),
		Manifest: filepath.Join(e.Dir, "manifest_"+id+".json"),
	}

	f, err := os.Create(paths.CSV)
	if err != nil {
		return paths, fmt.Errorf("failed to create CSV export: %w", err)
	}
	if err := WriteCSV(f, run.Results); err != nil {
		f.Close()
		return paths, fmt.Errorf("failed to write CSV export: %w", err)
	}
	if err := f.Close(); err != nil {
		return paths, err
	}

	if err := WriteXLSX(paths.XLSX, run); err != nil {
		return paths, fmt.Errorf("failed to write XLSX export: %w", err)
	}

	manifest, err := run.Manifest.JSON()
	if err != nil {
		return paths, err
	}
	if err := os.WriteFile(paths.Manifest, manifest, 0o644); err != nil {
		return paths, fmt.Errorf("failed to write manifest: %w", err)
	}
	return paths, nil
}
