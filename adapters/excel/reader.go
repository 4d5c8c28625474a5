package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"faersignal/domain/faers"
	"faersignal/domain/signal"
	"faersignal/internal"
	"faersignal/internal/errors"
	"faersignal/ports"
)

// DataReader handles reading Excel and CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	logger   *internal.Logger
}

// NewDataReader creates a reader for path; the extension picks the format.
func NewDataReader(filePath string, logger *internal.Logger) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &DataReader{filePath: filePath, fileType: fileType, logger: logger}
}

// ReadData reads the file into header-keyed rows.
func (r *DataReader) ReadData() (*ExcelData, error) {
	r.logger.Debug("[DataReader] reading %s file: %s", r.fileType, r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, errors.InvalidInput(fmt.Sprintf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath))
	}

	switch r.fileType {
	case "csv":
		return r.readCSVData()
	case "xlsx":
		return r.readExcelData()
	default:
		return nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
}

// readExcelData reads the first sheet of the workbook.
func (r *DataReader) readExcelData() (*ExcelData, error) {
	start := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.InvalidInput("workbook has no sheets: " + r.filePath)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	r.logger.Debug("[DataReader] sheet %s read in %.2fms (%d rows)",
		sheets[0], float64(time.Since(start).Nanoseconds())/1e6, len(rows))

	if len(rows) < 1 {
		return nil, errors.InvalidInput("Excel file must have a header row")
	}
	return r.processRows(rows, nil)
}

// readCSVData reads CSV data into structured format
func (r *DataReader) readCSVData() (*ExcelData, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	// encoding/csv drops empty lines, so each record's line is taken from
	// the reader rather than its index.
	var rows [][]string
	var lines []int
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV file: %w", err)
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, record)
		lines = append(lines, line)
	}
	if len(rows) < 1 {
		return nil, errors.InvalidInput("CSV file must have a header row")
	}
	return r.processRows(rows, lines)
}

// processRows converts raw string rows into ExcelData format. Blank lines
// are skipped. lines holds the source line of each row; nil means rows are
// consecutive from line 1, as in a sheet.
func (r *DataReader) processRows(rows [][]string, lines []int) (*ExcelData, error) {
	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(header, "\ufeff"))
	}

	dataRows := make([]RawRowData, 0, len(rows)-1)
	dataLines := make([]int, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		rowData := make(RawRowData, len(headers))
		blank := true
		for j, cell := range rows[i] {
			if j < len(headers) {
				v := strings.TrimSpace(cell)
				rowData[headers[j]] = v
				if v != "" {
					blank = false
				}
			}
		}
		if !blank {
			line := i + 1
			if lines != nil {
				line = lines[i]
			}
			dataRows = append(dataRows, rowData)
			dataLines = append(dataLines, line)
		}
	}

	r.logger.Debug("[DataReader] %s file processed (%d columns, %d rows)",
		strings.ToUpper(r.fileType), len(headers), len(dataRows))

	return &ExcelData{Headers: headers, Rows: dataRows, Lines: dataLines}, nil
}

// PairCountReader serves pair counts from a pre-aggregated sheet with
// drug, pt, A, B, C, D and total_reports columns.
type PairCountReader struct {
	reader *DataReader
}

var _ ports.PairCountSource = (*PairCountReader)(nil)

// NewPairCountReader creates a pair count source over an .xlsx or .csv file.
func NewPairCountReader(path string, logger *internal.Logger) *PairCountReader {
	return &PairCountReader{reader: NewDataReader(path, logger)}
}

// PairCounts implements ports.PairCountSource. Only the scope's prefix
// filters apply; role and date scoping happened when the file was built.
func (p *PairCountReader) PairCounts(ctx context.Context, scope faers.Scope) ([]signal.PairCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := p.reader.ReadData()
	if err != nil {
		return nil, err
	}
	return ParsePairCounts(data, scope)
}

// String describes the source for logs.
func (p *PairCountReader) String() string {
	return fmt.Sprintf("file(%s)", p.reader.filePath)
}

// ParsePairCounts maps sheet rows onto pair counts. Header matching is
// case-insensitive; "N" is accepted for total_reports.
func ParsePairCounts(data *ExcelData, scope faers.Scope) ([]signal.PairCount, error) {
	columns := make(map[string]string, len(data.Headers))
	for _, h := range data.Headers {
		if field, ok := columnAliases[strings.ToLower(h)]; ok {
			if _, dup := columns[field]; !dup {
				columns[field] = h
			}
		}
	}
	var missing []string
	for _, field := range requiredColumns {
		if _, ok := columns[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, errors.InvalidInput("missing columns: " + strings.Join(missing, ", "))
	}

	out := make([]signal.PairCount, 0, len(data.Rows))
	for i, row := range data.Rows {
		line := i + 2
		if i < len(data.Lines) {
			line = data.Lines[i]
		}
		pc := signal.PairCount{
			Drug: row[columns["drug"]],
			PT:   row[columns["pt"]],
		}
		if !scope.MatchesPair(pc.Drug, pc.PT) {
			continue
		}
		counts := []*int64{&pc.A, &pc.B, &pc.C, &pc.D, &pc.TotalReports}
		for k, field := range []string{"a", "b", "c", "d", "total_reports"} {
			v, err := parseCount(row[columns[field]])
			if err != nil {
				return nil, errors.InvalidInput(fmt.Sprintf("line %d column %s: %v", line, columns[field], err))
			}
			*counts[k] = v
		}
		out = append(out, pc)
	}
	return out, nil
}

// parseCount accepts integers, including whole floats written by
// spreadsheets ("12.0").
func parseCount(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty count")
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, fmt.Errorf("not an integer count: %q", s)
	}
	return int64(f), nil
}
