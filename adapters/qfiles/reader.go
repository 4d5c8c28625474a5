// Package qfiles reads the FAERS quarterly ASCII extracts: the DEMO, DRUG
// and REAC tables of one or more quarters, from a directory or a zip.
package qfiles

import (
	"archive/zip"
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"faersignal/domain/faers"
	"faersignal/internal"
	"faersignal/internal/errors"
	"faersignal/ports"
)

const DefaultBatchSize = 500

type table string

const (
	tableDemo table = "DEMO"
	tableDrug table = "DRUG"
	tableReac table = "REAC"
)

// Reporter occupation codes, mapped to the openFDA qualifier scale.
var qualifiers = map[string]int{
	"MD": 1,
	"PH": 2,
	"OT": 3,
	"HP": 3,
	"LW": 4,
	"CN": 5,
}

var roles = map[string]faers.Role{
	"PS": faers.RolePrimarySuspect,
	"SS": faers.RoleSecondarySuspect,
	"C":  faers.RoleConcomitant,
	"I":  faers.RoleInteracting,
}

// Reader joins the quarterly tables on PRIMARYID and streams the reports
// in DEMO order.
type Reader struct {
	path      string
	batchSize int
	logger    *internal.Logger
}

var _ ports.ReportFeed = (*Reader)(nil)

func NewReader(path string, batchSize int, logger *internal.Logger) *Reader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Reader{path: path, batchSize: batchSize, logger: logger}
}

// sourceFile is one table file inside the input.
type sourceFile struct {
	name  string
	table table
	open  func() (io.ReadCloser, error)
}

// stats counts what a read kept and dropped.
type stats struct {
	reports, drugs, reactions int
	skipped                   int
	orphans                   int
}

// Stream implements ports.ReportFeed.
func (r *Reader) Stream(ctx context.Context, q faers.IngestQuery, sink func([]faers.Report) error) error {
	files, closeInput, err := r.list()
	if err != nil {
		return err
	}
	defer closeInput()

	byTable := map[table][]sourceFile{}
	for _, f := range files {
		byTable[f.table] = append(byTable[f.table], f)
	}
	for _, t := range []table{tableDemo, tableDrug, tableReac} {
		if len(byTable[t]) == 0 {
			return errors.InvalidInput(fmt.Sprintf("%s has no %s*.txt table", filepath.Base(r.path), t))
		}
	}

	var st stats
	reports := map[string]*faers.Report{}
	var order []string

	// The window is applied while reading DEMO; the drug filter needs the
	// DRUG rows and waits until the join is done.
	window := q
	window.Drug = ""

	for _, f := range byTable[tableDemo] {
		err := readTable(ctx, f, func(row record) {
			id := row.get("PRIMARYID")
			received, ok := faers.ParseCompactDate(row.get("FDA_DT", "INIT_FDA_DT", "REPT_DT"))
			if id == "" || !ok {
				st.skipped++
				return
			}
			if _, dup := reports[id]; dup {
				return
			}
			rep := faers.Report{
				SafetyReportID: id,
				ReceiveDate:    received,
				Qualifier:      qualifiers[strings.ToUpper(row.get("OCCP_COD"))],
			}
			if !window.Accepts(rep) {
				return
			}
			reports[id] = &rep
			order = append(order, id)
		})
		if err != nil {
			return err
		}
	}

	for _, f := range byTable[tableDrug] {
		err := readTable(ctx, f, func(row record) {
			rep, ok := reports[row.get("PRIMARYID")]
			if !ok {
				st.orphans++
				return
			}
			role, ok := roles[strings.ToUpper(row.get("ROLE_COD"))]
			ingredient := row.get("PROD_AI")
			name := row.get("DRUGNAME")
			if name == "" {
				name = ingredient
			}
			if !ok || name == "" {
				st.skipped++
				return
			}
			entry := faers.DrugEntry{Name: name, Role: role}
			if ingredient != "" {
				entry.OpenFDA = &faers.OpenFDAFields{SubstanceName: []string{ingredient}}
			}
			rep.Drugs = append(rep.Drugs, entry)
			st.drugs++
		})
		if err != nil {
			return err
		}
	}

	for _, f := range byTable[tableReac] {
		err := readTable(ctx, f, func(row record) {
			rep, ok := reports[row.get("PRIMARYID")]
			if !ok {
				st.orphans++
				return
			}
			pt := row.get("PT")
			if pt == "" {
				st.skipped++
				return
			}
			rep.Reactions = append(rep.Reactions, pt)
			st.reactions++
		})
		if err != nil {
			return err
		}
	}

	st.reports = len(order)
	r.logger.Info("[qfiles] read %d reports, %d drugs, %d reactions from %d files (%d rows skipped, %d without a DEMO row)",
		st.reports, st.drugs, st.reactions, len(files), st.skipped, st.orphans)

	batch := make([]faers.Report, 0, r.batchSize)
	emitted := 0
	for _, id := range order {
		if q.Limit > 0 && emitted >= q.Limit {
			break
		}
		rep := *reports[id]
		if !q.Accepts(rep) {
			continue
		}
		batch = append(batch, rep)
		emitted++
		if len(batch) == r.batchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := sink(batch); err != nil {
				return err
			}
			batch = make([]faers.Report, 0, r.batchSize)
		}
	}
	if len(batch) > 0 {
		return sink(batch)
	}
	return nil
}

// list finds the table files in a directory or zip archive.
func (r *Reader) list() ([]sourceFile, func(), error) {
	info, err := os.Stat(r.path)
	if err != nil {
		return nil, nil, errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("failed to open quarterly files: %w", err))
	}

	var files []sourceFile
	closeInput := func() {}

	if info.IsDir() {
		entries, err := os.ReadDir(r.path)
		if err != nil {
			return nil, nil, errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("failed to list %s: %w", r.path, err))
		}
		for _, e := range entries {
			t, ok := tableOf(e.Name())
			if e.IsDir() || !ok {
				continue
			}
			full := filepath.Join(r.path, e.Name())
			files = append(files, sourceFile{
				name:  e.Name(),
				table: t,
				open:  func() (io.ReadCloser, error) { return os.Open(full) },
			})
		}
	} else {
		archive, err := zip.OpenReader(r.path)
		if err != nil {
			return nil, nil, errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("failed to open %s: %w", r.path, err))
		}
		closeInput = func() { archive.Close() }
		for _, entry := range archive.File {
			t, ok := tableOf(path.Base(entry.Name))
			if entry.FileInfo().IsDir() || !ok {
				continue
			}
			files = append(files, sourceFile{name: entry.Name, table: t, open: entry.Open})
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, closeInput, nil
}

// tableOf recognises names like DEMO24Q1.txt or drug2024q1.TXT.
func tableOf(name string) (table, bool) {
	upper := strings.ToUpper(name)
	if !strings.HasSuffix(upper, ".TXT") {
		return "", false
	}
	for _, t := range []table{tableDemo, tableDrug, tableReac} {
		if strings.HasPrefix(upper, string(t)) {
			return t, true
		}
	}
	return "", false
}

// record is one data row addressed by upper-cased header name.
type record struct {
	fields  []string
	columns map[string]int
}

// get returns the first non-empty value among names.
func (r record) get(names ...string) string {
	for _, name := range names {
		if i, ok := r.columns[name]; ok && i < len(r.fields) {
			if v := strings.TrimSpace(r.fields[i]); v != "" {
				return v
			}
		}
	}
	return ""
}

// readTable parses one delimited table. Current extracts separate fields
// with '|'; pre-2012 ones use '$', detected from the header line.
func readTable(ctx context.Context, f sourceFile, fn func(record)) error {
	rc, err := f.open()
	if err != nil {
		return errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("failed to open %s: %w", f.name, err))
	}
	defer rc.Close()

	br := bufio.NewReader(rc)
	headerLine, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("failed to read %s: %w", f.name, err))
	}
	headerLine = strings.TrimPrefix(headerLine, "\ufeff")
	if strings.TrimSpace(headerLine) == "" {
		return errors.InvalidInput(fmt.Sprintf("%s is empty", f.name))
	}

	reader := csv.NewReader(io.MultiReader(strings.NewReader(headerLine), br))
	reader.Comma = '|'
	if !strings.Contains(headerLine, "|") && strings.Contains(headerLine, "$") {
		reader.Comma = '$'
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("failed to read %s header: %w", f.name, err))
	}
	columns := make(map[string]int, len(header))
	for i, h := range header {
		columns[strings.ToUpper(strings.TrimSpace(h))] = i
	}
	if _, ok := columns["PRIMARYID"]; !ok {
		return errors.InvalidInput(fmt.Sprintf("%s has no PRIMARYID column", f.name))
	}

	for n := 0; ; n++ {
		fields, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("failed to parse %s: %w", f.name, err))
		}
		if n%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		fn(record{fields: fields, columns: columns})
	}
}
