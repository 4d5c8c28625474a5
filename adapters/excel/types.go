package excel

// RawRowData represents a row of raw sheet data as header -> cell text
type RawRowData map[string]string

// ExcelData represents a whole sheet or CSV file
type ExcelData struct {
	Headers []string     // Column headers, trimmed
	Rows    []RawRowData // Data rows
	Lines   []int        // One-based source line of each entry in Rows
}

// columnAliases maps accepted header spellings (lower-cased) to the
// PairCount field they fill.
var columnAliases = map[string]string{
	"drug":          "drug",
	"drug_name":     "drug",
	"pt":            "pt",
	"meddra_pt":     "pt",
	"reaction":      "pt",
	"a":             "a",
	"b":             "b",
	"c":             "c",
	"d":             "d",
	"n":             "total_reports",
	"total_reports": "total_reports",
}

var requiredColumns = []string{"drug", "pt", "a", "b", "c", "d", "total_reports"}
