package analysis

import (
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"faersignal/domain/core"
	"faersignal/domain/signal"
)

// CodeVersion is stamped at build time with -ldflags "-X ...".
var CodeVersion = "dev"

// DatasetStats describes the report population behind a run.
type DatasetStats struct {
	TotalReports int64 `json:"total_reports" db:"total_reports"`
	Drugs        int64 `json:"drugs" db:"drugs"`
	Reactions    int64 `json:"reactions" db:"reactions"`
	// Normalization counts drug names per normalization source label.
	Normalization map[string]int `json:"normalization,omitempty"`
}

// Quantiles summarises one metric column over the defined values.
type Quantiles struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
	Max    float64 `json:"max"`
}

// Summary holds the batch-level counts of a run.
type Summary struct {
	InputRows     int `json:"input_rows"`
	FilteredRows  int `json:"filtered_rows"`
	RejectedRows  int `json:"rejected_rows"`
	BelowMinA     int `json:"below_min_a"`
	EvaluatedRows int `json:"evaluated_rows"`

	HaldaneApplied int            `json:"haldane_applied"`
	Undefined      map[string]int `json:"undefined"`
	FlagCounts     map[string]int `json:"flag_counts"`
	SignalCount    int            `json:"signal_count"`
	// FDRSignificant counts rows with q < 0.05; zero when FDR is off.
	FDRSignificant int `json:"fdr_significant"`

	Distributions map[string]Quantiles `json:"distributions,omitempty"`
}

// Manifest is the provenance record of a run.
type Manifest struct {
	RunID       core.RunID     `json:"run_id"`
	CreatedAt   core.Timestamp `json:"created_at"`
	Duration    time.Duration  `json:"duration_ns"`
	Spec        Spec           `json:"spec"`
	Dataset     DatasetStats   `json:"dataset"`
	Summary     Summary        `json:"summary"`
	Fingerprint core.Hash      `json:"fingerprint"`
	CodeVersion string         `json:"code_version"`
	GoVersion   string         `json:"go_version"`
}

// NewManifest starts a manifest for spec with a fresh run ID.
func NewManifest(spec Spec) Manifest {
	return Manifest{
		RunID:       core.NewRunID(),
		CreatedAt:   core.Now(),
		Spec:        spec,
		CodeVersion: CodeVersion,
		GoVersion:   runtime.Version(),
	}
}

// JSON renders the manifest indented, as written next to exports.
func (m Manifest) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Fingerprint hashes a spec together with the input rows it ran over. Two
// runs with equal fingerprints produce identical results.
func Fingerprint(spec Spec, rows []signal.PairCount) core.Hash {
	h := core.NewHasher()
	spec.writeTo(h)
	for _, r := range rows {
		fmt.Fprintf(h, "%s\x1f%s\x1f%d\x1f%d\x1f%d\x1f%d\x1f%d\n", r.Drug, r.PT, r.A, r.B, r.C, r.D, r.TotalReports)
	}
	return h.Sum()
}

// Run is a completed analysis: its manifest, the evaluated rows in ranked
// order and the rows rejected before evaluation.
type Run struct {
	Manifest Manifest          `json:"manifest"`
	Results  []signal.Result   `json:"results"`
	Rejected []signal.RowError `json:"rejected,omitempty"`
}

// Signals returns the rows classified as signals, keeping order.
func (r Run) Signals() []signal.Result {
	var out []signal.Result
	for _, res := range r.Results {
		if res.Signal {
			out = append(out, res)
		}
	}
	return out
}

// Top returns at most n rows from the head of Results. n <= 0 returns all.
func (r Run) Top(n int) []signal.Result {
	if n <= 0 || n >= len(r.Results) {
		return r.Results
	}
	return r.Results[:n]
}
