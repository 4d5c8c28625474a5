package signal

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"faersignal/domain/core"
)

// PairCount is one row of the aggregation: a drug, a reaction term and the
// counts of its 2x2 table.
type PairCount struct {
	Drug         string `json:"drug" db:"drug"`
	PT           string `json:"pt" db:"pt"`
	A            int64  `json:"a" db:"a"`
	B            int64  `json:"b" db:"b"`
	C            int64  `json:"c" db:"c"`
	D            int64  `json:"d" db:"d"`
	TotalReports int64  `json:"total_reports" db:"total_reports"`
}

// Cell returns the contingency table of the row.
func (p PairCount) Cell() ContingencyCell {
	return ContingencyCell{A: p.A, B: p.B, C: p.C, D: p.D, N: p.TotalReports}
}

// Validate checks the row before any metric is computed.
func (p PairCount) Validate() error {
	if strings.TrimSpace(p.Drug) == "" || strings.TrimSpace(p.PT) == "" {
		return core.ErrEmptyPair
	}
	return p.Cell().Validate()
}

// Result is the evaluated row handed to exporters and the API.
type Result struct {
	PairCount
	Metrics MetricResult `json:"metrics"`
	Flags   Flags        `json:"flags"`
	Signal  bool         `json:"signal"`
	// QValue is NaN until a batch-level FDR correction has run.
	QValue float64 `json:"q_value"`
}

// Evaluate computes metrics, flags and the classification for one row.
// The row must already be valid.
func Evaluate(p PairCount, minA int, mode Mode) (Result, error) {
	metrics := Compute(p.Cell())
	flags := EvaluateFlags(metrics, p.A, minA)
	isSignal, err := Classify(flags, mode)
	if err != nil {
		return Result{}, err
	}
	return Result{
		PairCount: p,
		Metrics:   metrics,
		Flags:     flags,
		Signal:    isSignal,
		QValue:    math.NaN(),
	}, nil
}

type resultAlias Result

// MarshalJSON writes an undefined q-value as null.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		resultAlias
		QValue *float64 `json:"q_value"`
	}{resultAlias: resultAlias(r), QValue: nullable(r.QValue)})
}

// UnmarshalJSON reads a null q-value back as NaN.
func (r *Result) UnmarshalJSON(data []byte) error {
	var v struct {
		resultAlias
		QValue *float64 `json:"q_value"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Result(v.resultAlias)
	r.QValue = fromNullable(v.QValue)
	return nil
}

// RowError records an input row that was rejected before evaluation.
type RowError struct {
	Index int    `json:"index"`
	Drug  string `json:"drug"`
	PT    string `json:"pt"`
	Err   error  `json:"-"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d (%s / %s): %v", e.Index, e.Drug, e.PT, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// MarshalJSON includes the error text.
func (e RowError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Index int    `json:"index"`
		Drug  string `json:"drug"`
		PT    string `json:"pt"`
		Error string `json:"error"`
	}{e.Index, e.Drug, e.PT, msg})
}

// ResultColumns is the column order used by tabular exports.
var ResultColumns = []string{
	"drug", "pt", "A", "B", "C", "D", "total_reports",
	"PRR", "Chi2_1df", "Chi2_p", "ROR", "ROR_CI_L", "ROR_CI_U",
	"IC", "IC_CI_L", "IC_CI_U",
	"flag_evans", "flag_ror025", "flag_ic025", "signal", "q_value",
}

// Values returns the row in ResultColumns order. Undefined numbers are nil.
func (r Result) Values() []interface{} {
	num := func(v float64) interface{} {
		if math.IsNaN(v) {
			return nil
		}
		return v
	}
	m := r.Metrics
	return []interface{}{
		r.Drug, r.PT, r.A, r.B, r.C, r.D, r.TotalReports,
		num(m.PRR), num(m.ChiSquare), num(m.ChiSquareP), num(m.ROR), num(m.RORCI.Lower), num(m.RORCI.Upper),
		num(m.IC), num(m.ICCI.Lower), num(m.ICCI.Upper),
		r.Flags.Evans, r.Flags.ROR025, r.Flags.IC025, r.Signal, num(r.QValue),
	}
}
