package signal

import (
	"fmt"

	"faersignal/domain/core"
)

// HaldaneIncrement is added to every cell when any cell is zero.
const HaldaneIncrement = 0.5

// ContingencyCell is the 2x2 table for one drug/reaction pair.
//
//	            reaction   not reaction
//	drug           A            B
//	not drug       C            D
//
// N is the population denominator supplied by the aggregation and is not
// derived from A+B+C+D.
type ContingencyCell struct {
	A int64 `json:"a"`
	B int64 `json:"b"`
	C int64 `json:"c"`
	D int64 `json:"d"`
	N int64 `json:"n"`
}

// EffectiveCell is the float view of a ContingencyCell that metric formulas
// consume. It has no further correction method, so a table can only be
// corrected once.
type EffectiveCell struct {
	A, B, C, D, N float64
	Corrected     bool
}

// NewCell builds a validated cell.
func NewCell(a, b, c, d, n int64) (ContingencyCell, error) {
	cell := ContingencyCell{A: a, B: b, C: c, D: d, N: n}
	if err := cell.Validate(); err != nil {
		return ContingencyCell{}, err
	}
	return cell, nil
}

// Validate rejects negative counts and an N smaller than any margin.
func (c ContingencyCell) Validate() error {
	for _, v := range []struct {
		name  string
		value int64
	}{{"A", c.A}, {"B", c.B}, {"C", c.C}, {"D", c.D}, {"N", c.N}} {
		if v.value < 0 {
			return fmt.Errorf("%w: %s=%d", core.ErrNegativeCount, v.name, v.value)
		}
	}

	margin := max(c.A+c.B, c.C+c.D, c.A+c.C, c.B+c.D)
	if c.N < margin {
		return fmt.Errorf("%w: N=%d, largest margin=%d", core.ErrInconsistentTotal, c.N, margin)
	}
	return nil
}

// HasZeroCell reports whether any of A, B, C, D is zero.
func (c ContingencyCell) HasZeroCell() bool {
	return c.A == 0 || c.B == 0 || c.C == 0 || c.D == 0
}

// Raw returns the uncorrected float view.
func (c ContingencyCell) Raw() EffectiveCell {
	return EffectiveCell{
		A: float64(c.A),
		B: float64(c.B),
		C: float64(c.C),
		D: float64(c.D),
		N: float64(c.N),
	}
}

// Effective applies the Haldane-Anscombe correction when any cell is zero:
// +0.5 to each of A, B, C, D and +2 to N. The receiver is not modified.
func (c ContingencyCell) Effective() EffectiveCell {
	e := c.Raw()
	if !c.HasZeroCell() {
		return e
	}
	e.A += HaldaneIncrement
	e.B += HaldaneIncrement
	e.C += HaldaneIncrement
	e.D += HaldaneIncrement
	e.N += 4 * HaldaneIncrement
	e.Corrected = true
	return e
}
