// Package signal computes disproportionality statistics for drug/reaction
// pairs and classifies which pairs are signals.
//
// Every metric takes an EffectiveCell. Undefined results (a non-positive
// divisor or log argument) are NaN and never an error.
package signal

import (
	"encoding/json"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Z95 is the two-sided 95% standard normal critical value.
const Z95 = 1.96

var chiSquared1 = distuv.ChiSquared{K: 1}

// Interval is a two-sided confidence interval.
type Interval struct {
	Lower float64
	Upper float64
}

// Defined reports whether both bounds are numbers.
func (i Interval) Defined() bool {
	return !math.IsNaN(i.Lower) && !math.IsNaN(i.Upper)
}

func undefinedInterval() Interval {
	return Interval{Lower: math.NaN(), Upper: math.NaN()}
}

// Defined reports whether v is a number. Infinite values count as defined.
func Defined(v float64) bool {
	return !math.IsNaN(v)
}

// MetricResult holds every disproportionality measure for one cell.
type MetricResult struct {
	PRR            float64
	ChiSquare      float64
	ChiSquareP     float64
	ROR            float64
	RORCI          Interval
	IC             float64
	ICCI           Interval
	HaldaneApplied bool
}

// Compute corrects the cell once and evaluates all metrics on it.
func Compute(c ContingencyCell) MetricResult {
	e := c.Effective()
	chi := ChiSquare(e)
	return MetricResult{
		PRR:            PRR(e),
		ChiSquare:      chi,
		ChiSquareP:     ChiSquarePValue(chi),
		ROR:            ROR(e),
		RORCI:          RORCI95(e),
		IC:             IC(e),
		ICCI:           ICCI95(e),
		HaldaneApplied: e.Corrected,
	}
}

// PRR = [A/(A+B)] / [C/(C+D)].
func PRR(e EffectiveCell) float64 {
	exposed := e.A + e.B
	unexposed := e.C + e.D
	if exposed <= 0 || unexposed <= 0 || e.C <= 0 {
		return math.NaN()
	}
	return (e.A / exposed) / (e.C / unexposed)
}

// ChiSquare is the Yates-corrected 1 df statistic
// N(|AD-BC| - N/2)^2 / [(A+B)(C+D)(A+C)(B+D)].
func ChiSquare(e EffectiveCell) float64 {
	denom := (e.A + e.B) * (e.C + e.D) * (e.A + e.C) * (e.B + e.D)
	if denom <= 0 {
		return math.NaN()
	}
	diff := math.Abs(e.A*e.D-e.B*e.C) - e.N/2
	return e.N * diff * diff / denom
}

// ChiSquarePValue is the upper tail of chi-square(1) at stat.
func ChiSquarePValue(stat float64) float64 {
	if math.IsNaN(stat) {
		return math.NaN()
	}
	if stat <= 0 {
		return 1
	}
	return chiSquared1.Survival(stat)
}

// ROR = (A/B) / (C/D).
func ROR(e EffectiveCell) float64 {
	if e.B <= 0 || e.C <= 0 || e.D <= 0 {
		return math.NaN()
	}
	return (e.A / e.B) / (e.C / e.D)
}

// RORCI95 is the Wald interval exp(ln ROR ± 1.96·sqrt(1/A+1/B+1/C+1/D)).
func RORCI95(e EffectiveCell) Interval {
	if e.A <= 0 || e.B <= 0 || e.C <= 0 || e.D <= 0 {
		return undefinedInterval()
	}
	lnROR := math.Log((e.A * e.D) / (e.B * e.C))
	se := math.Sqrt(1/e.A + 1/e.B + 1/e.C + 1/e.D)
	return Interval{
		Lower: math.Exp(lnROR - Z95*se),
		Upper: math.Exp(lnROR + Z95*se),
	}
}

// expectedA is the count of A expected under independence, (A+B)(A+C)/N.
func expectedA(e EffectiveCell) float64 {
	if e.N <= 0 {
		return math.NaN()
	}
	return (e.A + e.B) * (e.A + e.C) / e.N
}

// IC = log2(A / E_A).
func IC(e EffectiveCell) float64 {
	ea := expectedA(e)
	if !(ea > 0) || e.A <= 0 {
		return math.NaN()
	}
	return math.Log2(e.A / ea)
}

// ICCI95 uses the delta-method variance of ln(A/E_A),
// max(0, 1/A - 1/(A+B) - 1/(A+C) + 1/N), rescaled to log2.
func ICCI95(e EffectiveCell) Interval {
	ic := IC(e)
	if math.IsNaN(ic) {
		return undefinedInterval()
	}
	variance := math.Max(0, 1/e.A-1/(e.A+e.B)-1/(e.A+e.C)+1/e.N)
	se := math.Sqrt(variance) / math.Ln2
	return Interval{Lower: ic - Z95*se, Upper: ic + Z95*se}
}

// nullable maps NaN to nil so JSON can carry undefined values.
func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

type intervalJSON struct {
	Lower *float64 `json:"lower"`
	Upper *float64 `json:"upper"`
}

// MarshalJSON writes undefined bounds as null.
func (i Interval) MarshalJSON() ([]byte, error) {
	return json.Marshal(intervalJSON{Lower: nullable(i.Lower), Upper: nullable(i.Upper)})
}

// UnmarshalJSON reads null bounds back as NaN.
func (i *Interval) UnmarshalJSON(data []byte) error {
	var v intervalJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	i.Lower, i.Upper = fromNullable(v.Lower), fromNullable(v.Upper)
	return nil
}

func fromNullable(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

type metricJSON struct {
	PRR            *float64 `json:"prr"`
	ChiSquare      *float64 `json:"chi2"`
	ChiSquareP     *float64 `json:"chi2_p"`
	ROR            *float64 `json:"ror"`
	RORCI          Interval `json:"ror_ci95"`
	IC             *float64 `json:"ic"`
	ICCI           Interval `json:"ic_ci95"`
	HaldaneApplied bool     `json:"haldane_applied"`
}

// MarshalJSON writes undefined metrics as null.
func (m MetricResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(metricJSON{
		PRR:            nullable(m.PRR),
		ChiSquare:      nullable(m.ChiSquare),
		ChiSquareP:     nullable(m.ChiSquareP),
		ROR:            nullable(m.ROR),
		RORCI:          m.RORCI,
		IC:             nullable(m.IC),
		ICCI:           m.ICCI,
		HaldaneApplied: m.HaldaneApplied,
	})
}

// UnmarshalJSON reads null metrics back as NaN.
func (m *MetricResult) UnmarshalJSON(data []byte) error {
	var v metricJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = MetricResult{
		PRR:            fromNullable(v.PRR),
		ChiSquare:      fromNullable(v.ChiSquare),
		ChiSquareP:     fromNullable(v.ChiSquareP),
		ROR:            fromNullable(v.ROR),
		RORCI:          v.RORCI,
		IC:             fromNullable(v.IC),
		ICCI:           v.ICCI,
		HaldaneApplied: v.HaldaneApplied,
	}
	return nil
}
