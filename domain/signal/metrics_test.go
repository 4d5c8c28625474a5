package signal

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cell(a, b, c, d, n int64) ContingencyCell {
	return ContingencyCell{A: a, B: b, C: c, D: d, N: n}
}

func TestCompute_ReferenceValues(t *testing.T) {
	m := Compute(cell(10, 5, 20, 100, 135))

	assert.False(t, m.HaldaneApplied)
	assert.InEpsilon(t, 4.0, m.PRR, 1e-9)
	assert.InEpsilon(t, 10.0, m.ROR, 1e-9)
	assert.InEpsilon(t, 3.085, m.RORCI.Lower, 0.01)
	assert.InEpsilon(t, 32.4, m.RORCI.Upper, 0.01)
	assert.InEpsilon(t, math.Log2(3), m.IC, 1e-9)
	assert.Less(t, m.ICCI.Lower, m.IC)
	assert.Greater(t, m.ICCI.Upper, m.IC)

	assert.Greater(t, m.ChiSquare, 10.0)
	assert.Less(t, m.ChiSquare, 25.0)
	assert.InDelta(t, 16.50, m.ChiSquare, 0.01)
	assert.Greater(t, m.ChiSquareP, 0.0)
	assert.Less(t, m.ChiSquareP, 0.001)
}

func TestCompute_ZeroCellCorrection(t *testing.T) {
	c := cell(0, 5, 20, 100, 125)
	m := Compute(c)

	require.True(t, m.HaldaneApplied)
	for name, v := range map[string]float64{"PRR": m.PRR, "ROR": m.ROR, "IC": m.IC} {
		assert.False(t, math.IsNaN(v), "%s should be defined", name)
		assert.False(t, math.IsInf(v, 0), "%s should be finite", name)
	}
	assert.Less(t, m.PRR, 1.0)
	assert.Less(t, m.ROR, 1.0)
	assert.Less(t, m.IC, 0.0)

	require.True(t, m.RORCI.Defined())
	assert.Less(t, m.RORCI.Lower, m.RORCI.Upper)

	// The source cell is untouched.
	assert.Equal(t, cell(0, 5, 20, 100, 125), c)
}

func TestCompute_AllZeroCells(t *testing.T) {
	m := Compute(cell(0, 0, 0, 0, 0))

	require.False(t, math.IsNaN(m.PRR))
	assert.InEpsilon(t, 1.0, m.PRR, 0.01)
	assert.InEpsilon(t, 1.0, m.ROR, 0.01)
	assert.InDelta(t, 0.0, m.IC, 1e-9)
}

func TestEffective_NoOpWithoutZeroCells(t *testing.T) {
	tables := []ContingencyCell{
		cell(10, 5, 20, 100, 135),
		cell(1, 1, 1, 1, 4),
		cell(50, 100, 10, 1000, 1160),
		cell(3, 7000, 12, 250000, 257015),
	}
	for _, c := range tables {
		direct := c.Raw()
		corrected := c.Effective()

		assert.False(t, corrected.Corrected)
		assert.Equal(t, PRR(direct), PRR(corrected))
		assert.Equal(t, ROR(direct), ROR(corrected))
		assert.Equal(t, IC(direct), IC(corrected))
		assert.Equal(t, ChiSquare(direct), ChiSquare(corrected))
	}
}

func TestEffective_AppliesOnce(t *testing.T) {
	e := cell(0, 2, 3, 4, 9).Effective()

	assert.True(t, e.Corrected)
	assert.Equal(t, EffectiveCell{A: 0.5, B: 2.5, C: 3.5, D: 4.5, N: 11, Corrected: true}, e)
}

func TestMetrics_UndefinedOnRawZeroCells(t *testing.T) {
	// The raw view skips correction, so degenerate tables surface as NaN.
	e := cell(0, 0, 0, 5, 5).Raw()

	assert.True(t, math.IsNaN(PRR(e)))
	assert.True(t, math.IsNaN(ROR(e)))
	assert.False(t, RORCI95(e).Defined())
	assert.True(t, math.IsNaN(IC(e)))
	assert.False(t, ICCI95(e).Defined())
	assert.True(t, math.IsNaN(ChiSquare(e)))
	assert.True(t, math.IsNaN(ChiSquarePValue(ChiSquare(e))))
}

func TestIC_UndefinedWithoutPopulation(t *testing.T) {
	e := EffectiveCell{A: 1, B: 1, C: 1, D: 1, N: 0}
	assert.True(t, math.IsNaN(IC(e)))
	assert.False(t, ICCI95(e).Defined())
}

func TestChiSquarePValue_Monotonic(t *testing.T) {
	weak := Compute(cell(5, 5, 5, 5, 20))
	strong := Compute(cell(20, 1, 1, 20, 42))

	for _, p := range []float64{weak.ChiSquareP, strong.ChiSquareP} {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
	assert.Greater(t, strong.ChiSquare, weak.ChiSquare)
	assert.Less(t, strong.ChiSquareP, weak.ChiSquareP)

	prev := 1.0
	for _, stat := range []float64{0.5, 1, 3.84, 10, 30} {
		p := ChiSquarePValue(stat)
		assert.Less(t, p, prev, "p-value must fall as the statistic grows (stat=%v)", stat)
		prev = p
	}
	assert.InDelta(t, 0.05, ChiSquarePValue(3.841459), 1e-6)
	assert.Equal(t, 1.0, ChiSquarePValue(0))
}

func TestCompute_Idempotent(t *testing.T) {
	c := cell(7, 93, 40, 9860, 10000)
	first := Compute(c)
	second := Compute(c)
	assert.Equal(t, first, second)
}

func TestMetricResult_JSONUndefinedAsNull(t *testing.T) {
	m := MetricResult{
		PRR:        math.NaN(),
		ChiSquare:  2,
		ChiSquareP: 0.15,
		ROR:        math.NaN(),
		RORCI:      undefinedInterval(),
		IC:         0.5,
		ICCI:       Interval{Lower: -0.1, Upper: 1.1},
	}

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Nil(t, raw["prr"])
	assert.Equal(t, 2.0, raw["chi2"])
	assert.Nil(t, raw["ror_ci95"].(map[string]interface{})["lower"])

	var back MetricResult
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, math.IsNaN(back.PRR))
	assert.False(t, back.RORCI.Defined())
	assert.Equal(t, 0.5, back.IC)
}
