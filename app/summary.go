package app

import (
	"math"

	"github.com/montanaflynn/stats"

	"faersignal/domain/analysis"
	"faersignal/domain/signal"
)

// FDRLevel is the q-value threshold counted as significant in summaries.
const FDRLevel = 0.05

// summarize fills the per-batch counts and metric distributions.
func summarize(s *analysis.Summary, results []signal.Result) {
	s.EvaluatedRows = len(results)
	s.Undefined = map[string]int{}
	s.FlagCounts = map[string]int{"evans": 0, "ror025": 0, "ic025": 0}

	columns := map[string][]float64{}
	collect := func(name string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			s.Undefined[name]++
			return
		}
		columns[name] = append(columns[name], v)
	}

	for _, r := range results {
		m := r.Metrics
		if m.HaldaneApplied {
			s.HaldaneApplied++
		}
		collect("prr", m.PRR)
		collect("chi2", m.ChiSquare)
		collect("ror", m.ROR)
		collect("ic", m.IC)
		if !m.RORCI.Defined() {
			s.Undefined["ror_ci95"]++
		}
		if !m.ICCI.Defined() {
			s.Undefined["ic_ci95"]++
		}

		if r.Flags.Evans {
			s.FlagCounts["evans"]++
		}
		if r.Flags.ROR025 {
			s.FlagCounts["ror025"]++
		}
		if r.Flags.IC025 {
			s.FlagCounts["ic025"]++
		}
		if r.Signal {
			s.SignalCount++
		}
		if !math.IsNaN(r.QValue) && r.QValue < FDRLevel {
			s.FDRSignificant++
		}
	}

	s.Distributions = make(map[string]analysis.Quantiles, len(columns))
	for name, data := range columns {
		q, err := describe(data)
		if err != nil {
			continue
		}
		s.Distributions[name] = q
	}
}

// describe summarises data with min, median, p90 and max.
func describe(data []float64) (analysis.Quantiles, error) {
	q := analysis.Quantiles{Count: len(data)}

	min, err := stats.Min(data)
	if err != nil {
		return q, err
	}
	max, err := stats.Max(data)
	if err != nil {
		return q, err
	}
	median, err := stats.Median(data)
	if err != nil {
		return q, err
	}
	p90, err := stats.Percentile(data, 90)
	if err != nil {
		return q, err
	}

	q.Min, q.Median, q.P90, q.Max = min, median, p90, max
	return q, nil
}
