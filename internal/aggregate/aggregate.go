// Package aggregate derives drug/reaction 2x2 counts from report records
// held in memory. It follows the same rules as the postgres aggregation:
//
//   - a report is in scope when it falls in the date window and lists at
//     least one drug with an in-scope role
//   - N is the number of in-scope reports
//   - A counts reports naming both the drug and the reaction term
//   - B = reports with the drug - A, C = reports with the term - A
//   - D = N - A - B - C
package aggregate

import (
	"sort"
	"strings"

	"faersignal/domain/analysis"
	"faersignal/domain/faers"
	"faersignal/domain/signal"
)

type pairKey struct{ drug, pt string }

type tally struct {
	total     int64
	drugs     map[string]int64
	reactions map[string]int64
	pairs     map[pairKey]int64
}

func count(reports []faers.Report, scope faers.Scope) tally {
	t := tally{
		drugs:     make(map[string]int64),
		reactions: make(map[string]int64),
		pairs:     make(map[pairKey]int64),
	}
	seen := make(map[string]struct{}, len(reports))

	for _, r := range reports {
		if _, dup := seen[r.SafetyReportID]; dup {
			continue
		}
		if !scope.InWindow(r.ReceiveDate) {
			continue
		}

		drugs := make(map[string]struct{})
		inScope := false
		for _, d := range r.Drugs {
			if !scope.IncludesRole(d.Role) {
				continue
			}
			inScope = true
			if key := d.DrugKey(scope.UseNormalized); key != "" {
				drugs[key] = struct{}{}
			}
		}
		if !inScope {
			continue
		}
		seen[r.SafetyReportID] = struct{}{}
		t.total++

		pts := make(map[string]struct{})
		for _, pt := range r.Reactions {
			if pt = strings.TrimSpace(pt); pt != "" {
				pts[pt] = struct{}{}
			}
		}

		for d := range drugs {
			t.drugs[d]++
		}
		for pt := range pts {
			t.reactions[pt]++
		}
		for d := range drugs {
			for pt := range pts {
				t.pairs[pairKey{d, pt}]++
			}
		}
	}
	return t
}

// PairCounts aggregates reports into pair rows sorted by drug, then pt.
func PairCounts(reports []faers.Report, scope faers.Scope) []signal.PairCount {
	t := count(reports, scope)

	rows := make([]signal.PairCount, 0, len(t.pairs))
	for k, a := range t.pairs {
		if !scope.MatchesPair(k.drug, k.pt) {
			continue
		}
		nDrug, nPT := t.drugs[k.drug], t.reactions[k.pt]
		rows = append(rows, signal.PairCount{
			Drug:         k.drug,
			PT:           k.pt,
			A:            a,
			B:            nDrug - a,
			C:            nPT - a,
			D:            t.total - nDrug - nPT + a,
			TotalReports: t.total,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Drug != rows[j].Drug {
			return rows[i].Drug < rows[j].Drug
		}
		return rows[i].PT < rows[j].PT
	})
	return rows
}

// Stats describes the in-scope report population.
func Stats(reports []faers.Report, scope faers.Scope) analysis.DatasetStats {
	t := count(reports, scope)
	return analysis.DatasetStats{
		TotalReports: t.total,
		Drugs:        int64(len(t.drugs)),
		Reactions:    int64(len(t.reactions)),
	}
}
