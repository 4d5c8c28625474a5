package signal

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"faersignal/domain/core"
)

// Ranking orders evaluated rows for top-N views.
type Ranking string

const (
	// RankIC025 orders by the IC lower bound, highest first.
	RankIC025 Ranking = "ic025"
	// RankADesc orders by case count A, highest first.
	RankADesc Ranking = "a_desc"
	// RankBalanceScore orders by flag count, then the IC lower bound.
	RankBalanceScore Ranking = "balance_score"

	DefaultRanking = RankIC025
)

// TieBreaker documents the fixed order applied after the ranking key.
const TieBreaker = "a_desc,drug,pt"

// ParseRanking accepts a ranking name. Empty selects DefaultRanking.
func ParseRanking(s string) (Ranking, error) {
	switch r := Ranking(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return DefaultRanking, nil
	case RankIC025, RankADesc, RankBalanceScore:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q (want ic025, a_desc or balance_score)", core.ErrUnknownRanking, s)
	}
}

// compareDesc orders a before b when a is larger. NaN sorts last.
// It returns -1, 0 or 1.
func compareDesc(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}

// SortResults orders results in place by ranking, then A desc, drug, pt.
func SortResults(results []Result, ranking Ranking) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]

		var c int
		switch ranking {
		case RankADesc:
			c = compareDesc(float64(a.A), float64(b.A))
		case RankBalanceScore:
			c = compareDesc(float64(a.Flags.Count()), float64(b.Flags.Count()))
			if c == 0 {
				c = compareDesc(a.Metrics.ICCI.Lower, b.Metrics.ICCI.Lower)
			}
		default:
			c = compareDesc(a.Metrics.ICCI.Lower, b.Metrics.ICCI.Lower)
		}
		if c != 0 {
			return c < 0
		}

		if a.A != b.A {
			return a.A > b.A
		}
		if a.Drug != b.Drug {
			return a.Drug < b.Drug
		}
		return a.PT < b.PT
	})
}
