package aggregate

import (
	"context"
	"sync"

	"faersignal/domain/analysis"
	"faersignal/domain/faers"
	"faersignal/domain/signal"
	"faersignal/ports"
)

// Store keeps report records in memory and serves pair counts from them.
type Store struct {
	mu            sync.RWMutex
	reports       []faers.Report
	normalization map[string]int
}

var (
	_ ports.PairCountSource      = (*Store)(nil)
	_ ports.DatasetStatsProvider = (*Store)(nil)
	_ ports.ReportStore          = (*Store)(nil)
)

// NewStore returns a store holding reports.
func NewStore(reports ...faers.Report) *Store {
	return &Store{reports: cloneReports(reports)}
}

// InsertReports appends copies of reports. Aggregation counts the first
// record of a duplicated report ID.
func (s *Store) InsertReports(ctx context.Context, reports []faers.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, cloneReports(reports)...)
	return nil
}

// Reports returns a copy of the stored records.
func (s *Store) Reports() []faers.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneReports(s.reports)
}

func cloneReports(in []faers.Report) []faers.Report {
	out := make([]faers.Report, len(in))
	for i, r := range in {
		r.Drugs = append([]faers.DrugEntry(nil), r.Drugs...)
		r.Reactions = append([]string(nil), r.Reactions...)
		out[i] = r
	}
	return out
}

// PairCounts implements ports.PairCountSource.
func (s *Store) PairCounts(ctx context.Context, scope faers.Scope) ([]signal.PairCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return PairCounts(s.reports, scope), nil
}

// DatasetStats implements ports.DatasetStatsProvider.
func (s *Store) DatasetStats(ctx context.Context, scope faers.Scope) (analysis.DatasetStats, error) {
	if err := ctx.Err(); err != nil {
		return analysis.DatasetStats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := Stats(s.reports, scope)
	if len(s.normalization) > 0 {
		stats.Normalization = make(map[string]int, len(s.normalization))
		for k, v := range s.normalization {
			stats.Normalization[k] = v
		}
	}
	return stats, nil
}

// Normalize resolves drug names through n and stores the result on each
// drug entry. Entries carrying openFDA harmonized names are resolved from
// their own fields; the rest share one lookup per distinct raw name. It
// returns the count of distinct names per source.
func (s *Store) Normalize(ctx context.Context, n ports.DrugNormalizer) (map[string]int, error) {
	type position struct{ report, drug int }

	s.mu.RLock()
	raw := make(map[string]struct{})
	own := make(map[position]faers.DrugEntry)
	for i, r := range s.reports {
		for j, d := range r.Drugs {
			if d.OpenFDA != nil {
				if _, ok := d.OpenFDA.Harmonized(); ok {
					own[position{i, j}] = d
					continue
				}
			}
			raw[faers.CacheKey(d.Name)] = struct{}{}
		}
	}
	s.mu.RUnlock()

	stats := make(map[string]int)
	counted := make(map[string]bool)
	count := func(name string, norm faers.Normalization) {
		key := string(norm.Source) + "\x00" + faers.CacheKey(name)
		if !counted[key] {
			counted[key] = true
			stats[string(norm.Source)]++
		}
	}

	resolved := make(map[string]faers.Normalization, len(raw))
	for name := range raw {
		if name == "" {
			continue
		}
		norm, err := n.Normalize(ctx, name, nil)
		if err != nil {
			return nil, err
		}
		resolved[name] = norm
		count(name, norm)
	}
	ownResolved := make(map[position]faers.Normalization, len(own))
	for pos, d := range own {
		norm, err := n.Normalize(ctx, d.Name, d.OpenFDA)
		if err != nil {
			return nil, err
		}
		ownResolved[pos] = norm
		count(d.Name, norm)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.reports {
		for j := range s.reports[i].Drugs {
			d := &s.reports[i].Drugs[j]
			norm, ok := ownResolved[position{i, j}]
			if !ok {
				norm, ok = resolved[faers.CacheKey(d.Name)]
			}
			if ok {
				d.NormalizedName = norm.Name
				d.NormSource = norm.Source
			}
		}
	}
	s.normalization = stats
	return stats, nil
}
