package app

import (
	"context"

	"faersignal/domain/faers"
	"faersignal/internal"
	"faersignal/internal/errors"
	"faersignal/ports"
)

// NormalizationService resolves raw drug names to ingredient names.
type NormalizationService struct {
	normalizer ports.DrugNormalizer
	logger     *internal.Logger
}

// NewNormalizationService creates a normalization service
func NewNormalizationService(normalizer ports.DrugNormalizer, logger *internal.Logger) *NormalizationService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &NormalizationService{normalizer: normalizer, logger: logger}
}

// NormalizeNames resolves each name. A lookup failure falls back to the
// unmapped name so one bad name never aborts the batch; cancellation does.
func (s *NormalizationService) NormalizeNames(ctx context.Context, names []string) (map[string]faers.Normalization, error) {
	out := make(map[string]faers.Normalization, len(names))
	failures := 0
	for _, raw := range names {
		key := faers.CacheKey(raw)
		if key == "" {
			continue
		}
		if _, done := out[key]; done {
			continue
		}
		norm, err := s.normalizer.Normalize(ctx, raw, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures++
			s.logger.Debug("[NormalizationService] %q: %v", raw, err)
			norm = faers.Unmapped(raw)
		}
		out[key] = norm
	}
	if failures > 0 {
		s.logger.Warn("[NormalizationService] %d of %d names fell back to unmapped after lookup errors", failures, len(out))
	}
	return out, nil
}

// NormalizeRepository normalizes the drug names stored in repo and writes
// the results back. onlyNew skips names that already have a normalization.
func (s *NormalizationService) NormalizeRepository(ctx context.Context, repo ports.DrugRepository, onlyNew bool) (map[string]int, error) {
	names, err := repo.DistinctDrugNames(ctx, onlyNew)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list drug names")
	}
	s.logger.Info("[NormalizationService] normalizing %d drug names", len(names))

	resolved, err := s.NormalizeNames(ctx, names)
	if err != nil {
		return nil, err
	}
	if err := repo.SaveNormalizations(ctx, resolved); err != nil {
		return nil, errors.Wrap(err, "failed to save normalizations")
	}
	return CountBySource(resolved), nil
}

// NormalizeReports sets the normalized name of every drug entry in reports
// in place. Entries carrying openFDA harmonized names are resolved from
// them; with lookup the remaining names go through NormalizeNames, without
// it they stay unnormalized. It returns the count of entries per source.
func (s *NormalizationService) NormalizeReports(ctx context.Context, reports []faers.Report, lookup bool) (map[string]int, error) {
	counts := make(map[string]int)
	var pending []string
	for i := range reports {
		for j := range reports[i].Drugs {
			d := &reports[i].Drugs[j]
			if d.OpenFDA != nil {
				if _, ok := d.OpenFDA.Harmonized(); ok {
					norm, err := s.normalizer.Normalize(ctx, d.Name, d.OpenFDA)
					if err == nil {
						d.NormalizedName, d.NormSource = norm.Name, norm.Source
						counts[string(norm.Source)]++
						continue
					}
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					s.logger.Debug("[NormalizationService] %q: %v", d.Name, err)
				}
			}
			pending = append(pending, d.Name)
		}
	}
	if !lookup || len(pending) == 0 {
		return counts, nil
	}

	resolved, err := s.NormalizeNames(ctx, pending)
	if err != nil {
		return nil, err
	}
	for i := range reports {
		for j := range reports[i].Drugs {
			d := &reports[i].Drugs[j]
			if d.NormalizedName != "" {
				continue
			}
			if norm, ok := resolved[faers.CacheKey(d.Name)]; ok {
				d.NormalizedName, d.NormSource = norm.Name, norm.Source
				counts[string(norm.Source)]++
			}
		}
	}
	return counts, nil
}

// CountBySource tallies normalizations per source label.
func CountBySource(byRaw map[string]faers.Normalization) map[string]int {
	out := make(map[string]int)
	for _, n := range byRaw {
		out[string(n.Source)]++
	}
	return out
}
