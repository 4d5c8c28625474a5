package ports

import (
	"context"

	"faersignal/domain/faers"
)

// DrugNormalizer maps a raw reported drug name to an ingredient-level name.
// fields may be nil when the report carried no openFDA annotations.
type DrugNormalizer interface {
	Normalize(ctx context.Context, raw string, fields *faers.OpenFDAFields) (faers.Normalization, error)
}

// NameCache stores normalizations by faers.CacheKey. Implementations must
// be safe for concurrent use.
type NameCache interface {
	Get(key string) (faers.Normalization, bool)
	Add(key string, value faers.Normalization)
	Len() int
}

// DrugRepository reads raw drug names and stores their normalizations.
type DrugRepository interface {
	DistinctDrugNames(ctx context.Context, onlyUnnormalized bool) ([]string, error)
	SaveNormalizations(ctx context.Context, byRaw map[string]faers.Normalization) error
	NormalizationStats(ctx context.Context) (map[string]int, error)
}
