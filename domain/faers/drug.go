package faers

import "strings"

// NormalizationSource labels where a normalized drug name came from.
type NormalizationSource string

const (
	SourceOpenFDA  NormalizationSource = "openfda_harmonized"
	SourceRxNorm   NormalizationSource = "rxnorm_api"
	SourceUnmapped NormalizationSource = "unmapped"
)

// Normalization is an ingredient-level drug name and its provenance.
type Normalization struct {
	Name   string              `json:"name" db:"name"`
	Source NormalizationSource `json:"source" db:"source"`
}

// OpenFDAFields carries the harmonized names openFDA attaches to a drug.
type OpenFDAFields struct {
	SubstanceName []string `json:"substance_name,omitempty"`
	GenericName   []string `json:"generic_name,omitempty"`
}

// Harmonized returns the first non-empty substance name, then generic name,
// lower-cased. ok is false when neither is set.
func (f OpenFDAFields) Harmonized() (string, bool) {
	for _, names := range [][]string{f.SubstanceName, f.GenericName} {
		if len(names) == 0 {
			continue
		}
		if name := strings.TrimSpace(names[0]); name != "" {
			return strings.ToLower(name), true
		}
	}
	return "", false
}

// Unmapped is the fallback normalization: the raw name lower-cased.
func Unmapped(raw string) Normalization {
	return Normalization{Name: strings.ToLower(strings.TrimSpace(raw)), Source: SourceUnmapped}
}

// CacheKey is the key a raw name is cached under.
func CacheKey(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
