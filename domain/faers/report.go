// Package faers models the adverse-event report records that pair counts
// are aggregated from, and the scope an aggregation runs over.
package faers

import (
	"strings"
	"time"
)

// Role is the reported role of a drug in a case.
type Role int

const (
	RolePrimarySuspect   Role = 1
	RoleSecondarySuspect Role = 2
	RoleConcomitant      Role = 3
	RoleInteracting      Role = 4
)

// DrugEntry is one drug listed on a report.
type DrugEntry struct {
	Name string `json:"drug_name" db:"drug_name"`
	// NormalizedName is empty until a normalizer has run.
	NormalizedName string              `json:"drug_name_norm,omitempty" db:"drug_name_norm"`
	NormSource     NormalizationSource `json:"norm_source,omitempty" db:"norm_source"`
	Role           Role                `json:"role" db:"role"`
	// OpenFDA holds the harmonized names openFDA attached to this entry.
	OpenFDA *OpenFDAFields `json:"openfda,omitempty" db:"-"`
}

// Report is one safety report with its drugs and reaction terms.
type Report struct {
	SafetyReportID string      `json:"safetyreportid" db:"safetyreportid"`
	ReceiveDate    time.Time   `json:"receivedate" db:"receivedate"`
	Qualifier      int         `json:"primarysource_qualifier" db:"primarysource_qualifier"`
	Drugs          []DrugEntry `json:"drugs"`
	Reactions      []string    `json:"reactions"`
}

// Scope restricts which reports and drugs an aggregation counts.
type Scope struct {
	SuspectOnly bool
	Since       *time.Time
	Until       *time.Time
	DrugPrefix  string
	PTPrefix    string
	// UseNormalized aggregates on normalized drug names where present.
	UseNormalized bool
}

// Roles returns the drug roles in scope: primary suspect only, or
// primary, secondary and concomitant.
func (s Scope) Roles() []Role {
	if s.SuspectOnly {
		return []Role{RolePrimarySuspect}
	}
	return []Role{RolePrimarySuspect, RoleSecondarySuspect, RoleConcomitant}
}

// RoleCodes is Roles as plain ints, for SQL parameters.
func (s Scope) RoleCodes() []int64 {
	roles := s.Roles()
	out := make([]int64, len(roles))
	for i, r := range roles {
		out[i] = int64(r)
	}
	return out
}

// IncludesRole reports whether r is in scope.
func (s Scope) IncludesRole(r Role) bool {
	for _, in := range s.Roles() {
		if in == r {
			return true
		}
	}
	return false
}

// InWindow reports whether t falls within [Since, Until], both inclusive.
func (s Scope) InWindow(t time.Time) bool {
	if s.Since != nil && t.Before(*s.Since) {
		return false
	}
	if s.Until != nil && t.After(*s.Until) {
		return false
	}
	return true
}

// MatchesPair applies the case-insensitive prefix filters.
func (s Scope) MatchesPair(drug, pt string) bool {
	return HasPrefixFold(drug, s.DrugPrefix) && HasPrefixFold(pt, s.PTPrefix)
}

// HasPrefixFold is strings.HasPrefix on lower-cased strings, matching the
// SQL filter left(lower(s), length(prefix)) = lower(prefix). An empty
// prefix matches.
func HasPrefixFold(s, prefix string) bool {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return true
	}
	return strings.HasPrefix(strings.ToLower(s), strings.ToLower(prefix))
}

// DrugKey is the name a drug is aggregated under.
func (d DrugEntry) DrugKey(useNormalized bool) string {
	name := d.Name
	if useNormalized && strings.TrimSpace(d.NormalizedName) != "" {
		name = d.NormalizedName
	}
	return strings.ToLower(strings.TrimSpace(name))
}
