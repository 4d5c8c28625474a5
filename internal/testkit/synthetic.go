package testkit

import (
	"fmt"
	"math/rand"
	"time"

	"faersignal/domain/faers"
)

// SyntheticConfig configures the synthetic report generator
type SyntheticConfig struct {
	Reports        int       `json:"reports"`
	DrugCount      int       `json:"drug_count"`
	ReactionCount  int       `json:"reaction_count"`
	MaxDrugs       int       `json:"max_drugs_per_report"`
	MaxReactions   int       `json:"max_reactions_per_report"`
	ConcomitantPct float64   `json:"concomitant_pct"`
	StartDate      time.Time `json:"start_date"`
	Days           int       `json:"days"`
	Seed           int64     `json:"seed"`

	// The planted pair: reports naming PlantedDrug list PlantedReaction with
	// probability PlantedRate, far above the background rate.
	PlantedDrug     string  `json:"planted_drug"`
	PlantedReaction string  `json:"planted_reaction"`
	PlantedRate     float64 `json:"planted_rate"`
}

// DefaultSyntheticConfig returns a dataset large enough for every metric to
// be defined on the planted pair.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Reports:         5000,
		DrugCount:       40,
		ReactionCount:   60,
		MaxDrugs:        3,
		MaxReactions:    3,
		ConcomitantPct:  0.2,
		StartDate:       day(2024, time.January, 1),
		Days:            365,
		Seed:            42,
		PlantedDrug:     "drug-007",
		PlantedReaction: "reaction-013",
		PlantedRate:     0.6,
	}
}

// SyntheticGenerator produces reproducible report sets.
type SyntheticGenerator struct {
	config SyntheticConfig
	rng    *rand.Rand
}

// NewSyntheticGenerator creates a generator seeded from config.Seed.
func NewSyntheticGenerator(config SyntheticConfig) *SyntheticGenerator {
	return &SyntheticGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

func drugName(i int) string     { return fmt.Sprintf("drug-%03d", i) }
func reactionName(i int) string { return fmt.Sprintf("reaction-%03d", i) }

// Generate returns config.Reports reports.
func (g *SyntheticGenerator) Generate() []faers.Report {
	cfg := g.config
	reports := make([]faers.Report, 0, cfg.Reports)

	for i := 0; i < cfg.Reports; i++ {
		r := faers.Report{
			SafetyReportID: fmt.Sprintf("syn-%06d", i+1),
			ReceiveDate:    cfg.StartDate.AddDate(0, 0, g.rng.Intn(max(cfg.Days, 1))),
			Qualifier:      1 + g.rng.Intn(5),
		}

		hasPlanted := false
		seenDrug := map[string]bool{}
		for k, n := 0, 1+g.rng.Intn(max(cfg.MaxDrugs, 1)); k < n; k++ {
			name := drugName(g.rng.Intn(max(cfg.DrugCount, 1)))
			if seenDrug[name] {
				continue
			}
			seenDrug[name] = true

			role := faers.RolePrimarySuspect
			if k > 0 {
				role = faers.RoleSecondarySuspect
				if g.rng.Float64() < cfg.ConcomitantPct {
					role = faers.RoleConcomitant
				}
			}
			if name == cfg.PlantedDrug && role == faers.RolePrimarySuspect {
				hasPlanted = true
			}
			r.Drugs = append(r.Drugs, faers.DrugEntry{Name: name, Role: role})
		}

		seenPT := map[string]bool{}
		if hasPlanted && g.rng.Float64() < cfg.PlantedRate {
			r.Reactions = append(r.Reactions, cfg.PlantedReaction)
			seenPT[cfg.PlantedReaction] = true
		}
		for k, n := 0, 1+g.rng.Intn(max(cfg.MaxReactions, 1)); k < n; k++ {
			pt := reactionName(g.rng.Intn(max(cfg.ReactionCount, 1)))
			// Keep the background rate of the planted term low.
			if pt == cfg.PlantedReaction || seenPT[pt] {
				continue
			}
			seenPT[pt] = true
			r.Reactions = append(r.Reactions, pt)
		}

		reports = append(reports, r)
	}
	return reports
}
