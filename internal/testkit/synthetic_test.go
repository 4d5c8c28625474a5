package testkit

import (
	"reflect"
	"testing"

	"faersignal/domain/faers"
)

func TestSyntheticGenerator_Basic(t *testing.T) {
	config := DefaultSyntheticConfig()
	config.Reports = 200 // Small for testing

	reports := NewSyntheticGenerator(config).Generate()
	if len(reports) != config.Reports {
		t.Fatalf("Expected %d reports, got %d", config.Reports, len(reports))
	}

	seenIDs := make(map[string]bool)
	for i, r := range reports {
		if r.SafetyReportID == "" || seenIDs[r.SafetyReportID] {
			t.Errorf("Report %d has empty or duplicate ID %q", i, r.SafetyReportID)
		}
		seenIDs[r.SafetyReportID] = true

		if len(r.Drugs) == 0 || len(r.Reactions) == 0 {
			t.Errorf("Report %d has no drugs or no reactions", i)
		}
		if r.Drugs[0].Role != faers.RolePrimarySuspect {
			t.Errorf("Report %d: first drug role is %d, want primary suspect", i, r.Drugs[0].Role)
		}
		if r.ReceiveDate.Before(config.StartDate) || !r.ReceiveDate.Before(config.StartDate.AddDate(0, 0, config.Days)) {
			t.Errorf("Report %d: receive date %s outside window", i, r.ReceiveDate)
		}
	}
}

func TestSyntheticGenerator_Deterministic(t *testing.T) {
	config := DefaultSyntheticConfig()
	config.Reports = 100

	first := NewSyntheticGenerator(config).Generate()
	second := NewSyntheticGenerator(config).Generate()
	if !reflect.DeepEqual(first, second) {
		t.Error("Same seed produced different reports")
	}

	config.Seed++
	third := NewSyntheticGenerator(config).Generate()
	if reflect.DeepEqual(first, third) {
		t.Error("Different seeds produced identical reports")
	}
}

func TestSyntheticGenerator_PlantedPairIsEnriched(t *testing.T) {
	config := DefaultSyntheticConfig()
	reports := NewSyntheticGenerator(config).Generate()

	var withDrug, withBoth, withoutDrug, reactionOnly int
	for _, r := range reports {
		hasDrug := false
		for _, d := range r.Drugs {
			if d.Name == config.PlantedDrug && d.Role == faers.RolePrimarySuspect {
				hasDrug = true
			}
		}
		hasReaction := false
		for _, pt := range r.Reactions {
			if pt == config.PlantedReaction {
				hasReaction = true
			}
		}
		switch {
		case hasDrug && hasReaction:
			withDrug++
			withBoth++
		case hasDrug:
			withDrug++
		case hasReaction:
			withoutDrug++
			reactionOnly++
		default:
			withoutDrug++
		}
	}

	if withDrug == 0 || withBoth == 0 {
		t.Fatalf("Planted drug never reported with its reaction (drug=%d both=%d)", withDrug, withBoth)
	}
	if reactionOnly != 0 {
		t.Errorf("Planted reaction appeared without the planted drug %d times", reactionOnly)
	}
	if float64(withBoth)/float64(withDrug) < 0.4 {
		t.Errorf("Planted rate too low: %d of %d", withBoth, withDrug)
	}
}

func TestDemoReports(t *testing.T) {
	reports := DemoReports()
	if len(reports) == 0 {
		t.Fatal("Expected demo reports")
	}
	for i, r := range reports {
		if r.SafetyReportID == "" || len(r.Drugs) == 0 {
			t.Errorf("Demo report %d is incomplete", i)
		}
	}
}
