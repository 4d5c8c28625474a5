package core

import (
	"errors"
	"testing"
	"time"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}
}

func TestParseRunID(t *testing.T) {
	id := NewRunID()
	parsed, err := ParseRunID("  " + id.String() + " ")
	if err != nil {
		t.Fatalf("ParseRunID(%q) returned error: %v", id, err)
	}
	if parsed != id {
		t.Errorf("expected %s, got %s", id, parsed)
	}

	for _, bad := range []string{"", "run-42", "123"} {
		_, err := ParseRunID(bad)
		if !errors.Is(err, ErrInvalidID) {
			t.Errorf("ParseRunID(%q): expected ErrInvalidID, got %v", bad, err)
		}
		if !IsValidationError(err) {
			t.Errorf("ParseRunID(%q): expected a validation error", bad)
		}
	}
}

func TestHasher_Deterministic(t *testing.T) {
	sum := func(parts ...string) Hash {
		h := NewHasher()
		for _, p := range parts {
			h.WriteString(p)
		}
		return h.Sum()
	}

	a := sum("aspirin", "nausea")
	if a != sum("aspirin", "nausea") {
		t.Error("same input must hash identically")
	}
	if a == sum("aspirin", "headache") {
		t.Error("different input must hash differently")
	}
	if a != NewHash([]byte("aspirinnausea")) {
		t.Error("Hasher must match NewHash over the concatenated input")
	}
	if len(a.Short()) != 12 {
		t.Errorf("Short() length = %d, want 12", len(a.Short()))
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2024-03-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected date %v", got)
	}

	if got, err := ParseDate(""); got != nil || err != nil {
		t.Errorf("empty input: got (%v, %v), want (nil, nil)", got, err)
	}
	if _, err := ParseDate("03/01/2024"); err == nil {
		t.Error("expected error for non ISO date")
	}
}
