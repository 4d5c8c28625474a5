package faers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScope_Roles(t *testing.T) {
	assert.Equal(t, []Role{RolePrimarySuspect}, Scope{SuspectOnly: true}.Roles())
	assert.Equal(t, []int64{1, 2, 3}, Scope{}.RoleCodes())
	assert.False(t, Scope{}.IncludesRole(RoleInteracting))
	assert.True(t, Scope{}.IncludesRole(RoleSecondarySuspect))
	assert.False(t, Scope{SuspectOnly: true}.IncludesRole(RoleSecondarySuspect))
}

func TestScope_InWindow(t *testing.T) {
	since := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	s := Scope{Since: &since, Until: &until}

	assert.False(t, s.InWindow(since.AddDate(0, 0, -1)))
	assert.True(t, s.InWindow(since))
	assert.True(t, s.InWindow(until))
	assert.False(t, s.InWindow(until.AddDate(0, 0, 1)))
	assert.True(t, Scope{}.InWindow(time.Time{}))
}

func TestScope_MatchesPair(t *testing.T) {
	s := Scope{DrugPrefix: "ASP", PTPrefix: " nau"}
	assert.True(t, s.MatchesPair("aspirin", "Nausea"))
	assert.False(t, s.MatchesPair("ibuprofen", "nausea"))
	assert.False(t, s.MatchesPair("aspirin", "headache"))
	assert.False(t, s.MatchesPair("as", "nausea"))
	assert.True(t, Scope{}.MatchesPair("anything", "at all"))
}

func TestHasPrefixFold_MultiByte(t *testing.T) {
	// U+212A KELVIN SIGN is three bytes and lower-cases to "k".
	assert.True(t, HasPrefixFold("Ketamine", "k"))
	assert.True(t, HasPrefixFold("ÉPINÉPHRINE", "épi"))
	assert.True(t, HasPrefixFold("épinéphrine", "ÉPINÉ"))
	assert.False(t, HasPrefixFold("é", "e"))
	assert.False(t, HasPrefixFold("aé", "aéb"))
}

func TestDrugKey(t *testing.T) {
	d := DrugEntry{Name: " Bayer Aspirin ", NormalizedName: "Aspirin"}
	assert.Equal(t, "bayer aspirin", d.DrugKey(false))
	assert.Equal(t, "aspirin", d.DrugKey(true))
	assert.Equal(t, "ibuprofen", DrugEntry{Name: "IBUPROFEN"}.DrugKey(true))
}

func TestOpenFDAFields_Harmonized(t *testing.T) {
	name, ok := OpenFDAFields{SubstanceName: []string{"ASPIRIN"}, GenericName: []string{"acetylsalicylic acid"}}.Harmonized()
	assert.True(t, ok)
	assert.Equal(t, "aspirin", name)

	name, ok = OpenFDAFields{SubstanceName: []string{" "}, GenericName: []string{"Ibuprofen"}}.Harmonized()
	assert.True(t, ok)
	assert.Equal(t, "ibuprofen", name)

	_, ok = OpenFDAFields{}.Harmonized()
	assert.False(t, ok)

	assert.Equal(t, Normalization{Name: "tylenol", Source: SourceUnmapped}, Unmapped(" TYLENOL "))
}
