package signal

import (
	"fmt"
	"strings"

	"faersignal/domain/core"
)

// Mode selects how many flags a pair needs to be called a signal.
type Mode string

const (
	ModeSensitive Mode = "sensitive"
	ModeBalanced  Mode = "balanced"
	ModeSpecific  Mode = "specific"

	DefaultMode = ModeBalanced
)

// Modes lists the accepted modes in order of increasing strictness.
var Modes = []Mode{ModeSensitive, ModeBalanced, ModeSpecific}

// ParseMode accepts a mode name case-insensitively. An empty string selects
// DefaultMode; anything else unrecognised is ErrUnknownSignalMode.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultMode, nil
	}
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q (want sensitive, balanced or specific)", core.ErrUnknownSignalMode, s)
	}
	return m, nil
}

// Valid reports whether m is one of Modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeSensitive, ModeBalanced, ModeSpecific:
		return true
	}
	return false
}

// RequiredFlags is the minimum flag count for a signal under m.
func (m Mode) RequiredFlags() (int, error) {
	switch m {
	case ModeSensitive:
		return 1, nil
	case ModeBalanced:
		return 2, nil
	case ModeSpecific:
		return 3, nil
	}
	return 0, fmt.Errorf("%w: %q", core.ErrUnknownSignalMode, string(m))
}

func (m Mode) String() string { return string(m) }

// Classify decides whether flags constitute a signal under mode.
func Classify(flags Flags, mode Mode) (bool, error) {
	required, err := mode.RequiredFlags()
	if err != nil {
		return false, err
	}
	return flags.Count() >= required, nil
}
