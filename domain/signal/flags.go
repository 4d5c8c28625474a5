package signal

// Flag thresholds.
const (
	DefaultMinA = 3

	EvansMinPRR       = 2.0
	EvansMinChiSquare = 4.0
	RORLowerBound     = 1.0
	ICLowerBound      = 0.0
)

// Flags are the three independent signal criteria for one pair.
type Flags struct {
	Evans  bool `json:"flag_evans"`
	ROR025 bool `json:"flag_ror025"`
	IC025  bool `json:"flag_ic025"`
}

// Count returns how many flags are set.
func (f Flags) Count() int {
	n := 0
	for _, set := range []bool{f.Evans, f.ROR025, f.IC025} {
		if set {
			n++
		}
	}
	return n
}

// EvaluateFlags derives the flags from metrics. rawA is the uncorrected A
// count; Haldane-corrected values never reach the min_a gate.
// Undefined metrics leave their flag false.
func EvaluateFlags(m MetricResult, rawA int64, minA int) Flags {
	return Flags{
		Evans:  EvansFlag(m, rawA, minA),
		ROR025: m.RORCI.Defined() && m.RORCI.Lower > RORLowerBound,
		IC025:  m.ICCI.Defined() && m.ICCI.Lower > ICLowerBound,
	}
}

// EvansFlag is PRR >= 2, chi-square >= 4 and A >= minA.
func EvansFlag(m MetricResult, rawA int64, minA int) bool {
	if !Defined(m.PRR) || !Defined(m.ChiSquare) {
		return false
	}
	return m.PRR >= EvansMinPRR &&
		m.ChiSquare >= EvansMinChiSquare &&
		rawA >= int64(minA)
}
