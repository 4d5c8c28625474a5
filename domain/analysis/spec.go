// Package analysis describes a reproducible signal run: the settings that
// produced it (Spec) and the record written next to its exports (Manifest).
package analysis

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"faersignal/domain/core"
	"faersignal/domain/signal"
)

// Source selects where pair counts come from.
type Source string

const (
	SourceDemo Source = "demo"
	SourceDB   Source = "db"
	SourceFile Source = "file"
)

// DefaultTopN is the size of the ranked view when a spec does not set one.
const DefaultTopN = 15

// Spec holds every setting that influences a run's output.
type Spec struct {
	Source    Source `yaml:"source" json:"source"`
	InputPath string `yaml:"input_path,omitempty" json:"input_path,omitempty"`
	Since     string `yaml:"since,omitempty" json:"since,omitempty"`
	Until     string `yaml:"until,omitempty" json:"until,omitempty"`

	SuspectOnly       bool   `yaml:"suspect_only" json:"suspect_only"`
	MinA              int    `yaml:"min_a" json:"min_a"`
	KeepBelowMinA     bool   `yaml:"keep_below_min_a" json:"keep_below_min_a"`
	DrugFilter        string `yaml:"drug_filter,omitempty" json:"drug_filter,omitempty"`
	PTFilter          string `yaml:"pt_filter,omitempty" json:"pt_filter,omitempty"`
	DrugNormalization bool   `yaml:"drug_normalization" json:"drug_normalization"`

	FDR     bool `yaml:"fdr" json:"fdr"`
	Haldane bool `yaml:"haldane" json:"haldane"`
	Yates   bool `yaml:"yates" json:"yates"`

	SignalMode signal.Mode    `yaml:"signal_mode" json:"signal_mode"`
	Ranking    signal.Ranking `yaml:"ranking_criterion" json:"ranking_criterion"`
	TopN       int            `yaml:"top_n" json:"top_n"`
	TieBreaker string         `yaml:"tie_breaker" json:"tie_breaker"`
}

// DefaultSpec returns the settings used when nothing is configured.
func DefaultSpec() Spec {
	return Spec{
		Source:      SourceDemo,
		SuspectOnly: true,
		MinA:        signal.DefaultMinA,
		FDR:         true,
		Haldane:     true,
		Yates:       true,
		SignalMode:  signal.DefaultMode,
		Ranking:     signal.DefaultRanking,
		TopN:        DefaultTopN,
		TieBreaker:  signal.TieBreaker,
	}
}

// LoadSpec reads a YAML spec file. Keys missing from the file keep their
// DefaultSpec values; unknown keys are rejected.
func LoadSpec(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, fmt.Errorf("read spec %s: %w", path, err)
	}
	return ParseSpec(data)
}

// ParseSpec decodes YAML (or JSON, which YAML accepts) into a validated Spec.
func ParseSpec(data []byte) (Spec, error) {
	spec := DefaultSpec()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil && !errors.Is(err, io.EOF) {
		return Spec{}, fmt.Errorf("%w: %v", core.ErrInvalidSpec, err)
	}
	if err := spec.Normalize(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

// Normalize canonicalizes enum fields and validates the spec in place.
func (s *Spec) Normalize() error {
	switch src := Source(strings.ToLower(strings.TrimSpace(string(s.Source)))); src {
	case "":
		s.Source = SourceDemo
	case SourceDemo, SourceDB, SourceFile:
		s.Source = src
	default:
		return fmt.Errorf("%w: %q (want demo, db or file)", core.ErrUnknownSource, s.Source)
	}

	mode, err := signal.ParseMode(string(s.SignalMode))
	if err != nil {
		return err
	}
	s.SignalMode = mode

	ranking, err := signal.ParseRanking(string(s.Ranking))
	if err != nil {
		return err
	}
	s.Ranking = ranking

	if s.TieBreaker == "" {
		s.TieBreaker = signal.TieBreaker
	}
	return s.Validate()
}

// Validate checks ranges and combinations that Normalize cannot repair.
func (s Spec) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", core.ErrInvalidSpec, fmt.Sprintf(format, args...))
	}

	if s.Source == SourceFile && strings.TrimSpace(s.InputPath) == "" {
		return invalid("input_path is required for source %q", SourceFile)
	}
	if s.MinA < 0 {
		return invalid("min_a must be >= 0, got %d", s.MinA)
	}
	if s.TopN < 0 {
		return invalid("top_n must be >= 0, got %d", s.TopN)
	}
	if !s.Haldane || !s.Yates {
		return invalid("only the Haldane-Anscombe corrected, Yates corrected metrics are supported")
	}
	if s.TieBreaker != signal.TieBreaker {
		return invalid("tie_breaker must be %q", signal.TieBreaker)
	}
	if !s.SignalMode.Valid() {
		return fmt.Errorf("%w: %q", core.ErrUnknownSignalMode, s.SignalMode)
	}

	since, err := core.ParseDate(s.Since)
	if err != nil {
		return invalid("since: %v", err)
	}
	until, err := core.ParseDate(s.Until)
	if err != nil {
		return invalid("until: %v", err)
	}
	if since != nil && until != nil && since.After(*until) {
		return invalid("since %s is after until %s", s.Since, s.Until)
	}
	return nil
}

// Fingerprint hashes the settings in a stable order.
func (s Spec) Fingerprint() core.Hash {
	h := core.NewHasher()
	s.writeTo(h)
	return h.Sum()
}

func (s Spec) writeTo(h *core.Hasher) {
	fmt.Fprintf(h, "source=%s;input=%s;since=%s;until=%s;", s.Source, s.InputPath, s.Since, s.Until)
	fmt.Fprintf(h, "suspect_only=%t;min_a=%d;keep_below=%t;", s.SuspectOnly, s.MinA, s.KeepBelowMinA)
	fmt.Fprintf(h, "drug=%s;pt=%s;norm=%t;", s.DrugFilter, s.PTFilter, s.DrugNormalization)
	fmt.Fprintf(h, "fdr=%t;haldane=%t;yates=%t;", s.FDR, s.Haldane, s.Yates)
	fmt.Fprintf(h, "mode=%s;rank=%s;top=%d;tie=%s;", s.SignalMode, s.Ranking, s.TopN, s.TieBreaker)
}

// YAML renders the spec as a spec file.
func (s Spec) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}
