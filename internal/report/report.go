// Package report renders a run as a Markdown summary and as a standalone
// HTML page.
package report

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"faersignal/domain/analysis"
	"faersignal/domain/signal"
)

// Placeholder is printed for undefined values.
const Placeholder = "—"

// Format renders v with the given decimals, or Placeholder when undefined.
func Format(v float64, decimals int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Placeholder
	}
	return strconv.FormatFloat(v, 'f', decimals, 64)
}

// FormatP renders small p- and q-values in scientific notation.
func FormatP(v float64) string {
	if math.IsNaN(v) {
		return Placeholder
	}
	if v != 0 && v < 1e-4 {
		return strconv.FormatFloat(v, 'e', 2, 64)
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func formatCI(point float64, ci signal.Interval, decimals int) string {
	if !ci.Defined() {
		return Format(point, decimals)
	}
	return fmt.Sprintf("%s (%s–%s)", Format(point, decimals), Format(ci.Lower, decimals), Format(ci.Upper, decimals))
}

func flagList(f signal.Flags) string {
	var names []string
	if f.Evans {
		names = append(names, "Evans")
	}
	if f.ROR025 {
		names = append(names, "ROR025")
	}
	if f.IC025 {
		names = append(names, "IC025")
	}
	if len(names) == 0 {
		return Placeholder
	}
	return strings.Join(names, ", ")
}

// escape keeps free text from breaking a table row.
func escape(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}

// Markdown renders the run header, its summary counts and the first topN
// ranked rows. topN <= 0 uses the spec's top_n.
func Markdown(run *analysis.Run, topN int) []byte {
	m := run.Manifest
	if topN <= 0 {
		topN = m.Spec.TopN
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "# Disproportionality run %s\n\n", m.RunID)
	fmt.Fprintf(&b, "- Created: %s\n", m.CreatedAt)
	fmt.Fprintf(&b, "- Source: %s\n", m.Spec.Source)
	fmt.Fprintf(&b, "- Signal mode: %s, min A: %d, ranking: %s\n", m.Spec.SignalMode, m.Spec.MinA, m.Spec.Ranking)
	if m.Spec.Since != "" || m.Spec.Until != "" {
		fmt.Fprintf(&b, "- Window: %s to %s\n", orPlaceholder(m.Spec.Since), orPlaceholder(m.Spec.Until))
	}
	if !m.Fingerprint.IsEmpty() {
		fmt.Fprintf(&b, "- Fingerprint: `%s`\n", m.Fingerprint.Short())
	}
	b.WriteString("\n## Summary\n\n")
	b.WriteString("| Measure | Value |\n|---|---:|\n")
	s := m.Summary
	rows := [][2]string{
		{"Reports in scope", strconv.FormatInt(m.Dataset.TotalReports, 10)},
		{"Input pairs", strconv.Itoa(s.InputRows)},
		{"Rejected pairs", strconv.Itoa(s.RejectedRows)},
		{"Below min A", strconv.Itoa(s.BelowMinA)},
		{"Evaluated pairs", strconv.Itoa(s.EvaluatedRows)},
		{"Haldane corrected", strconv.Itoa(s.HaldaneApplied)},
		{"Signals", strconv.Itoa(s.SignalCount)},
	}
	if m.Spec.FDR {
		rows = append(rows, [2]string{"q < 0.05", strconv.Itoa(s.FDRSignificant)})
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "| %s | %s |\n", r[0], r[1])
	}

	if len(s.FlagCounts) > 0 {
		b.WriteString("\n| Flag | Pairs |\n|---|---:|\n")
		for _, k := range sortedKeys(s.FlagCounts) {
			fmt.Fprintf(&b, "| %s | %d |\n", k, s.FlagCounts[k])
		}
	}

	top := run.Top(topN)
	fmt.Fprintf(&b, "\n## Top %d pairs\n\n", len(top))
	if len(top) == 0 {
		b.WriteString("No pairs were evaluated.\n")
		return b.Bytes()
	}
	b.WriteString("| # | Drug | PT | A | PRR | χ² | ROR (95% CI) | IC (95% CI) | Flags | Signal | q |\n")
	b.WriteString("|---:|---|---|---:|---:|---:|---|---|---|:---:|---:|\n")
	for i, r := range top {
		marker := ""
		if r.Signal {
			marker = "●"
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %d | %s | %s | %s | %s | %s | %s | %s |\n",
			i+1, escape(r.Drug), escape(r.PT), r.A,
			Format(r.Metrics.PRR, 2), Format(r.Metrics.ChiSquare, 2),
			formatCI(r.Metrics.ROR, r.Metrics.RORCI, 2),
			formatCI(r.Metrics.IC, r.Metrics.ICCI, 2),
			flagList(r.Flags), marker, FormatP(r.QValue))
	}
	return b.Bytes()
}

// HTML renders Markdown(run, topN) as a complete HTML page.
func HTML(run *analysis.Run, topN int) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse(Markdown(run, topN))

	renderer := html.NewRenderer(html.RendererOptions{
		Title: "Run " + run.Manifest.RunID.String(),
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.Render(doc, renderer)
}

func orPlaceholder(s string) string {
	if s == "" {
		return Placeholder
	}
	return s
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
