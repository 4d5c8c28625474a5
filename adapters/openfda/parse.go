// Package openfda loads drug adverse event reports from the openFDA
// drug/event API and from its bulk download files.
package openfda

import (
	"strings"

	"github.com/tidwall/gjson"

	"faersignal/domain/faers"
	"faersignal/internal/errors"
)

// ParseEvents decodes an openFDA drug/event document. Events without a
// safety report ID or a valid receive date are skipped and counted.
func ParseEvents(data []byte) (reports []faers.Report, skipped int, err error) {
	if !gjson.ValidBytes(data) {
		return nil, 0, errors.InvalidInput("openFDA document is not valid JSON")
	}
	results := gjson.GetBytes(data, "results")
	if !results.IsArray() {
		return nil, 0, errors.InvalidInput("openFDA document has no results array")
	}

	results.ForEach(func(_, ev gjson.Result) bool {
		if r, ok := parseEvent(ev); ok {
			reports = append(reports, r)
		} else {
			skipped++
		}
		return true
	})
	return reports, skipped, nil
}

func parseEvent(ev gjson.Result) (faers.Report, bool) {
	id := strings.TrimSpace(ev.Get("safetyreportid").String())
	received, ok := faers.ParseCompactDate(ev.Get("receivedate").String())
	if id == "" || !ok {
		return faers.Report{}, false
	}

	r := faers.Report{
		SafetyReportID: id,
		ReceiveDate:    received,
		Qualifier:      int(ev.Get("primarysource.qualifier").Int()),
	}

	ev.Get("patient.drug").ForEach(func(_, d gjson.Result) bool {
		name := strings.TrimSpace(d.Get("medicinalproduct").String())
		if name == "" {
			name = strings.TrimSpace(d.Get("activesubstance.activesubstancename").String())
		}
		if name == "" {
			return true
		}
		r.Drugs = append(r.Drugs, faers.DrugEntry{
			Name:    name,
			Role:    faers.Role(d.Get("drugcharacterization").Int()),
			OpenFDA: openFDAFields(d.Get("openfda")),
		})
		return true
	})

	for _, pt := range ev.Get("patient.reaction.#.reactionmeddrapt").Array() {
		if term := strings.TrimSpace(pt.String()); term != "" {
			r.Reactions = append(r.Reactions, term)
		}
	}
	return r, true
}

// openFDAFields returns nil when the entry carries no harmonized names.
func openFDAFields(v gjson.Result) *faers.OpenFDAFields {
	if !v.Exists() {
		return nil
	}
	f := faers.OpenFDAFields{
		SubstanceName: stringArray(v.Get("substance_name")),
		GenericName:   stringArray(v.Get("generic_name")),
	}
	if len(f.SubstanceName) == 0 && len(f.GenericName) == 0 {
		return nil
	}
	return &f
}

func stringArray(v gjson.Result) []string {
	var out []string
	for _, s := range v.Array() {
		if t := strings.TrimSpace(s.String()); t != "" {
			out = append(out, t)
		}
	}
	return out
}
