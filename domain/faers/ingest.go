package faers

import (
	"strings"
	"time"
)

// IngestQuery selects the reports an ingestion run loads.
type IngestQuery struct {
	// Drug matches any drug on the report by name, case-insensitively.
	Drug  string
	Since *time.Time
	Until *time.Time
	// Limit caps the number of reports; zero means no cap.
	Limit int
}

// Accepts reports whether r falls in the window and names the drug.
func (q IngestQuery) Accepts(r Report) bool {
	if q.Since != nil && r.ReceiveDate.Before(*q.Since) {
		return false
	}
	if q.Until != nil && r.ReceiveDate.After(*q.Until) {
		return false
	}
	drug := strings.TrimSpace(q.Drug)
	if drug == "" {
		return true
	}
	for _, d := range r.Drugs {
		if strings.EqualFold(strings.TrimSpace(d.Name), drug) {
			return true
		}
	}
	return false
}

// ParseCompactDate parses the YYYYMMDD dates FAERS and openFDA use.
func ParseCompactDate(s string) (time.Time, bool) {
	t, err := time.Parse("20060102", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
