package testkit

import (
	"time"

	"faersignal/domain/faers"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DemoReports is the four-report demo dataset:
//
//	r1  aspirin (primary suspect)    nausea
//	r2  aspirin (primary suspect)    headache
//	r3  ibuprofen (primary suspect)  nausea
//	r4  aspirin (secondary suspect)  nausea
func DemoReports() []faers.Report {
	return []faers.Report{
		{
			SafetyReportID: "r1",
			ReceiveDate:    day(2024, time.January, 1),
			Qualifier:      1,
			Drugs:          []faers.DrugEntry{{Name: "aspirin", Role: faers.RolePrimarySuspect}},
			Reactions:      []string{"nausea"},
		},
		{
			SafetyReportID: "r2",
			ReceiveDate:    day(2024, time.January, 2),
			Qualifier:      1,
			Drugs:          []faers.DrugEntry{{Name: "aspirin", Role: faers.RolePrimarySuspect}},
			Reactions:      []string{"headache"},
		},
		{
			SafetyReportID: "r3",
			ReceiveDate:    day(2024, time.January, 3),
			Qualifier:      1,
			Drugs:          []faers.DrugEntry{{Name: "ibuprofen", Role: faers.RolePrimarySuspect}},
			Reactions:      []string{"nausea"},
		},
		{
			SafetyReportID: "r4",
			ReceiveDate:    day(2024, time.January, 4),
			Qualifier:      2,
			Drugs:          []faers.DrugEntry{{Name: "aspirin", Role: faers.RoleSecondarySuspect}},
			Reactions:      []string{"nausea"},
		},
	}
}
