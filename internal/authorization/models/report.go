package models

import (
	"slices"
	"sort"
	"time"

	id "healthcommons/pkg/domain"
)

// AccessorSummary aggregates one accessor's attempts on a patient's data.
type AccessorSummary struct {
	Accessor   id.AgentID
	Granted    int
	Denied     int
	Emergency  int
	Categories []id.DataCategory
	LastAccess time.Time
}

func (a AccessorSummary) Total() int { return a.Granted + a.Denied }

// DisclosureReport lists who accessed or tried to access a patient's data
// in [From, To).
type DisclosureReport struct {
	Patient   id.AgentID
	From      time.Time
	To        time.Time
	Accessors []AccessorSummary
	Logs      []*AccessLog
}

// BuildDisclosureReport groups logs by accessor, busiest first. Self-access
// is left out.
func BuildDisclosureReport(patient id.AgentID, from, to time.Time, logs []*AccessLog) *DisclosureReport {
	byAccessor := make(map[id.AgentID]*AccessorSummary)
	var kept []*AccessLog
	for _, l := range logs {
		if l.Requester == patient {
			continue
		}
		kept = append(kept, l)
		sum, ok := byAccessor[l.Requester]
		if !ok {
			sum = &AccessorSummary{Accessor: l.Requester}
			byAccessor[l.Requester] = sum
		}
		if l.Outcome == OutcomeGranted {
			sum.Granted++
			if !slices.Contains(sum.Categories, l.Category) {
				sum.Categories = append(sum.Categories, l.Category)
			}
		} else {
			sum.Denied++
		}
		if l.EmergencyOverride {
			sum.Emergency++
		}
		if l.AccessedAt.After(sum.LastAccess) {
			sum.LastAccess = l.AccessedAt
		}
	}

	report := &DisclosureReport{Patient: patient, From: from, To: to, Logs: kept}
	for _, sum := range byAccessor {
		slices.Sort(sum.Categories)
		report.Accessors = append(report.Accessors, *sum)
	}
	sort.Slice(report.Accessors, func(i, j int) bool {
		a, b := report.Accessors[i], report.Accessors[j]
		if a.Total() != b.Total() {
			return a.Total() > b.Total()
		}
		return a.Accessor.String() < b.Accessor.String()
	})
	return report
}
