package pipeline

import (
	"strings"
	"time"

	"auditx/internal"
)

// Score bands shared by control findings and whole audits.
const (
	PassThreshold    = 90
	PartialThreshold = 70
)

const (
	DueDateOffsetDays = 30
	SLADateOffsetDays = 45

	// NotAvailable is rendered for dates that cannot be derived.
	NotAvailable = "N/A"
)

type scoreBand int

const (
	bandHigh scoreBand = iota
	bandMiddle
	bandLow
)

func bandFor(score float64) scoreBand {
	switch {
	case score >= PassThreshold:
		return bandHigh
	case score >= PartialThreshold:
		return bandMiddle
	default:
		return bandLow
	}
}

// ClassifyControl maps a control score onto pass/partial/fail.
func ClassifyControl(score int) internal.FindingStatus {
	switch bandFor(float64(score)) {
	case bandHigh:
		return internal.FindingPass
	case bandMiddle:
		return internal.FindingPartial
	default:
		return internal.FindingFail
	}
}

// ClassifyAudit maps an overall score onto the review status.
func ClassifyAudit(score float64) internal.AuditStatus {
	switch bandFor(score) {
	case bandHigh:
		return internal.StatusApproved
	case bandMiddle:
		return internal.StatusPendingReview
	default:
		return internal.StatusRejected
	}
}

type DerivedDates struct {
	Generated string
	Due       string
	SLA       string
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts the ISO-8601 forms seen in audit documents.
// Timestamps without a zone are read as UTC.
func ParseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// DeriveDates computes due and SLA dates relative to the record's own
// generation timestamp. All three are NotAvailable when it does not parse.
func DeriveDates(generatedAt string) DerivedDates {
	t, ok := ParseTimestamp(generatedAt)
	if !ok {
		return DerivedDates{Generated: NotAvailable, Due: NotAvailable, SLA: NotAvailable}
	}
	return DerivedDates{
		Generated: formatDate(t),
		Due:       formatDate(t.AddDate(0, 0, DueDateOffsetDays)),
		SLA:       formatDate(t.AddDate(0, 0, SLADateOffsetDays)),
	}
}

func formatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
