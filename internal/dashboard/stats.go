package dashboard

import (
	"math"

	"auditx/internal"
)

type Stats struct {
	Total        int     `json:"total"`
	Pending      int     `json:"pendingReview"`
	Approved     int     `json:"approved"`
	Rejected     int     `json:"rejected"`
	AverageScore float64 `json:"avgComplianceScore"`
}

// ComputeStats derives the header counters from the loaded audits. The
// average is rounded to one decimal and is 0 for an empty list.
func ComputeStats(audits []internal.NormalizedAudit) Stats {
	st := Stats{Total: len(audits)}
	sum := 0.0
	for _, a := range audits {
		switch a.Status {
		case internal.StatusApproved:
			st.Approved++
		case internal.StatusRejected:
			st.Rejected++
		case internal.StatusPendingReview:
			st.Pending++
		}
		sum += a.OverallScore
	}
	if st.Total > 0 {
		st.AverageScore = math.Round(sum/float64(st.Total)*10) / 10
	}
	return st
}

// Filter keeps audits in the given status. "all" and "" keep everything.
func Filter(audits []internal.NormalizedAudit, status string) []internal.NormalizedAudit {
	if status == "" || status == FilterAll {
		return audits
	}
	out := make([]internal.NormalizedAudit, 0, len(audits))
	for _, a := range audits {
		if string(a.Status) == status {
			out = append(out, a)
		}
	}
	return out
}

// BuildIndex keys audits by both ID and AuditID.
func BuildIndex(audits []internal.NormalizedAudit) map[string]internal.NormalizedAudit {
	idx := make(map[string]internal.NormalizedAudit, len(audits)*2)
	for _, a := range audits {
		if a.AuditID != "" {
			idx[a.AuditID] = a
		}
		if a.ID != "" {
			idx[a.ID] = a
		}
	}
	return idx
}
