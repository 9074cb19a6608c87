package pipeline

import (
	"errors"
	"strings"
	"time"

	"auditx/internal"
	"auditx/internal/util"
)

var ErrMissingIdentity = errors.New("audit record has neither id nor auditId")

const (
	DefaultAuditName      = "Azure AI Specialization"
	DefaultAuditShortName = "AI Spec"
	DefaultAuditType      = "Azure Specialization"
	DefaultTotalQuestions = 14

	workloadDetailLimit = 5
)

type Normalizer struct {
	now func() time.Time
}

type Option func(*Normalizer)

// WithClock replaces the clock used to stamp NormalizedAt. Due and SLA
// dates never depend on it.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize runs every parser over its own field and assembles the view
// model. The only error is ErrMissingIdentity; every other gap in the input
// degrades to a documented default.
func (n *Normalizer) Normalize(rec internal.RawAuditRecord) (internal.NormalizedAudit, error) {
	id := util.FirstNonEmpty(rec.ID, rec.AuditID)
	if id == "" {
		return internal.NormalizedAudit{}, ErrMissingIdentity
	}
	id = strings.TrimSpace(id)

	findings := ParseGapReport(util.Deref(rec.GapReport))
	recommendations := ParseRecommendations(util.Deref(rec.Recommendations))
	highlights := ParseExecutiveSummary(util.Deref(rec.ExecutiveSummary))
	dates := DeriveDates(rec.GeneratedAt)

	overall := 0.0
	if rec.OverallPercentage != nil {
		overall = *rec.OverallPercentage
	}
	moduleA, moduleB := PartitionFindings(findings)

	totalQuestions := DefaultTotalQuestions
	if rec.TotalQuestions != nil && *rec.TotalQuestions > 0 {
		totalQuestions = *rec.TotalQuestions
	}

	return internal.NormalizedAudit{
		ID:               id,
		AuditID:          util.FirstNonEmpty(rec.AuditID, id),
		DisplayName:      displayName(rec.ID, rec.AuditID),
		Name:             DefaultAuditName,
		ShortName:        DefaultAuditShortName,
		Type:             DefaultAuditType,
		Status:           ClassifyAudit(overall),
		OverallScore:     util.RoundTo1(overall),
		GeneratedAt:      rec.GeneratedAt,
		DueDate:          dates.Due,
		SLADate:          dates.SLA,
		LastReviewed:     dates.Generated,
		ModuleA:          buildModuleScore(ModuleAName, rec.ModuleAPercentage, moduleA),
		ModuleB:          buildModuleScore(ModuleBName, rec.ModuleBPercentage, moduleB),
		Findings:         findings,
		Recommendations:  recommendations,
		KeyStrengths:     highlights.Strengths,
		KeyGaps:          highlights.Gaps,
		WorkloadDetails:  workloadDetails(findings),
		TotalQuestions:   totalQuestions,
		EvidenceItems:    len(findings),
		ChecklistVersion: rec.ChecklistVersion,
		GapReport:        util.Deref(rec.GapReport),
		ExecutiveSummary: util.Deref(rec.ExecutiveSummary),
		RecommendRaw:     util.Deref(rec.Recommendations),
		NormalizedAt:     n.now().UTC().Format(time.RFC3339),
	}, nil
}

// WithStatus returns a copy of a carrying a reviewer's status decision. The
// argument is left untouched.
func WithStatus(a internal.NormalizedAudit, status internal.AuditStatus, reviewer, note string, at time.Time) internal.NormalizedAudit {
	previous := a.Status
	if a.StatusOverride != nil {
		previous = a.StatusOverride.Previous
	}
	out := a
	out.Status = status
	out.StatusOverride = &internal.StatusOverride{
		Previous:  previous,
		Reviewer:  reviewer,
		Note:      note,
		AppliedAt: at.UTC().Format(time.RFC3339),
	}
	return out
}

func displayName(id, auditID string) string {
	if auditID = strings.TrimSpace(auditID); auditID != "" {
		parts := strings.Split(auditID, "-")
		return "Audit " + parts[len(parts)-1]
	}
	return "Audit " + util.Truncate(strings.TrimSpace(id), 8)
}

func workloadDetails(findings []internal.Finding) []internal.WorkloadDetail {
	limit := min(len(findings), workloadDetailLimit)
	out := make([]internal.WorkloadDetail, 0, limit)
	for _, f := range findings[:limit] {
		out = append(out, internal.WorkloadDetail{
			ControlID:   f.ControlID,
			Name:        f.ControlName,
			Status:      f.StatusCode.String(),
			Score:       f.Score,
			Gap:         f.Gap,
			Description: f.Description,
		})
	}
	return out
}
