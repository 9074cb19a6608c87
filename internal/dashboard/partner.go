package dashboard

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"auditx/internal"
)

type Specialization struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	RequiredDocs []string `json:"requiredDocs"`
}

var specializations = []Specialization{
	{ID: "ai-platform", Name: "AI Platform on Microsoft Azure Specialization", RequiredDocs: []string{"Customer References", "Workload Screenshots", "Certification Proof", "Architecture Diagrams"}},
	{ID: "analytics", Name: "Analytics on Azure Specialization", RequiredDocs: []string{"Data Pipeline Configs", "Synapse Workspaces", "Performance Reports", "Certification Proof"}},
	{ID: "kubernetes", Name: "Kubernetes on Microsoft Azure Specialization", RequiredDocs: []string{"AKS Cluster Configs", "Deployment YAMLs", "Monitoring Dashboards", "Certification Proof"}},
	{ID: "security", Name: "Azure Security Specialization", RequiredDocs: []string{"Security Assessments", "Sentinel Configs", "Compliance Reports", "Certification Proof"}},
	{ID: "devops", Name: "DevOps with Azure and GitHub", RequiredDocs: []string{"Pipeline Configs", "CI/CD Evidence", "GitHub Actions Logs", "Certification Proof"}},
	{ID: "sap", Name: "SAP on Microsoft Azure Specialization", RequiredDocs: []string{"SAP Landscape Diagrams", "Performance Metrics", "Migration Evidence", "Certification Proof"}},
}

func Specializations() []Specialization {
	out := make([]Specialization, len(specializations))
	copy(out, specializations)
	return out
}

// LookupSpecialization matches by ID or, case-insensitively, by name.
func LookupSpecialization(key string) (Specialization, bool) {
	key = strings.TrimSpace(key)
	for _, s := range specializations {
		if s.ID == key || strings.EqualFold(s.Name, key) {
			return s, true
		}
	}
	return Specialization{}, false
}

var (
	ErrUnknownSpecialization = errors.New("unknown specialization")
	ErrNoEvidenceFiles       = errors.New("at least one evidence file is required")
)

// NewSubmission builds a pending partner submission for uploaded files.
func NewSubmission(specialization, auditID string, files []string, now time.Time) (internal.PartnerSubmission, error) {
	spec, ok := LookupSpecialization(specialization)
	if !ok {
		return internal.PartnerSubmission{}, ErrUnknownSpecialization
	}
	if len(files) == 0 {
		return internal.PartnerSubmission{}, ErrNoEvidenceFiles
	}
	now = now.UTC()
	return internal.PartnerSubmission{
		ID:             "SUB-" + strconv.FormatInt(now.UnixMilli(), 10),
		Date:           now.Format(time.DateOnly),
		Specialization: spec.Name,
		AuditID:        strings.TrimSpace(auditID),
		Files:          append([]string(nil), files...),
		Status:         internal.StatusPendingReview,
	}, nil
}
