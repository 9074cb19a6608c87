package dashboard

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// WorkflowTemplate describes how one specialization is verified.
type WorkflowTemplate struct {
	ID                 string   `json:"id" yaml:"id"`
	Name               string   `json:"name" yaml:"name"`
	RequiredModules    []string `json:"requiredModules" yaml:"requiredModules"`
	WorkloadCriteria   string   `json:"workloadCriteria" yaml:"workloadCriteria"`
	CertificationReq   string   `json:"certificationReq" yaml:"certificationReq"`
	AuditFrequency     string   `json:"auditFrequency" yaml:"auditFrequency"`
	VerificationPeriod string   `json:"verificationPeriod" yaml:"verificationPeriod"`
}

func (w WorkflowTemplate) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return errors.New("workflow name is required")
	}
	return nil
}

func DefaultWorkflows() []WorkflowTemplate {
	return []WorkflowTemplate{
		{
			ID:                 "WF-001",
			Name:               "Azure AI Platform Specialization",
			RequiredModules:    []string{"AI-102", "AI-900", "DP-100"},
			WorkloadCriteria:   "Minimum 3 AI/ML workloads, 12 months runtime",
			CertificationReq:   "At least 2 employees with AI-102, DP-100, or AI-900",
			AuditFrequency:     "Quarterly",
			VerificationPeriod: "Rolling 12-month window",
		},
		{
			ID:                 "WF-002",
			Name:               "Azure Data & Analytics Specialization",
			RequiredModules:    []string{"DP-203", "DP-900"},
			WorkloadCriteria:   "3+ data platform workloads (Synapse, Data Factory, Databricks) for 12 months",
			CertificationReq:   "Minimum 2 employees with DP-203, DP-900, or DP-100",
			AuditFrequency:     "Quarterly with annual comprehensive audit",
			VerificationPeriod: "Rolling 12-month window",
		},
	}
}

type workflowFile struct {
	Workflows []WorkflowTemplate `yaml:"workflows"`
}

// LoadWorkflows returns the built-in templates merged with those in path.
// A file entry replaces the built-in one with the same ID; entries without
// an ID get the next free WF-nnn.
func LoadWorkflows(path string) ([]WorkflowTemplate, error) {
	out := DefaultWorkflows()
	if strings.TrimSpace(path) == "" {
		return out, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file workflowFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse workflow templates %s: %w", path, err)
	}

	for i, tpl := range file.Workflows {
		if err := tpl.Validate(); err != nil {
			return nil, fmt.Errorf("workflow %d in %s: %w", i+1, path, err)
		}
		if tpl.ID == "" {
			tpl.ID = NextWorkflowID(out)
		}
		if j := slices.IndexFunc(out, func(w WorkflowTemplate) bool { return w.ID == tpl.ID }); j >= 0 {
			out[j] = tpl
			continue
		}
		out = append(out, tpl)
	}
	return out, nil
}

// NextWorkflowID returns WF-nnn one above the highest numbered template.
func NextWorkflowID(templates []WorkflowTemplate) string {
	highest := 0
	for _, t := range templates {
		n, err := strconv.Atoi(strings.TrimPrefix(t.ID, "WF-"))
		if err == nil && strings.HasPrefix(t.ID, "WF-") && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("WF-%03d", highest+1)
}
