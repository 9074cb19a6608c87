package dashboard

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditx/internal"
)

func TestLoadWorkflows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflows.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workflows:
  - id: WF-002
    name: Analytics on Azure Specialization
    requiredModules: [DP-203]
    auditFrequency: Annual
  - name: Azure Security Specialization
    requiredModules: [SC-100, AZ-500]
`), 0o644))

	got, err := LoadWorkflows(path)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Azure AI Platform Specialization", got[0].Name)
	assert.Equal(t, "Analytics on Azure Specialization", got[1].Name)
	assert.Equal(t, []string{"DP-203"}, got[1].RequiredModules)
	assert.Equal(t, "WF-003", got[2].ID)
	assert.Equal(t, []string{"SC-100", "AZ-500"}, got[2].RequiredModules)
}

func TestLoadWorkflowsDefaultsAndErrors(t *testing.T) {
	got, err := LoadWorkflows("")
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkflows(), got)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workflows:\n  - id: WF-9\n"), 0o644))
	_, err = LoadWorkflows(path)
	assert.ErrorContains(t, err, "workflow name is required")

	_, err = LoadWorkflows(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNextWorkflowID(t *testing.T) {
	assert.Equal(t, "WF-001", NextWorkflowID(nil))
	assert.Equal(t, "WF-011", NextWorkflowID([]WorkflowTemplate{{ID: "WF-010"}, {ID: "custom"}, {ID: "WF-002"}}))
}

func TestNewSubmission(t *testing.T) {
	now := time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC)
	sub, err := NewSubmission("kubernetes", "AUD-7", []string{"AUD-7/1-aks.yaml"}, now)
	require.NoError(t, err)
	assert.Equal(t, internal.PartnerSubmission{
		ID:             "SUB-1771056000000",
		Date:           "2026-02-14",
		Specialization: "Kubernetes on Microsoft Azure Specialization",
		AuditID:        "AUD-7",
		Files:          []string{"AUD-7/1-aks.yaml"},
		Status:         internal.StatusPendingReview,
	}, sub)

	_, err = NewSubmission("mainframe", "", []string{"x"}, now)
	assert.ErrorIs(t, err, ErrUnknownSpecialization)
	_, err = NewSubmission("Azure Security Specialization", "", nil, now)
	assert.ErrorIs(t, err, ErrNoEvidenceFiles)
}
