package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditx/internal/util"
)

func TestDecodeDocumentCosmosShape(t *testing.T) {
	raw := []byte(`{
		"id": "doc-1",
		"auditId": "AUD-2026-0042",
		"generatedAt": "2026-02-13T19:20:09Z",
		"overallPercentage": 91.25,
		"moduleAPercentage": "88.5%",
		"moduleBPercentage": 94,
		"gapReport": "[A-1.1] Gap: 0.3 | Score: 80% | desc",
		"checklistVersion": "v2.1",
		"totalQuestions": 16
	}`)

	rec, err := DecodeDocument(raw)
	require.NoError(t, err)
	assert.Equal(t, VariantCosmos, rec.Variant)
	assert.Equal(t, "doc-1", rec.ID)
	assert.Equal(t, "2026-02-13T19:20:09Z", rec.GeneratedAt)
	require.NotNil(t, rec.OverallPercentage)
	assert.Equal(t, 91.25, *rec.OverallPercentage)
	require.NotNil(t, rec.ModuleAPercentage)
	assert.Equal(t, 88.5, *rec.ModuleAPercentage)
	require.NotNil(t, rec.TotalQuestions)
	assert.Equal(t, 16, *rec.TotalQuestions)
	assert.Nil(t, rec.Recommendations)
	require.NotNil(t, rec.GapReport)
}

func TestDecodeDocumentLegacyShape(t *testing.T) {
	raw := []byte(`{
		"auditId": "AUD-2025-0007",
		"timestamp": "2025-11-02T10:00:00Z",
		"overallScore": 68,
		"moduleAScore": {"score": 72.5},
		"moduleBScore": 61
	}`)

	rec, err := DecodeDocument(raw)
	require.NoError(t, err)
	assert.Equal(t, VariantLegacy, rec.Variant)
	assert.Equal(t, "2025-11-02T10:00:00Z", rec.GeneratedAt)
	require.NotNil(t, rec.OverallPercentage)
	assert.Equal(t, 68.0, *rec.OverallPercentage)
	require.NotNil(t, rec.ModuleAPercentage)
	assert.Equal(t, 72.5, *rec.ModuleAPercentage)
	require.NotNil(t, rec.ModuleBPercentage)
	assert.Equal(t, 61.0, *rec.ModuleBPercentage)

	got, err := fixedNormalizer().Normalize(rec)
	require.NoError(t, err)
	assert.Equal(t, "AUD-2025-0007", got.ID)
	assert.Equal(t, "2025-12-02", got.DueDate)
}

func TestDecodeDocumentIgnoresWrongTypes(t *testing.T) {
	rec, err := DecodeDocument([]byte(`{"id": 42, "overallPercentage": "n/a", "gapReport": 7, "generatedAt": null}`))
	require.NoError(t, err)
	assert.Equal(t, "42", rec.ID)
	assert.Nil(t, rec.OverallPercentage)
	assert.Nil(t, rec.GapReport)
	assert.Equal(t, "", rec.GeneratedAt)

	got, err := fixedNormalizer().Normalize(rec)
	require.NoError(t, err)
	assert.Equal(t, NotAvailable, got.DueDate)
}

func TestDecodeDocumentRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{`[]`, `"text"`, `null`, `{broken`} {
		_, err := DecodeDocument([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedDocument, "raw=%s", raw)
	}
}

func TestDecodeDocumentOutOfRangeScores(t *testing.T) {
	rec, err := DecodeDocument([]byte(`{"id": "doc-3", "overallPercentage": 150, "moduleAPercentage": -2, "moduleBPercentage": 100}`))
	require.NoError(t, err)
	assert.Nil(t, rec.OverallPercentage)
	assert.Nil(t, rec.ModuleAPercentage)
	require.NotNil(t, rec.ModuleBPercentage)
	assert.Equal(t, 100.0, *rec.ModuleBPercentage)

	got, err := fixedNormalizer().Normalize(rec)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.OverallScore)
	assert.Equal(t, "rejected", string(got.Status))
}

func TestDecodeDocumentMixedFieldNames(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		variant string
		score   float64
		status  string
		due     string
		sla     string
		moduleA *float64
	}{
		{
			name:    "generatedAt with overallScore",
			raw:     `{"id":"x","generatedAt":"2026-02-13T19:20:09Z","overallScore":91}`,
			variant: VariantCosmos,
			score:   91,
			status:  "approved",
			due:     "2026-03-15",
			sla:     "2026-03-30",
		},
		{
			name:    "overallPercentage with timestamp",
			raw:     `{"id":"x","overallPercentage":91,"timestamp":"2026-02-13T19:20:09Z"}`,
			variant: VariantCosmos,
			score:   91,
			status:  "approved",
			due:     "2026-03-15",
			sla:     "2026-03-30",
		},
		{
			name:    "legacy shape with cosmos module percentage",
			raw:     `{"auditId":"AUD-2025-0007","timestamp":"2026-02-13T19:20:09Z","overallScore":75,"moduleAPercentage":64}`,
			variant: VariantLegacy,
			score:   75,
			status:  "pending_review",
			due:     "2026-03-15",
			sla:     "2026-03-30",
			moduleA: util.FloatPtr(64),
		},
		{
			name:    "both namings present prefers the detected variant",
			raw:     `{"id":"x","generatedAt":"2026-02-13T19:20:09Z","timestamp":"2025-01-01T00:00:00Z","overallPercentage":65,"overallScore":95}`,
			variant: VariantCosmos,
			score:   65,
			status:  "rejected",
			due:     "2026-03-15",
			sla:     "2026-03-30",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := DecodeDocument([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.variant, rec.Variant)
			if tt.moduleA != nil {
				require.NotNil(t, rec.ModuleAPercentage)
				assert.Equal(t, *tt.moduleA, *rec.ModuleAPercentage)
			}

			got, err := fixedNormalizer().Normalize(rec)
			require.NoError(t, err)
			assert.Equal(t, tt.score, got.OverallScore)
			assert.Equal(t, tt.status, string(got.Status))
			assert.Equal(t, tt.due, got.DueDate)
			assert.Equal(t, tt.sla, got.SLADate)
		})
	}
}
