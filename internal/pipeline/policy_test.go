package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"auditx/internal"
)

func TestClassifyAudit(t *testing.T) {
	cases := []struct {
		score float64
		want  internal.AuditStatus
	}{
		{score: 35, want: internal.StatusRejected},
		{score: 69.9, want: internal.StatusRejected},
		{score: 70, want: internal.StatusPendingReview},
		{score: 75, want: internal.StatusPendingReview},
		{score: 89.99, want: internal.StatusPendingReview},
		{score: 90, want: internal.StatusApproved},
		{score: 91, want: internal.StatusApproved},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyAudit(tc.score), "score=%v", tc.score)
	}
}

func TestClassifyControlAgreesWithAuditBands(t *testing.T) {
	pairs := map[internal.FindingStatus]internal.AuditStatus{
		internal.FindingPass:    internal.StatusApproved,
		internal.FindingPartial: internal.StatusPendingReview,
		internal.FindingFail:    internal.StatusRejected,
	}
	for score := 0; score <= 100; score++ {
		assert.Equal(t, pairs[ClassifyControl(score)], ClassifyAudit(float64(score)), "score=%d", score)
	}
}

func TestDeriveDates(t *testing.T) {
	got := DeriveDates("2026-02-13T19:20:09Z")
	assert.Equal(t, "2026-02-13", got.Generated)
	assert.Equal(t, "2026-03-15", got.Due)
	assert.Equal(t, "2026-03-30", got.SLA)
}

func TestDeriveDatesAcceptsOtherISOForms(t *testing.T) {
	assert.Equal(t, "2026-03-15", DeriveDates("2026-02-13T19:20:09.123456Z").Due)
	assert.Equal(t, "2026-03-15", DeriveDates("2026-02-13T19:20:09").Due)
	assert.Equal(t, "2026-03-15", DeriveDates("2026-02-13").Due)
	// Late evening in a negative offset is already the next day in UTC.
	assert.Equal(t, "2026-03-16", DeriveDates("2026-02-13T22:00:00-05:00").Due)
}

func TestDeriveDatesUnparsable(t *testing.T) {
	for _, in := range []string{"", "yesterday", "2026-13-45T00:00:00Z"} {
		got := DeriveDates(in)
		assert.Equal(t, DerivedDates{Generated: NotAvailable, Due: NotAvailable, SLA: NotAvailable}, got, "input=%q", in)
	}
}
