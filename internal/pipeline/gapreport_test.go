package pipeline

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditx/internal"
)

func TestParseGapReportStatusBoundaries(t *testing.T) {
	cases := []struct {
		score int
		want  internal.FindingStatus
	}{
		{score: 100, want: internal.FindingPass},
		{score: 90, want: internal.FindingPass},
		{score: 89, want: internal.FindingPartial},
		{score: 70, want: internal.FindingPartial},
		{score: 69, want: internal.FindingFail},
		{score: 0, want: internal.FindingFail},
	}

	for _, tc := range cases {
		line := "[A-1.1] Gap: 0.1 | Score: " + strconv.Itoa(tc.score) + "% | boundary"
		findings := ParseGapReport(line)
		require.Len(t, findings, 1)
		assert.Equal(t, tc.score, findings[0].Score)
		assert.Equal(t, tc.want, findings[0].StatusCode, "score=%d", tc.score)
	}
}

func TestParseGapReportSortsByGapDescending(t *testing.T) {
	report := "[A-1.1] Gap: 0.2 | Score: 80% | first\n" +
		"[A-1.2] Gap: 0.9 | Score: 40% | second\n" +
		"[B-2.1] Gap: 0.5 | Score: 75% | third"

	findings := ParseGapReport(report)
	require.Len(t, findings, 3)
	assert.Equal(t, []float64{0.9, 0.5, 0.2}, []float64{findings[0].Gap, findings[1].Gap, findings[2].Gap})
	assert.Equal(t, "A-1.2", findings[0].ControlID)
}

func TestParseGapReportKeepsLineOrderOnTies(t *testing.T) {
	report := "[A-1.1] Gap: 0.5 | Score: 80% | one\r\n[A-1.2] Gap: 0.5 | Score: 80% | two\r\n[A-1.3] Gap: 0.5 | Score: 80% | three"
	findings := ParseGapReport(report)
	require.Len(t, findings, 3)
	assert.Equal(t, "one", findings[0].Description)
	assert.Equal(t, "two", findings[1].Description)
	assert.Equal(t, "three", findings[2].Description)
}

func TestParseGapReportDropsMalformedLines(t *testing.T) {
	findings := ParseGapReport("garbage\n[A-1.1] Gap: 0.3 | Score: 80% | desc")
	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, "A-1.1", f.ControlID)
	assert.Equal(t, "Control A-1.1", f.ControlName)
	assert.Equal(t, 0.3, f.Gap)
	assert.Equal(t, 80, f.Score)
	assert.Equal(t, "desc", f.Description)
	assert.Equal(t, internal.FindingPartial, f.StatusCode)
}

func TestParseGapReportRejectsUnparsableNumbers(t *testing.T) {
	report := "[A-1.1] Gap: 1.2.3 | Score: 80% | bad gap\n" +
		"[A-1.2] Gap: 0.4 | Score: 99999999999999999999% | bad score\n" +
		"[A-1.3] Gap: 0.4 | Score: 140% | out of range\n" +
		"[C-1.1] Gap: 0.4 | Score: 50% | unknown module\n" +
		"[A-1.4] Gap: 0.4 | Score: 50% | kept"
	findings := ParseGapReport(report)
	require.Len(t, findings, 1)
	assert.Equal(t, "A-1.4", findings[0].ControlID)
}

func TestParseGapReportEmpty(t *testing.T) {
	assert.Empty(t, ParseGapReport(""))
	assert.Empty(t, ParseGapReport("  \n\n "))
	assert.NotNil(t, ParseGapReport(""))
}
