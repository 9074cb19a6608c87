package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecommendations(t *testing.T) {
	groups := ParseRecommendations("[A-1.1]:\n- fix X\n- fix Y\n[B-2.1]:\ntext")
	require.Len(t, groups, 2)
	assert.Equal(t, "A-1.1", groups[0].ControlID)
	assert.Equal(t, []string{"fix X", "fix Y"}, groups[0].Items)
	assert.Equal(t, "B-2.1", groups[1].ControlID)
	assert.Equal(t, []string{}, groups[1].Items)
}

func TestParseRecommendationsKeepsTrailingEmptyHeader(t *testing.T) {
	groups := ParseRecommendations("intro text\n[A-2.1]:\n  -   indented bullet  \n[B-1.1]:")
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"indented bullet"}, groups[0].Items)
	assert.Equal(t, "B-1.1", groups[1].ControlID)
	assert.Empty(t, groups[1].Items)
}

func TestParseRecommendationsHeaderOrder(t *testing.T) {
	groups := ParseRecommendations("[B-3.1]: - same line bullet\nnote\n- real\n[A-1.1]:\n- other")
	require.Len(t, groups, 2)
	assert.Equal(t, "B-3.1", groups[0].ControlID)
	assert.Equal(t, []string{"same line bullet", "real"}, groups[0].Items)
	assert.Equal(t, "A-1.1", groups[1].ControlID)
}

func TestParseRecommendationsEmpty(t *testing.T) {
	assert.Empty(t, ParseRecommendations(""))
	assert.Empty(t, ParseRecommendations("no headers here\n- orphan bullet"))
}
