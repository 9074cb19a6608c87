package pipeline

import (
	"regexp"
	"strings"

	"auditx/internal/util"
)

const (
	strengthsHeader = "### Top 3 Strengths"
	gapsHeader      = "### Top 3 Critical Gaps"
	sectionMarker   = "###"
)

var numberedItem = regexp.MustCompile(`^\d+\.\s*`)

type SummaryHighlights struct {
	Strengths []string
	Gaps      []string
}

// ParseExecutiveSummary extracts the numbered items under the strengths and
// critical-gaps headings. A missing heading yields an empty list.
func ParseExecutiveSummary(summary string) SummaryHighlights {
	return SummaryHighlights{
		Strengths: numberedItems(section(summary, strengthsHeader)),
		Gaps:      numberedItems(section(summary, gapsHeader)),
	}
}

// section returns the text after header up to the next "###" or the end.
func section(text, header string) string {
	start := strings.Index(text, header)
	if start < 0 {
		return ""
	}
	body := text[start+len(header):]
	if end := strings.Index(body, sectionMarker); end >= 0 {
		body = body[:end]
	}
	return body
}

func numberedItems(body string) []string {
	items := []string{}
	for _, line := range util.SplitLines(body) {
		line = strings.TrimSpace(line)
		loc := numberedItem.FindStringIndex(line)
		if loc == nil {
			continue
		}
		if item := stripBold(line[loc[1]:]); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// stripBold keeps the text inside a leading **...** wrapper, or the text
// before any later bold marker.
func stripBold(item string) string {
	if rest, ok := strings.CutPrefix(item, "**"); ok {
		item = rest
	}
	if idx := strings.Index(item, "**"); idx >= 0 {
		item = item[:idx]
	}
	return strings.TrimSpace(item)
}
