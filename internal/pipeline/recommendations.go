package pipeline

import (
	"regexp"
	"strings"

	"auditx/internal"
	"auditx/internal/util"
)

var recommendationHeader = regexp.MustCompile(`\[(` + controlIDPattern + `)\]:`)

// ParseRecommendations splits the recommendations text on "[<ControlId>]:"
// headers. Each group keeps the "-" bullet lines that follow its header;
// a header without bullets still yields a group with no items.
func ParseRecommendations(text string) []internal.RecommendationGroup {
	out := []internal.RecommendationGroup{}
	if strings.TrimSpace(text) == "" {
		return out
	}

	headers := recommendationHeader.FindAllStringSubmatchIndex(text, -1)
	for i, h := range headers {
		bodyEnd := len(text)
		if i+1 < len(headers) {
			bodyEnd = headers[i+1][0]
		}
		out = append(out, internal.RecommendationGroup{
			ControlID: text[h[2]:h[3]],
			Items:     bulletItems(text[h[1]:bodyEnd]),
		})
	}
	return out
}

func bulletItems(body string) []string {
	items := []string{}
	for _, line := range util.SplitLines(body) {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "-") {
			continue
		}
		items = append(items, strings.TrimSpace(strings.TrimPrefix(line, "-")))
	}
	return items
}
