package pipeline

import (
	"path/filepath"
	"regexp"
	"strings"
)

type DetectResult struct {
	IsEvidence bool
	Score      float64
	Reason     string
	ControlIDs []string
}

const detectThreshold = 0.45

var (
	evidenceKeywords = []string{"evidence", "audit", "specialization", "submission", "attached", "proof", "certification", "poc", "architecture", "workload"}

	evidenceExtensions = map[string]bool{
		".pdf": true, ".xlsx": true, ".xls": true, ".docx": true, ".pptx": true,
		".png": true, ".jpg": true, ".jpeg": true, ".zip": true, ".eml": true,
		".txt": true, ".csv": true, ".md": true, ".json": true, ".html": true,
	}

	controlMention = regexp.MustCompile(`\b` + controlIDPattern + `\b`)
	auditReference = regexp.MustCompile(`(?i)\baud(?:it)?[-\s]?\d[\w-]*`)
)

// DetectEvidenceSubmission scores how likely a message is a partner sending
// audit evidence. Control-ID mentions and evidence attachments weigh more
// than keywords.
func DetectEvidenceSubmission(subject, text, html string, attachmentNames []string) DetectResult {
	lowerSubject := strings.ToLower(subject)
	lowerBody := strings.ToLower(text) + "\n" + strings.ToLower(html)

	score := 0.0
	for _, kw := range evidenceKeywords {
		if strings.Contains(lowerSubject, kw) {
			score += 0.2
		}
		if strings.Contains(lowerBody, kw) {
			score += 0.1
		}
	}

	controls := uniqueMatches(controlMention, subject+"\n"+text)
	switch {
	case len(controls) >= 2:
		score += 0.4
	case len(controls) == 1:
		score += 0.2
	}

	if auditReference.MatchString(subject) || auditReference.MatchString(text) {
		score += 0.3
	}

	for _, name := range attachmentNames {
		if evidenceExtensions[strings.ToLower(filepath.Ext(name))] {
			score += 0.25
			break
		}
	}

	if score > 1 {
		score = 1
	}

	isEvidence := score >= detectThreshold
	reason := "rules_negative"
	if isEvidence {
		reason = "rules_positive"
	}

	return DetectResult{IsEvidence: isEvidence, Score: score, Reason: reason, ControlIDs: controls}
}

func uniqueMatches(re *regexp.Regexp, text string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, m := range re.FindAllString(text, -1) {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}
