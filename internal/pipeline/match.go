package pipeline

import (
	"sort"
	"strings"

	"auditx/internal"
	"auditx/internal/config"
	"auditx/internal/util"
)

const (
	maxCandidates     = 5
	maxFuzzyScan      = 1500
	idMatchConfidence = 0.99
	idReviewScore     = 0.80
	nameMatchScore    = 0.95
	nameReviewScore   = 0.78
)

// Matcher resolves which audit an intake message refers to: an explicit
// identifier first, then an exact display name, then a fuzzy name score.
type Matcher struct {
	cfg   config.Config
	index *AuditIndex
}

func NewMatcher(cfg config.Config, audits []internal.NormalizedAudit) *Matcher {
	return &Matcher{cfg: cfg, index: BuildAuditIndex(audits)}
}

func (m *Matcher) Match(subject, body string) internal.MatchResult {
	text := util.NormalizeKey(subject + " " + body)

	if byID := m.identifierHits(text); len(byID) == 1 {
		return resolved(byID[0], idMatchConfidence, internal.ReasonID)
	} else if len(byID) > 1 {
		return review(byID, idReviewScore, internal.ReasonID)
	}

	padded := " " + text + " "
	var byName []internal.NormalizedAudit
	for name, audits := range m.index.ByName {
		if strings.Contains(padded, " "+name+" ") {
			byName = append(byName, audits...)
		}
	}
	sortAudits(byName)
	if len(byName) == 1 {
		return resolved(byName[0], nameMatchScore, internal.ReasonName)
	}
	if len(byName) > 1 {
		return review(byName, nameReviewScore, internal.ReasonName)
	}

	query := util.NormalizeKey(subject)
	if query == "" {
		query = text
	}
	candidates := m.rankCandidates(query)
	if len(candidates) == 0 {
		return internal.MatchResult{Status: internal.MatchNotFound, Confidence: 0, Reason: internal.ReasonNone, Candidates: []internal.MatchCandidate{}}
	}

	top1 := candidates[0]
	gap := top1.Score
	if len(candidates) > 1 {
		gap = top1.Score - candidates[1].Score
	}

	auditID := top1.AuditID
	switch {
	case top1.Score >= m.cfg.MatchOKThreshold && gap >= m.cfg.MatchGapThreshold:
		return internal.MatchResult{Status: internal.MatchOK, Confidence: top1.Score, Reason: internal.ReasonFuzzy, AuditID: &auditID, Candidates: candidates}
	case top1.Score >= m.cfg.MatchReviewThreshold:
		return internal.MatchResult{Status: internal.MatchReview, Confidence: top1.Score, Reason: internal.ReasonFuzzy, AuditID: &auditID, Candidates: candidates}
	default:
		return internal.MatchResult{Status: internal.MatchNotFound, Confidence: top1.Score, Reason: internal.ReasonNone, Candidates: candidates}
	}
}

func (m *Matcher) identifierHits(text string) []internal.NormalizedAudit {
	seen := map[string]bool{}
	var out []internal.NormalizedAudit
	for _, token := range strings.Fields(text) {
		token = strings.Trim(token, ".-")
		for _, a := range m.index.ByIdentifier[token] {
			if !seen[a.ID] {
				seen[a.ID] = true
				out = append(out, a)
			}
		}
	}
	sortAudits(out)
	return out
}

func (m *Matcher) rankCandidates(query string) []internal.MatchCandidate {
	queryTokens := util.Tokenize(query)
	ids := map[string]struct{}{}

	for _, token := range queryTokens {
		for id := range m.index.TokenToAuditIDs[token] {
			ids[id] = struct{}{}
		}
	}

	if len(ids) == 0 {
		i := 0
		for id := range m.index.AuditsByID {
			ids[id] = struct{}{}
			i++
			if i >= maxFuzzyScan {
				break
			}
		}
	}

	out := make([]internal.MatchCandidate, 0, len(ids))
	for id := range ids {
		a := m.index.AuditsByID[id]
		candidate := m.index.NormalizedNameByID[id]
		score := scoreName(query, candidate, queryTokens, util.Tokenize(candidate))
		out = append(out, internal.MatchCandidate{AuditID: a.ID, DisplayName: a.DisplayName, Score: score})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].AuditID < out[j].AuditID
	})
	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out
}

// scoreName blends the bigram Dice coefficient with token overlap.
func scoreName(query, candidate string, queryTokens, candidateTokens []string) float64 {
	dice := util.DiceCoefficient(query, candidate)
	if len(queryTokens) == 0 || len(candidateTokens) == 0 {
		return dice
	}

	set := map[string]struct{}{}
	for _, t := range candidateTokens {
		set[t] = struct{}{}
	}
	overlap := 0
	for _, t := range queryTokens {
		if _, ok := set[t]; ok {
			overlap++
		}
	}
	tokenScore := float64(overlap) / float64(len(queryTokens))
	return 0.65*dice + 0.35*tokenScore
}

func resolved(a internal.NormalizedAudit, confidence float64, reason internal.MatchReason) internal.MatchResult {
	id := a.ID
	return internal.MatchResult{
		Status:     internal.MatchOK,
		Confidence: confidence,
		Reason:     reason,
		AuditID:    &id,
		Candidates: []internal.MatchCandidate{{AuditID: a.ID, DisplayName: a.DisplayName, Score: confidence}},
	}
}

func review(audits []internal.NormalizedAudit, score float64, reason internal.MatchReason) internal.MatchResult {
	limit := min(len(audits), maxCandidates)
	candidates := make([]internal.MatchCandidate, 0, limit)
	for _, a := range audits[:limit] {
		candidates = append(candidates, internal.MatchCandidate{AuditID: a.ID, DisplayName: a.DisplayName, Score: score})
	}
	return internal.MatchResult{Status: internal.MatchReview, Confidence: score, Reason: reason, Candidates: candidates}
}

func sortAudits(audits []internal.NormalizedAudit) {
	sort.Slice(audits, func(i, j int) bool { return audits[i].ID < audits[j].ID })
}
