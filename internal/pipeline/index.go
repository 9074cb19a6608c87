package pipeline

import (
	"auditx/internal"
	"auditx/internal/util"
)

// AuditIndex is the lookup structure the intake matcher resolves message
// references against. Keys are util.NormalizeKey forms.
type AuditIndex struct {
	AuditsByID         map[string]internal.NormalizedAudit
	ByIdentifier       map[string][]internal.NormalizedAudit
	ByName             map[string][]internal.NormalizedAudit
	TokenToAuditIDs    map[string]map[string]struct{}
	NormalizedNameByID map[string]string
}

func BuildAuditIndex(audits []internal.NormalizedAudit) *AuditIndex {
	idx := &AuditIndex{
		AuditsByID:         map[string]internal.NormalizedAudit{},
		ByIdentifier:       map[string][]internal.NormalizedAudit{},
		ByName:             map[string][]internal.NormalizedAudit{},
		TokenToAuditIDs:    map[string]map[string]struct{}{},
		NormalizedNameByID: map[string]string{},
	}

	for _, a := range audits {
		idx.AuditsByID[a.ID] = a

		addIdentifier := func(v string) {
			key := util.NormalizeKey(v)
			if key == "" {
				return
			}
			for _, existing := range idx.ByIdentifier[key] {
				if existing.ID == a.ID {
					return
				}
			}
			idx.ByIdentifier[key] = append(idx.ByIdentifier[key], a)
		}
		addIdentifier(a.ID)
		addIdentifier(a.AuditID)

		name := util.NormalizeKey(a.DisplayName)
		if name != "" {
			idx.ByName[name] = append(idx.ByName[name], a)
		}
		searchable := util.NormalizeKey(a.DisplayName + " " + a.AuditID)
		idx.NormalizedNameByID[a.ID] = searchable

		for _, token := range util.Tokenize(searchable) {
			if _, ok := idx.TokenToAuditIDs[token]; !ok {
				idx.TokenToAuditIDs[token] = map[string]struct{}{}
			}
			idx.TokenToAuditIDs[token][a.ID] = struct{}{}
		}
	}

	return idx
}
