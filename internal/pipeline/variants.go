package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"auditx/internal"
	"auditx/internal/util"
)

const (
	VariantCosmos = "cosmos"
	VariantLegacy = "legacy"
)

var ErrMalformedDocument = errors.New("audit document is not a JSON object")

// DecodeDocument decodes one stored audit document and adapts it to the
// canonical record shape.
func DecodeDocument(raw []byte) (internal.RawAuditRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return internal.RawAuditRecord{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if doc == nil {
		return internal.RawAuditRecord{}, ErrMalformedDocument
	}
	return AdaptDocument(doc), nil
}

// DetectVariant tells the generated Cosmos shape from the older shape that
// used timestamp/overallScore naming.
func DetectVariant(doc map[string]any) string {
	_, hasGenerated := doc["generatedAt"]
	_, hasOverallPct := doc["overallPercentage"]
	_, hasTimestamp := doc["timestamp"]
	_, hasOverallScore := doc["overallScore"]
	if !hasGenerated && !hasOverallPct && (hasTimestamp || hasOverallScore) {
		return VariantLegacy
	}
	return VariantCosmos
}

// AdaptDocument maps either shape onto the canonical record. Aliased fields
// (generatedAt/timestamp, overallPercentage/overallScore and the module
// scores) fall back to each other, the detected variant's naming first, so
// documents mixing both namings keep their values.
func AdaptDocument(doc map[string]any) internal.RawAuditRecord {
	rec := internal.RawAuditRecord{
		ID:               util.ToString(doc["id"]),
		AuditID:          util.ToString(doc["auditId"]),
		GapReport:        util.ToStringPtr(doc["gapReport"]),
		Recommendations:  util.ToStringPtr(doc["recommendations"]),
		ExecutiveSummary: util.ToStringPtr(doc["executiveSummary"]),
		ChecklistVersion: util.ToString(doc["checklistVersion"]),
		TotalQuestions:   util.ToIntPtr(doc["totalQuestions"]),
		Variant:          DetectVariant(doc),
	}

	generated := []string{"generatedAt", "timestamp"}
	overall := []string{"overallPercentage", "overallScore"}
	moduleA := []string{"moduleAPercentage", "moduleAScore"}
	moduleB := []string{"moduleBPercentage", "moduleBScore"}
	if rec.Variant == VariantLegacy {
		for _, keys := range [][]string{generated, overall, moduleA, moduleB} {
			keys[0], keys[1] = keys[1], keys[0]
		}
	}

	for _, key := range generated {
		if rec.GeneratedAt = util.ToString(doc[key]); rec.GeneratedAt != "" {
			break
		}
	}
	rec.OverallPercentage = firstPercentage(doc, overall...)
	rec.ModuleAPercentage = firstPercentage(doc, moduleA...)
	rec.ModuleBPercentage = firstPercentage(doc, moduleB...)
	return rec
}

func firstPercentage(doc map[string]any, keys ...string) *float64 {
	for _, key := range keys {
		if f := moduleScore(doc[key]); f != nil {
			return f
		}
	}
	return nil
}

// moduleScore reads a score stored either as a bare number or as an object
// carrying a "score" field.
func moduleScore(v any) *float64 {
	if obj, ok := v.(map[string]any); ok {
		return percentage(obj["score"])
	}
	return percentage(v)
}

// percentage reads a 0-100 score. Values outside the range are malformed and
// read as absent.
func percentage(v any) *float64 {
	f := util.ToFloatPtr(v)
	if f == nil || *f < 0 || *f > 100 {
		return nil
	}
	return f
}
