package pipeline

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"auditx/internal"
)

const (
	auditsSheet   = "Audits"
	findingsSheet = "Findings"
)

var (
	auditHeaders = []string{
		"id", "audit_id", "display_name", "status", "status_override", "overall_score",
		"module_a_score", "module_b_score", "generated_at", "due_date", "sla_date",
		"findings", "passed", "partial", "failed", "checklist_version",
	}
	findingHeaders = []string{
		"audit_id", "module", "control_id", "control_name", "score", "gap", "status", "description",
	}
)

// ExportAuditsToXLSX writes one row per audit to the Audits sheet and one row
// per finding to the Findings sheet.
func ExportAuditsToXLSX(audits []internal.NormalizedAudit, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), auditsSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(findingsSheet); err != nil {
		return err
	}
	writeHeader(f, auditsSheet, auditHeaders)
	writeHeader(f, findingsSheet, findingHeaders)

	findingRow := 2
	for i, a := range audits {
		r := i + 2
		set := rowSetter(f, auditsSheet, r)

		stats := internal.ModuleStats{}
		for _, fd := range a.Findings {
			switch fd.StatusCode {
			case internal.FindingPass:
				stats.Passed++
			case internal.FindingPartial:
				stats.Partial++
			default:
				stats.Failed++
			}
		}

		override := ""
		if a.StatusOverride != nil {
			override = string(a.StatusOverride.Previous) + " -> " + string(a.Status)
		}

		set(1, a.ID)
		set(2, a.AuditID)
		set(3, a.DisplayName)
		set(4, string(a.Status))
		set(5, override)
		set(6, a.OverallScore)
		set(7, a.ModuleA.Score)
		set(8, a.ModuleB.Score)
		set(9, a.GeneratedAt)
		set(10, a.DueDate)
		set(11, a.SLADate)
		set(12, len(a.Findings))
		set(13, stats.Passed)
		set(14, stats.Partial)
		set(15, stats.Failed)
		set(16, a.ChecklistVersion)

		for _, fd := range a.Findings {
			setF := rowSetter(f, findingsSheet, findingRow)
			setF(1, a.AuditID)
			setF(2, moduleOf(fd.ControlID))
			setF(3, fd.ControlID)
			setF(4, fd.ControlName)
			setF(5, fd.Score)
			setF(6, fd.Gap)
			setF(7, fd.StatusCode.String())
			setF(8, fd.Description)
			findingRow++
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func writeHeader(f *excelize.File, sheet string, headers []string) {
	set := rowSetter(f, sheet, 1)
	for i, h := range headers {
		set(i+1, h)
	}
}

func rowSetter(f *excelize.File, sheet string, row int) func(col int, value any) {
	return func(col int, value any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, value)
	}
}

func moduleOf(controlID string) string {
	switch {
	case strings.HasPrefix(controlID, ModuleAPrefix):
		return ModuleAName
	case strings.HasPrefix(controlID, ModuleBPrefix):
		return ModuleBName
	}
	return ""
}
