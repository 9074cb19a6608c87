package pipeline

import (
	"strings"

	"auditx/internal"
	"auditx/internal/util"
)

// DefaultModuleTotal is the control count shown for a module when no
// findings were parsed for it.
// TODO: drop once the checklist owners confirm totals should always equal
// the number of parsed findings.
const DefaultModuleTotal = 7

const (
	ModuleAPrefix = "A-"
	ModuleBPrefix = "B-"

	ModuleAName = "Foundation"
	ModuleBName = "Implementation"

	controlNameMaxRunes = 50
)

// ComputeModuleStats counts findings per score band for one module.
func ComputeModuleStats(findings []internal.Finding) internal.ModuleStats {
	stats := internal.ModuleStats{}
	for _, f := range findings {
		switch ClassifyControl(f.Score) {
		case internal.FindingPass:
			stats.Passed++
		case internal.FindingPartial:
			stats.Partial++
		default:
			stats.Failed++
		}
	}
	stats.Total = len(findings)
	if stats.Total == 0 {
		stats.Total = DefaultModuleTotal
	}
	return stats
}

// PartitionFindings splits findings by control-ID prefix, preserving order.
// Findings with any other prefix belong to neither module.
func PartitionFindings(findings []internal.Finding) (moduleA, moduleB []internal.Finding) {
	moduleA = []internal.Finding{}
	moduleB = []internal.Finding{}
	for _, f := range findings {
		switch {
		case strings.HasPrefix(f.ControlID, ModuleAPrefix):
			moduleA = append(moduleA, f)
		case strings.HasPrefix(f.ControlID, ModuleBPrefix):
			moduleB = append(moduleB, f)
		}
	}
	return moduleA, moduleB
}

func buildModuleScore(name string, percentage *float64, findings []internal.Finding) internal.ModuleScore {
	score := 0.0
	if percentage != nil {
		score = util.RoundTo1(*percentage)
	}
	controls := make([]internal.ControlScore, 0, len(findings))
	for _, f := range findings {
		controls = append(controls, internal.ControlScore{
			ControlID:   f.ControlID,
			ControlName: controlName(f),
			Score:       f.Score,
			Weight:      1,
			Status:      f.StatusCode.String(),
		})
	}
	return internal.ModuleScore{
		ModuleName: name,
		Score:      score,
		Stats:      ComputeModuleStats(findings),
		Findings:   findings,
		Controls:   controls,
	}
}

func controlName(f internal.Finding) string {
	if f.Description == "" {
		return "Control " + f.ControlID
	}
	return util.Truncate(f.Description, controlNameMaxRunes)
}
