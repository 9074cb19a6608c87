package pipeline

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"auditx/internal"
	"auditx/internal/util"
)

const controlIDPattern = `[A-B]-\d+\.\d+`

// Gap report line grammar:
//
//	[<ControlId>] Gap: <float> | Score: <int>% | <description>
var gapLinePattern = regexp.MustCompile(`\[(` + controlIDPattern + `)\]\s*Gap:\s*([\d.]+)\s*\|\s*Score:\s*(\d+)%\s*\|\s*(.*)`)

// ParseGapReport turns the free-text gap report into findings sorted by gap,
// largest first. Lines that do not fit the grammar are dropped.
func ParseGapReport(report string) []internal.Finding {
	out := []internal.Finding{}
	if strings.TrimSpace(report) == "" {
		return out
	}

	for _, line := range util.SplitLines(report) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		finding, ok := parseGapLine(line)
		if !ok {
			continue
		}
		out = append(out, finding)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Gap > out[j].Gap })
	return out
}

func parseGapLine(line string) (internal.Finding, bool) {
	m := gapLinePattern.FindStringSubmatch(line)
	if m == nil {
		return internal.Finding{}, false
	}
	gap, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return internal.Finding{}, false
	}
	score, err := strconv.Atoi(m[3])
	if err != nil || score > 100 {
		return internal.Finding{}, false
	}
	return internal.Finding{
		ControlID:   m[1],
		ControlName: "Control " + m[1],
		Gap:         gap,
		Score:       score,
		Description: strings.TrimSpace(m[4]),
		StatusCode:  ClassifyControl(score),
	}, true
}
