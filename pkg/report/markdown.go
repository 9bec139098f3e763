package report

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/tunogya/runqa/pkg/model"
	"github.com/tunogya/runqa/pkg/pipeline"
)

const maxCauseWidth = 60

// Markdown renders the human-readable verdict report of a pass.
// contexts may be nil.
func Markdown(res *pipeline.Result, contexts map[int]model.RunContext) []byte {
	var b bytes.Buffer
	verdicts := res.Verdicts()
	tally := res.Tally()

	b.WriteString("# QA Verdict Report\n\n")
	fmt.Fprintf(&b, "Pass `%s`, generated %s.\n\n", res.PassID, res.StartedAt.Format("2006-01-02 15:04:05 MST"))

	// Summary
	b.WriteString("## Summary\n\n")
	b.WriteString("| | Count |\n|---|---|\n")
	fmt.Fprintf(&b, "| Total runs | %d |\n", tally.Total())
	fmt.Fprintf(&b, "| GOOD | %d |\n", tally.Good)
	fmt.Fprintf(&b, "| SUSPECT | %d |\n", tally.Suspect)
	fmt.Fprintf(&b, "| BAD | %d |\n\n", tally.Bad)
	fmt.Fprintf(&b, "**Overall: %s**\n\n", tally.Recommendation())

	// Per-run table
	b.WriteString("## Per-Run Verdicts\n\n")
	b.WriteString("| Run | Verdict | Good | Suspect | Bad | Worst Metric |\n")
	b.WriteString("|-----|---------|------|---------|-----|--------------|\n")
	for _, rv := range res.Runs {
		badge := string(rv.Verdict)
		if rv.Verdict == model.VerdictBad {
			badge = "**BAD**"
		}
		fmt.Fprintf(&b, "| %d | %s | %d | %d | %d | %s |\n", rv.Run, badge, rv.NGood, rv.NSuspect, rv.NBad, rv.WorstMetric)
	}
	b.WriteString("\n")

	// Flagged runs
	b.WriteString("## Flagged Runs: Detailed Diagnosis\n\n")
	for _, rv := range res.Runs {
		if rv.Verdict == model.VerdictGood {
			continue
		}
		fmt.Fprintf(&b, "### Run %d: %s\n\n", rv.Run, rv.Verdict)

		if c, ok := contexts[rv.Run]; ok && (c.Dead > 0 || c.Hot > 0) {
			fmt.Fprintf(&b, "**Detector health**: %d dead, %d hot (of %d total)\n\n", c.Dead, c.Hot, c.Total)
		}

		flagged := flaggedForRun(verdicts, rv.Run)
		b.WriteString("| Metric | Value | z | Verdict | Pattern | Diagnosis |\n")
		b.WriteString("|--------|-------|---|---------|---------|-----------|\n")
		for _, v := range flagged {
			brief := ""
			if len(v.Causes) > 0 {
				brief = truncate(v.Causes[0], maxCauseWidth)
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
				v.Metric, fixed(v.Value, 3), fixed(v.Z, 3), v.Verdict, v.Pattern, escapeCell(brief))
		}
		b.WriteString("\n")

		for _, v := range flagged {
			fmt.Fprintf(&b, "**%s** (%s):\n", v.Metric, v.Severity)
			fmt.Fprintf(&b, "- Pattern: %s\n", v.Pattern)
			b.WriteString("- Possible causes:\n")
			for _, c := range v.Causes {
				fmt.Fprintf(&b, "  - %s\n", c)
			}
			fmt.Fprintf(&b, "- Recommended action: %s\n\n", v.Action)
		}
		b.WriteString("---\n\n")
	}

	// Metric health
	b.WriteString("## Metric Health Overview\n\n")
	b.WriteString("| Metric | Runs | Flagged | Flag Rate |\n")
	b.WriteString("|--------|------|---------|-----------|\n")
	for _, m := range res.Metrics {
		total := len(m.Verdicts)
		if total == 0 {
			continue
		}
		flagged := len(m.Flagged())
		fmt.Fprintf(&b, "| %s | %d | %d | %.1f%% |\n", m.Metric, total, flagged, 100*float64(flagged)/float64(total))
	}
	b.WriteString("\n")

	// Trends
	b.WriteString("## Trend Analysis\n\n")
	b.WriteString("| Metric | Slope | p-value | Changepoint Run | dBIC | Interpretation |\n")
	b.WriteString("|--------|-------|---------|-----------------|------|----------------|\n")
	for _, m := range res.Metrics {
		t := m.Trend
		cpRun, dBIC := "-", "-"
		if t.Changepoint != nil {
			cpRun = fmt.Sprintf("%d", t.Changepoint.Run)
			dBIC = fixed(t.Changepoint.DeltaBIC, 1)
		}
		slope := "-"
		if t.Slope.Valid {
			slope = fmt.Sprintf("%.2e", t.Slope.Value)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n", m.Metric, slope, fixed(t.PValue, 4), cpRun, dBIC, t.Interpretation())
	}
	b.WriteString("\n")

	return b.Bytes()
}

func flaggedForRun(verdicts []model.RunMetricVerdict, run int) []model.RunMetricVerdict {
	var out []model.RunMetricVerdict
	for _, v := range verdicts {
		if v.Run == run && v.Verdict != model.VerdictGood {
			out = append(out, v)
		}
	}
	return out
}

// truncate shortens s to width runes, ending in "..."
func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func fixed(v float64, prec int) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return fmt.Sprintf("%.*f", prec, v)
}
