package verdict

import (
	"fmt"
	"sort"

	"github.com/tunogya/runqa/pkg/classify"
	"github.com/tunogya/runqa/pkg/model"
)

// Messages used for points that pass every check
const (
	CauseAllPassed = "All checks passed"
	ActionNone     = "No action needed"
)

// Input is everything known about one (run, metric) point
type Input struct {
	Metric  string
	Index   int
	Point   model.SamplePoint
	Robust  []model.RobustStats // the whole metric, for neighbor counts
	QC      *model.QCStatus     // nil when no threshold check ran
	Control *model.ControlFlag  // nil when no control chart ran
	Trend   model.TrendStats
	Context model.RunContext
}

// Engine turns per-point evidence into verdicts
type Engine struct {
	classifier *classify.Classifier
	rules      *classify.RuleSet
}

// NewEngine creates a verdict engine. Nil arguments select the defaults.
func NewEngine(classifier *classify.Classifier, rules *classify.RuleSet) *Engine {
	if classifier == nil {
		classifier = classify.NewClassifier(classify.DefaultPatternConfig())
	}
	if rules == nil {
		rules = classify.DefaultRules()
	}
	return &Engine{classifier: classifier, rules: rules}
}

// Evaluate decides the verdict for one point.
// Unflagged points short-circuit to GOOD without classification.
func (e *Engine) Evaluate(in Input) model.RunMetricVerdict {
	robust := in.Robust[in.Index]
	v := model.RunMetricVerdict{
		Run:    in.Point.Run,
		Metric: in.Metric,
		Z:      robust.Z,
		Value:  in.Point.Value,
		NoData: !in.Point.IsFinite(),
	}

	flagged, severe := false, false

	// Robust local z
	if robust.Strong {
		flagged, severe = true, true
	} else if robust.Weak {
		flagged = true
	}

	// Hard thresholds
	if in.QC != nil {
		switch in.QC.Status {
		case model.FlagFail:
			flagged, severe = true, true
		case model.FlagWarn:
			flagged = true
		}
	}

	// Control charts
	if in.Control != nil {
		if in.Control.Flag == model.FlagWarn {
			flagged = true
		}
		if in.Control.ShewhartOOC {
			severe = true
		}
	}

	if !flagged {
		v.Verdict = model.VerdictGood
		v.Severity = model.SeverityInfo
		v.Pattern = model.PatternNormal
		v.Causes = []string{CauseAllPassed}
		v.Action = ActionNone
		return v
	}

	v.Pattern = e.classifier.Classify(e.classifier.Gather(in.Robust, in.Index, in.Trend))
	if severe {
		v.Verdict = model.VerdictBad
		v.Severity = model.SeverityCritical
	} else {
		v.Verdict = model.VerdictSuspect
		v.Severity = v.Pattern.Severity()
	}

	subject := classify.Subject{
		Metric:   in.Metric,
		Pattern:  v.Pattern,
		Severity: v.Severity,
		Value:    in.Point.Value,
		Z:        robust.Z,
		Context:  in.Context,
	}
	v.Causes = e.rules.InferCauses(subject)
	v.Action = e.rules.InferAction(subject)
	return v
}

// Rollup folds metric verdicts into one verdict per run, ordered by run.
// The worst metric is the first BAD constituent, or the first SUSPECT when
// no constituent is BAD.
func Rollup(verdicts []model.RunMetricVerdict) []model.RunVerdict {
	byRun := make(map[int]*model.RunVerdict)
	firstSuspect := make(map[int]string)

	for _, v := range verdicts {
		rv, ok := byRun[v.Run]
		if !ok {
			rv = &model.RunVerdict{Run: v.Run}
			byRun[v.Run] = rv
		}
		switch v.Verdict {
		case model.VerdictBad:
			if rv.NBad == 0 {
				rv.WorstMetric = v.Metric
			}
			rv.NBad++
		case model.VerdictSuspect:
			if _, seen := firstSuspect[v.Run]; !seen {
				firstSuspect[v.Run] = v.Metric
			}
			rv.NSuspect++
		default:
			rv.NGood++
		}
	}

	out := make([]model.RunVerdict, 0, len(byRun))
	for run, rv := range byRun {
		switch {
		case rv.NBad > 0:
			rv.Verdict = model.VerdictBad
		case rv.NSuspect > 0:
			rv.Verdict = model.VerdictSuspect
			rv.WorstMetric = firstSuspect[run]
		default:
			rv.Verdict = model.VerdictGood
		}
		out = append(out, *rv)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Run < out[j].Run
	})
	return out
}

// Tally counts runs per verdict
type Tally struct {
	Good    int
	Suspect int
	Bad     int
}

// Count tallies run verdicts
func Count(runs []model.RunVerdict) Tally {
	var t Tally
	for _, r := range runs {
		switch r.Verdict {
		case model.VerdictGood:
			t.Good++
		case model.VerdictSuspect:
			t.Suspect++
		default:
			t.Bad++
		}
	}
	return t
}

// Total returns the number of runs tallied
func (t Tally) Total() int {
	return t.Good + t.Suspect + t.Bad
}

// Recommendation returns the overall recommendation for a pass
func (t Tally) Recommendation() string {
	switch {
	case t.Bad > 0:
		return fmt.Sprintf("%d run(s) recommended for exclusion from physics analysis.", t.Bad)
	case t.Suspect > 0:
		return fmt.Sprintf("%d run(s) flagged for review. No exclusions yet.", t.Suspect)
	default:
		return "All runs pass QA. No exclusions recommended."
	}
}
