package classify

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/tunogya/runqa/pkg/model"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// ErrInvalidRule marks a rule that was skipped while loading a rule table
var ErrInvalidRule = errors.New("invalid rule")

// Subject is everything the rule tables may look at for one flagged point
type Subject struct {
	Metric   string
	Pattern  model.Pattern
	Severity model.Severity
	Value    float64
	Z        float64
	Context  model.RunContext
}

// Condition restricts when a branch applies. Empty fields match anything.
type Condition struct {
	Patterns   []model.Pattern `yaml:"patterns"`
	ValueAbove *float64        `yaml:"value_above"`
	ValueBelow *float64        `yaml:"value_below"`
	ZSign      string          `yaml:"z_sign"`  // positive | negative
	Context    string          `yaml:"context"` // dead | hot | dead_or_hot
}

// Branch is one conditional cause list inside a CauseRule
type Branch struct {
	Condition `yaml:",inline"`
	Causes    []string `yaml:"causes"`
	Continue  bool     `yaml:"continue"`

	templates []*template.Template
}

// CauseRule maps metrics whose names match to a list of branches
type CauseRule struct {
	Name     string   `yaml:"name"`
	MatchAny []string `yaml:"match_any"`
	MatchAll []string `yaml:"match_all"`
	Branches []Branch `yaml:"branches"`
}

// ActionRule picks a recommended action
type ActionRule struct {
	Severity model.Severity  `yaml:"severity"`
	MatchAny []string        `yaml:"match_any"`
	Patterns []model.Pattern `yaml:"patterns"`
	Action   string          `yaml:"action"`
}

// RuleSet is an ordered cause table plus an ordered action table
type RuleSet struct {
	Causes        []CauseRule  `yaml:"causes"`
	Fallback      []string     `yaml:"fallback"`
	NoDiagnosis   string       `yaml:"no_diagnosis"`
	Actions       []ActionRule `yaml:"actions"`
	DefaultAction string       `yaml:"default_action"`

	problems []error
}

// DefaultRules returns the built-in rule table
func DefaultRules() *RuleSet {
	rs, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in rule table: %v", err))
	}
	return rs
}

// LoadRules reads a rule table from a YAML file
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes a YAML rule table. Only malformed YAML is an error;
// individual bad rules are dropped and reported by Problems.
func ParseRules(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	rs.compile()
	return &rs, nil
}

// Problems returns the rules that were skipped and why
func (rs *RuleSet) Problems() []error {
	return rs.problems
}

func (rs *RuleSet) compile() {
	kept := rs.Causes[:0]
	for i, rule := range rs.Causes {
		if err := rule.compile(); err != nil {
			rs.problems = append(rs.problems, fmt.Errorf("cause rule %d (%s): %w", i, rule.Name, err))
			continue
		}
		kept = append(kept, rule)
	}
	rs.Causes = kept

	actions := rs.Actions[:0]
	for i, a := range rs.Actions {
		if a.Action == "" {
			rs.problems = append(rs.problems, fmt.Errorf("action rule %d: %w: empty action", i, ErrInvalidRule))
			continue
		}
		actions = append(actions, a)
	}
	rs.Actions = actions
}

func (r *CauseRule) compile() error {
	if len(r.MatchAny) == 0 && len(r.MatchAll) == 0 {
		return fmt.Errorf("%w: no metric matcher", ErrInvalidRule)
	}
	if len(r.Branches) == 0 {
		return fmt.Errorf("%w: no branches", ErrInvalidRule)
	}
	for i := range r.Branches {
		b := &r.Branches[i]
		switch b.ZSign {
		case "", "positive", "negative":
		default:
			return fmt.Errorf("%w: branch %d: unknown z_sign %q", ErrInvalidRule, i, b.ZSign)
		}
		switch b.Context {
		case "", "dead", "hot", "dead_or_hot":
		default:
			return fmt.Errorf("%w: branch %d: unknown context %q", ErrInvalidRule, i, b.Context)
		}
		b.templates = make([]*template.Template, len(b.Causes))
		for j, c := range b.Causes {
			if !strings.Contains(c, "{{") {
				continue
			}
			t, err := template.New(r.Name).Parse(c)
			if err != nil {
				return fmt.Errorf("%w: branch %d cause %d: %v", ErrInvalidRule, i, j, err)
			}
			b.templates[j] = t
		}
	}
	return nil
}

// Matches returns true if the rule applies to metric
func (r *CauseRule) Matches(metric string) bool {
	if len(r.MatchAll) > 0 {
		for _, s := range r.MatchAll {
			if !strings.Contains(metric, s) {
				return false
			}
		}
		if len(r.MatchAny) == 0 {
			return true
		}
	}
	return containsAny(metric, r.MatchAny)
}

// Matches returns true if every set field of the condition holds for s
func (c Condition) Matches(s Subject) bool {
	if len(c.Patterns) > 0 && !hasPattern(c.Patterns, s.Pattern) {
		return false
	}
	if c.ValueAbove != nil && !(s.Value > *c.ValueAbove) {
		return false
	}
	if c.ValueBelow != nil && !(s.Value < *c.ValueBelow) {
		return false
	}
	switch c.ZSign {
	case "positive":
		if !(s.Z > 0) {
			return false
		}
	case "negative":
		if !(s.Z < 0) {
			return false
		}
	}
	switch c.Context {
	case "dead":
		return s.Context.Dead > 0
	case "hot":
		return s.Context.Hot > 0
	case "dead_or_hot":
		return s.Context.Dead > 0 || s.Context.Hot > 0
	}
	return true
}

// templateData is what cause templates can reference
type templateData struct {
	Metric  string
	Pattern model.Pattern
	Value   float64
	Z       float64
	Dead    int
	Hot     int
	Total   int
}

func (b *Branch) render(s Subject) []string {
	data := templateData{
		Metric:  s.Metric,
		Pattern: s.Pattern,
		Value:   s.Value,
		Z:       s.Z,
		Dead:    s.Context.Dead,
		Hot:     s.Context.Hot,
		Total:   s.Context.Total,
	}

	var out []string
	for i, c := range b.Causes {
		if t := b.templates[i]; t != nil {
			var buf bytes.Buffer
			if err := t.Execute(&buf, data); err != nil {
				continue
			}
			c = buf.String()
		}
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// InferCauses returns the ordered list of plausible causes for s
func (rs *RuleSet) InferCauses(s Subject) []string {
	var causes []string

	matched := false
	for i := range rs.Causes {
		rule := &rs.Causes[i]
		if !rule.Matches(s.Metric) {
			continue
		}
		matched = true
		for j := range rule.Branches {
			b := &rule.Branches[j]
			if !b.Matches(s) {
				continue
			}
			causes = append(causes, b.render(s)...)
			if !b.Continue {
				break
			}
		}
		break
	}

	if !matched {
		causes = append(causes, rs.Fallback...)
	}
	if len(causes) == 0 && rs.NoDiagnosis != "" {
		causes = append(causes, rs.NoDiagnosis)
	}
	return causes
}

// InferAction returns the recommended action for s
func (rs *RuleSet) InferAction(s Subject) string {
	for _, a := range rs.Actions {
		if a.Severity != "" && a.Severity != s.Severity {
			continue
		}
		if len(a.Patterns) > 0 && !hasPattern(a.Patterns, s.Pattern) {
			continue
		}
		if len(a.MatchAny) > 0 && !containsAny(s.Metric, a.MatchAny) {
			continue
		}
		return a.Action
	}
	return rs.DefaultAction
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func hasPattern(patterns []model.Pattern, p model.Pattern) bool {
	for _, q := range patterns {
		if q == p {
			return true
		}
	}
	return false
}
