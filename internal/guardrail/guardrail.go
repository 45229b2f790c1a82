// Package guardrail detects and mitigates PII exposure and prompt-injection
// attempts in user queries and model output. Detection is driven by an ordered
// rule table compiled once at construction; analysis is a pure function over
// the input text and mode.
package guardrail

import "strings"

// Mode controls how findings affect the request.
type Mode string

const (
	// ModeRedact replaces PII with placeholder tokens and lets the request
	// proceed. Injection findings still block.
	ModeRedact Mode = "redact"
	// ModeBlock rejects the request on any finding, PII or injection.
	ModeBlock Mode = "block"
)

// Finding is a single detected match.
type Finding struct {
	Type          Category `json:"type"`
	Category      string   `json:"category"`
	Label         string   `json:"label"`
	OriginalValue string   `json:"original_value"`
	RedactedValue string   `json:"redacted_value,omitempty"`
}

// Result is the outcome of analyzing one piece of text.
type Result struct {
	Safe         bool      `json:"safe"`
	Blocked      bool      `json:"blocked"`
	Findings     []Finding `json:"findings"`
	RedactedText string    `json:"redacted_text"`
	HasPII       bool      `json:"has_pii"`
	HasInjection bool      `json:"has_injection"`
}

// Analyzer applies the rule table to text.
type Analyzer struct {
	rules []Rule
}

// NewAnalyzer creates an analyzer with the built-in rule table plus any extra
// rules appended in order.
func NewAnalyzer(extra ...Rule) *Analyzer {
	rules := DefaultRules()
	rules = append(rules, extra...)
	return &Analyzer{rules: rules}
}

// NewAnalyzerWithRules creates an analyzer using exactly the given rules.
func NewAnalyzerWithRules(rules []Rule) *Analyzer {
	return &Analyzer{rules: rules}
}

// Analyze scans text against every enabled rule and applies mode semantics.
// All occurrences of each unique PII match are replaced with the rule's
// placeholder token. Injection matches are never redacted; they either block
// the request or, in redact mode, force Blocked regardless of PII handling.
func (a *Analyzer) Analyze(text string, mode Mode) Result {
	res := Result{RedactedText: text}

	for _, rule := range a.rules {
		if !rule.Enabled {
			continue
		}
		matches := rule.Pattern.FindAllString(text, -1)
		if len(matches) == 0 {
			continue
		}

		// Deduplicate before redaction so each unique value is replaced
		// everywhere exactly once.
		seen := make(map[string]bool, len(matches))
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true

			f := Finding{
				Type:          rule.Category,
				Category:      string(rule.Category),
				Label:         rule.Label,
				OriginalValue: m,
			}
			switch rule.Category {
			case CategoryPII:
				f.RedactedValue = rule.Placeholder
				res.RedactedText = strings.ReplaceAll(res.RedactedText, m, rule.Placeholder)
				res.HasPII = true
			case CategoryInjection:
				res.HasInjection = true
			}
			res.Findings = append(res.Findings, f)
		}
	}

	switch mode {
	case ModeBlock:
		res.Blocked = res.HasPII || res.HasInjection
	default: // ModeRedact
		res.Blocked = res.HasInjection
	}
	res.Safe = !res.Blocked

	return res
}
