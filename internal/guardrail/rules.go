package guardrail

import "regexp"

// Category classifies what a rule detects.
type Category string

const (
	CategoryPII       Category = "pii"
	CategoryInjection Category = "injection"
)

// Rule is a single detection rule. Rules are plain data: the analyzer walks
// the table in order, so adding a detector is a table entry, not code.
type Rule struct {
	ID          string
	Category    Category
	Label       string
	Pattern     *regexp.Regexp
	Placeholder string // replacement token for PII rules; empty for injection rules
	Enabled     bool
}

// DefaultRules returns the built-in rule table. The bank-account rule ships
// disabled: an 8-17 digit run matches invoice numbers, tracking codes and
// similar noise far too often. Re-enable via WithRule once tenant data
// justifies it.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "pii-email",
			Category:    CategoryPII,
			Label:       "email",
			Pattern:     regexp.MustCompile(`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`),
			Placeholder: "[EMAIL_REDACTED]",
			Enabled:     true,
		},
		{
			ID:          "pii-ssn",
			Category:    CategoryPII,
			Label:       "ssn",
			Pattern:     regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			Placeholder: "[SSN_REDACTED]",
			Enabled:     true,
		},
		{
			ID:          "pii-credit-card",
			Category:    CategoryPII,
			Label:       "credit_card",
			Pattern:     regexp.MustCompile(`\b(?:\d{4}[-\s]){3}\d{4}\b|\b\d{16}\b`),
			Placeholder: "[CARD_REDACTED]",
			Enabled:     true,
		},
		{
			ID:          "pii-phone",
			Category:    CategoryPII,
			Label:       "phone",
			Pattern:     regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]\d{3}[-.\s]?\d{4}\b`),
			Placeholder: "[PHONE_REDACTED]",
			Enabled:     true,
		},
		{
			ID:          "pii-ipv4",
			Category:    CategoryPII,
			Label:       "ip_address",
			Pattern:     regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
			Placeholder: "[IP_REDACTED]",
			Enabled:     true,
		},
		{
			ID:          "pii-passport",
			Category:    CategoryPII,
			Label:       "passport",
			Pattern:     regexp.MustCompile(`\b[A-Z]{1,2}\d{7,8}\b`),
			Placeholder: "[PASSPORT_REDACTED]",
			Enabled:     true,
		},
		{
			ID:          "pii-bank-account",
			Category:    CategoryPII,
			Label:       "bank_account",
			Pattern:     regexp.MustCompile(`\b\d{8,17}\b`),
			Placeholder: "[ACCOUNT_REDACTED]",
			Enabled:     false,
		},
		{
			ID:       "inj-instruction-override",
			Category: CategoryInjection,
			Label:    "instruction_override",
			Pattern:  regexp.MustCompile(`(?i)\b(ignore|disregard|forget)\s+(all\s+|any\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?|context)`),
			Enabled:  true,
		},
		{
			ID:       "inj-context-escape",
			Category: CategoryInjection,
			Label:    "context_escape",
			Pattern:  regexp.MustCompile(`(?i)\b(end\s+of\s+(context|document|instructions)|new\s+instructions?\s*:|stop\s+being)`),
			Enabled:  true,
		},
		{
			ID:       "inj-role-manipulation",
			Category: CategoryInjection,
			Label:    "role_manipulation",
			Pattern:  regexp.MustCompile(`(?i)\b(you\s+are\s+now\s+|act\s+as\s+(if\s+you\s+are\s+)?a?\s*|pretend\s+(to\s+be|you\s+are))`),
			Enabled:  true,
		},
		{
			ID:       "inj-constraint-removal",
			Category: CategoryInjection,
			Label:    "constraint_removal",
			Pattern:  regexp.MustCompile(`(?i)\b(without\s+(any\s+)?(restrictions?|limitations?|filters?|censorship)|no\s+longer\s+(bound|restricted|limited)|bypass\s+(your\s+)?(safety|guidelines|rules))`),
			Enabled:  true,
		},
		{
			ID:       "inj-prompt-extraction",
			Category: CategoryInjection,
			Label:    "prompt_extraction",
			Pattern:  regexp.MustCompile(`(?i)\b(reveal|show|print|repeat|output|tell\s+me)\b[^.\n]{0,40}\b(system\s+prompt|your\s+(instructions|prompt|rules)|initial\s+prompt)`),
			Enabled:  true,
		},
		{
			ID:       "inj-raw-tags",
			Category: CategoryInjection,
			Label:    "raw_tags",
			Pattern:  regexp.MustCompile(`(?i)(<\|im_start\|>|<\|im_end\|>|<\|system\|>|<<SYS>>|\[INST\]|</?system>)`),
			Enabled:  true,
		},
	}
}
