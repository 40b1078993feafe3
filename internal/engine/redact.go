package engine

import "regexp"

// RedactionMask replaces every captured secret value.
const RedactionMask = "***"

// RedactionRule pairs a pattern with its replacement template. Group 1 of the
// pattern is expected to hold the key token that survives redaction.
type RedactionRule struct {
	ID          string
	Pattern     *regexp.Regexp
	Replacement string
}

// defaultRules covers key=value assignments of common secret names.
var defaultRules = []RedactionRule{
	{ID: "password", Pattern: regexp.MustCompile(`(?i)(password\s*=\s*)([^;\s]+)`), Replacement: "${1}" + RedactionMask},
	{ID: "secret", Pattern: regexp.MustCompile(`(?i)(secret\s*=\s*)([^;\s]+)`), Replacement: "${1}" + RedactionMask},
	{ID: "key", Pattern: regexp.MustCompile(`(?i)(key\s*=\s*)([^;\s]+)`), Replacement: "${1}" + RedactionMask},
	{ID: "pwd", Pattern: regexp.MustCompile(`(?i)(pwd\s*=\s*)([^;\s]+)`), Replacement: "${1}" + RedactionMask},
	{ID: "token", Pattern: regexp.MustCompile(`(?i)(token\s*=\s*)([^;\s]+)`), Replacement: "${1}" + RedactionMask},
}

// Redactor masks credential values before text leaves the process.
// It holds no mutable state and is safe for concurrent use.
type Redactor struct {
	rules []RedactionRule
}

// NewRedactor returns a Redactor applying the built-in rules followed by extra.
func NewRedactor(extra ...RedactionRule) *Redactor {
	rules := make([]RedactionRule, 0, len(defaultRules)+len(extra))
	rules = append(rules, defaultRules...)
	rules = append(rules, extra...)
	return &Redactor{rules: rules}
}

// Redact applies every rule in order. Redacting already redacted text is a no-op.
func (r *Redactor) Redact(text string) string {
	if r == nil {
		return Redact(text)
	}
	out := text
	for _, rule := range r.rules {
		out = rule.Pattern.ReplaceAllString(out, rule.Replacement)
	}
	return out
}

// Rules returns the IDs of the active rules in application order.
func (r *Redactor) Rules() []string {
	ids := make([]string, 0, len(r.rules))
	for _, rule := range r.rules {
		ids = append(ids, rule.ID)
	}
	return ids
}

var builtin = NewRedactor()

// Redact masks text with the built-in rules only.
func Redact(text string) string {
	return builtin.Redact(text)
}
