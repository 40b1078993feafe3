package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// RedactionRuleSpec is one operator-defined rule in the YAML pack.
type RedactionRuleSpec struct {
	ID          string `yaml:"id"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// RedactionRuleFile is the YAML root structure.
type RedactionRuleFile struct {
	Rules []RedactionRuleSpec `yaml:"rules"`
}

// LoadRedactor builds a Redactor from the built-in rules plus the pack at path.
// An empty path or a missing file yields the built-in rules only.
func LoadRedactor(path string, logger *slog.Logger) (*Redactor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return NewRedactor(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("redaction rule pack not found, using built-in rules", slog.String("path", path))
			return NewRedactor(), nil
		}
		return nil, err
	}
	var file RedactionRuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse redaction rules: %w", err)
	}

	extra := make([]RedactionRule, 0, len(file.Rules))
	for i, spec := range file.Rules {
		rule, err := compileRule(spec)
		if err != nil {
			return nil, fmt.Errorf("redaction rule %d (%s): %w", i, spec.ID, err)
		}
		extra = append(extra, rule)
	}
	logger.Info("redaction rules loaded", slog.String("path", path), slog.Int("extra_rules", len(extra)))
	return NewRedactor(extra...), nil
}

func compileRule(spec RedactionRuleSpec) (RedactionRule, error) {
	if strings.TrimSpace(spec.Pattern) == "" {
		return RedactionRule{}, fmt.Errorf("pattern is required")
	}
	re, err := regexp.Compile(spec.Pattern)
	if err != nil {
		return RedactionRule{}, err
	}
	replacement := spec.Replacement
	if replacement == "" {
		if re.NumSubexp() >= 1 {
			replacement = "${1}" + RedactionMask
		} else {
			replacement = RedactionMask
		}
	}
	id := spec.ID
	if id == "" {
		id = spec.Pattern
	}
	return RedactionRule{ID: id, Pattern: re, Replacement: replacement}, nil
}
