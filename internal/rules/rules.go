// Package rules enforces output rules on buffered agent responses.
//
// Rules are declared in configuration and checked against the full buffered
// response after local validation. Any violation fails the lifecycle and
// routes into self-correction; the engine itself never mutates output.
package rules

import (
	"context"
	"fmt"
	"regexp"

	"github.com/fyrsmithlabs/agentd/internal/config"
)

// Violation names a failed rule and describes why.
type Violation struct {
	Rule    string
	Message string
}

// Engine checks agent output against a rule set.
type Engine interface {
	// Enforce returns every rule violated by output. The slice is empty
	// when the output passes. An error means the engine itself could not
	// run, not that the output is bad.
	Enforce(ctx context.Context, output, agentType, task string) ([]Violation, error)
}

type compiledRule struct {
	cfg     config.RuleConfig
	require *regexp.Regexp
	forbid  *regexp.Regexp
	applies map[string]struct{} // nil means all agent types
}

// Set is the config-driven Engine implementation.
type Set struct {
	rules []compiledRule
}

// NewSet compiles the configured rules.
func NewSet(cfgs []config.RuleConfig) (*Set, error) {
	s := &Set{rules: make([]compiledRule, 0, len(cfgs))}
	for _, cfg := range cfgs {
		r := compiledRule{cfg: cfg}
		var err error
		if cfg.Require != "" {
			if r.require, err = regexp.Compile(cfg.Require); err != nil {
				return nil, fmt.Errorf("rule %q: %w", cfg.Name, err)
			}
		}
		if cfg.Forbid != "" {
			if r.forbid, err = regexp.Compile(cfg.Forbid); err != nil {
				return nil, fmt.Errorf("rule %q: %w", cfg.Name, err)
			}
		}
		if len(cfg.AppliesTo) > 0 {
			r.applies = make(map[string]struct{}, len(cfg.AppliesTo))
			for _, t := range cfg.AppliesTo {
				r.applies[t] = struct{}{}
			}
		}
		s.rules = append(s.rules, r)
	}
	return s, nil
}

// Enforce implements Engine.
func (s *Set) Enforce(ctx context.Context, output, agentType, _ string) ([]Violation, error) {
	var violations []Violation
	for _, r := range s.rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.applies != nil {
			if _, ok := r.applies[agentType]; !ok {
				continue
			}
		}
		if r.require != nil && !r.require.MatchString(output) {
			violations = append(violations, Violation{
				Rule:    r.cfg.Name,
				Message: r.message("output does not match required pattern %q", r.cfg.Require),
			})
		}
		if r.forbid != nil && r.forbid.MatchString(output) {
			violations = append(violations, Violation{
				Rule:    r.cfg.Name,
				Message: r.message("output matches forbidden pattern %q", r.cfg.Forbid),
			})
		}
		if r.cfg.MaxBytes > 0 && len(output) > r.cfg.MaxBytes {
			violations = append(violations, Violation{
				Rule:    r.cfg.Name,
				Message: r.message("output exceeds %d bytes", r.cfg.MaxBytes),
			})
		}
	}
	return violations, nil
}

func (r compiledRule) message(format string, args ...any) string {
	if r.cfg.Message != "" {
		return r.cfg.Message
	}
	return fmt.Sprintf(format, args...)
}

// Describe concatenates violations as "rule: message; ..." for error
// details.
func Describe(violations []Violation) string {
	out := ""
	for i, v := range violations {
		if i > 0 {
			out += "; "
		}
		out += v.Rule + ": " + v.Message
	}
	return out
}
