// Package errprompt appends operator-written guidance to tool errors so an
// agent knows what to try next (e.g. "call list_tables first").
package errprompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rickchristie/pggraphql-mcp/internal/gqlclient"
)

// Rule matches an error message, optionally restricted to one error kind.
type Rule struct {
	Pattern string
	Kind    gqlclient.Kind // empty matches every kind
	Message string
}

type compiledRule struct {
	pattern *regexp.Regexp
	kind    gqlclient.Kind
	message string
}

// Matcher checks classified errors against rules and returns guidance.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher creates a new Matcher. Returns an error on invalid regex patterns.
func NewMatcher(rules []Rule) (*Matcher, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("errprompt: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, kind: r.Kind, message: r.Message}
	}
	return &Matcher{rules: compiled}, nil
}

func (r compiledRule) matches(kind gqlclient.Kind, errMsg string) bool {
	if r.kind != "" && r.kind != kind {
		return false
	}
	return r.pattern.MatchString(errMsg)
}

// Match checks the error against all rules (top to bottom) and returns every
// matching message joined with newlines, or "" when nothing matches.
func (m *Matcher) Match(kind gqlclient.Kind, errMsg string) string {
	var matches []string
	for _, rule := range m.rules {
		if rule.matches(kind, errMsg) {
			matches = append(matches, rule.message)
		}
	}
	return strings.Join(matches, "\n")
}

// MatchedPatterns returns the patterns that matched, for logging.
func (m *Matcher) MatchedPatterns(kind gqlclient.Kind, errMsg string) []string {
	var patterns []string
	for _, rule := range m.rules {
		if rule.matches(kind, errMsg) {
			patterns = append(patterns, rule.pattern.String())
		}
	}
	return patterns
}
