// Package timeout resolves per-request deadlines from GraphQL query text.
package timeout

import (
	"fmt"
	"regexp"
	"time"
)

// Rule maps a regex over the raw GraphQL document to a timeout.
type Rule struct {
	Pattern string
	Timeout time.Duration
}

// Config is the timeout manager's own config type.
type Config struct {
	DefaultTimeout time.Duration
	Rules          []Rule
}

type compiledRule struct {
	pattern *regexp.Regexp
	timeout time.Duration
}

// Manager resolves query timeouts based on pattern matching.
type Manager struct {
	rules          []compiledRule
	defaultTimeout time.Duration
}

// NewManager creates a new Manager. Returns an error on invalid regex patterns
// or non-positive durations.
func NewManager(config Config) (*Manager, error) {
	if config.DefaultTimeout <= 0 {
		return nil, fmt.Errorf("timeout: default timeout must be positive, got %v", config.DefaultTimeout)
	}
	compiled := make([]compiledRule, len(config.Rules))
	for i, r := range config.Rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("timeout: invalid regex pattern %q: %v", r.Pattern, err)
		}
		if r.Timeout <= 0 {
			return nil, fmt.Errorf("timeout: rule %q must have a positive timeout, got %v", r.Pattern, r.Timeout)
		}
		compiled[i] = compiledRule{pattern: re, timeout: r.Timeout}
	}
	return &Manager{rules: compiled, defaultTimeout: config.DefaultTimeout}, nil
}

// GetTimeout returns the timeout for the given query.
// First matching rule wins. Falls back to default.
func (m *Manager) GetTimeout(query string) time.Duration {
	d, _ := m.Match(query)
	return d
}

// Match is GetTimeout that also reports which pattern decided it. The pattern
// is empty when the default applied.
func (m *Manager) Match(query string) (time.Duration, string) {
	for _, rule := range m.rules {
		if rule.pattern.MatchString(query) {
			return rule.timeout, rule.pattern.String()
		}
	}
	return m.defaultTimeout, ""
}

// Default returns the fallback timeout.
func (m *Manager) Default() time.Duration {
	return m.defaultTimeout
}
