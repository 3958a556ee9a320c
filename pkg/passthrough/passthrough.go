// Package passthrough exempts configured request paths from identity
// resolution.
package passthrough

import (
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/widgetgate/widgetgate/pkg/config"
)

// A rule reports whether a request path is exempt.
type rule func(path string) bool

// Matcher decides which request paths skip the identity resolver. All
// configured patterns compile into a flat rule list; patterns that fail
// to compile are collected rather than fatal, so one bad regex cannot
// disable the rest.
type Matcher struct {
	rules  []rule
	broken []error
}

// NewMatcher compiles the configured prefix, regex, and glob patterns.
// A nil config yields a matcher that exempts nothing.
func NewMatcher(cfg *config.PassthroughConfig) *Matcher {
	m := &Matcher{}
	if cfg == nil {
		return m
	}

	for _, prefix := range cfg.Prefix {
		prefix := prefix
		m.rules = append(m.rules, func(path string) bool {
			return strings.HasPrefix(path, prefix)
		})
	}

	for _, pattern := range cfg.Regex {
		re, err := regexp.Compile(pattern)
		if err != nil {
			m.broken = append(m.broken, err)
			continue
		}
		m.rules = append(m.rules, re.MatchString)
	}

	for _, pattern := range cfg.Glob {
		pattern := pattern
		m.rules = append(m.rules, func(path string) bool {
			ok, err := doublestar.Match(pattern, path)
			return err == nil && ok
		})
	}

	return m
}

// Match reports whether the path is exempt from identity resolution.
// A nil Matcher matches nothing.
func (m *Matcher) Match(path string) bool {
	if m == nil {
		return false
	}
	for _, exempt := range m.rules {
		if exempt(path) {
			return true
		}
	}
	return false
}

// HasErrors reports whether any configured pattern failed to compile.
func (m *Matcher) HasErrors() bool {
	return len(m.broken) > 0
}

// Errors returns the pattern compilation failures.
func (m *Matcher) Errors() []error {
	return m.broken
}
