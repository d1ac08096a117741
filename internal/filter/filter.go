// Package filter decides which listings are skipped by keyword.
package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// regexPrefix marks a pattern as a raw regular expression rather than a literal word.
const regexPrefix = `\b`

type rule struct {
	pattern string
	re      *regexp.Regexp
}

// Exclusion matches listing text against a list of words and regular expressions.
// Matching is case-insensitive and word-bounded.
type Exclusion struct {
	rules []rule
}

// New compiles patterns. Entries beginning with \b are used as regular expressions verbatim;
// every other entry is matched as a whole word or phrase.
func New(patterns []string) (*Exclusion, error) {
	e := &Exclusion{rules: make([]rule, 0, len(patterns))}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		expr := p
		if !strings.HasPrefix(p, regexPrefix) {
			expr = `\b` + regexp.QuoteMeta(strings.ToLower(p)) + `\b`
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid exclusion pattern %q: %w", p, err)
		}
		e.rules = append(e.rules, rule{pattern: p, re: re})
	}
	return e, nil
}

// Match returns the first pattern found in the lowercased title and description.
func (e *Exclusion) Match(title, description string) (string, bool) {
	if e == nil {
		return "", false
	}
	text := strings.ToLower(title + " " + description)
	for _, r := range e.rules {
		if r.re.MatchString(text) {
			return r.pattern, true
		}
	}
	return "", false
}

// Allows reports whether no pattern matches.
func (e *Exclusion) Allows(title, description string) bool {
	_, matched := e.Match(title, description)
	return !matched
}

// Len is the number of compiled patterns.
func (e *Exclusion) Len() int {
	if e == nil {
		return 0
	}
	return len(e.rules)
}
