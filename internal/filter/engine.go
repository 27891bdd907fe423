// Package filter decides which articles move forward: keyword rules
// applied per source at fetch time, and the top-article selection
// applied before a digest is composed.
package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind is the type of a keyword rule.
type Kind string

// Supported rule kinds.
const (
	Include   Kind = "include"
	Exclude   Kind = "exclude"
	IncludeRe Kind = "include_re"
	ExcludeRe Kind = "exclude_re"
)

// Scope selects which part of an article a rule matches against.
type Scope string

// Supported rule scopes.
const (
	ScopeTitle   Scope = "title"
	ScopeSummary Scope = "summary"
	ScopeAll     Scope = "all"
)

// Rule is a single keyword rule attached to a source.
type Rule struct {
	Kind  Kind
	Scope Scope
	Value string
	re    *regexp.Regexp
}

// Item is the text of an article that rules are matched against.
type Item struct {
	Title   string
	Summary string
}

// ParseRules turns the include and exclude entries of a source into rules.
// An entry has the form [title:|summary:][re:]value; without a scope
// prefix the rule matches title and summary together.
func ParseRules(include, exclude []string) ([]Rule, error) {
	rules := make([]Rule, 0, len(include)+len(exclude))
	for _, raw := range include {
		r, err := parseRule(raw, Include, IncludeRe)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	for _, raw := range exclude {
		r, err := parseRule(raw, Exclude, ExcludeRe)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func parseRule(raw string, word, re Kind) (Rule, error) {
	r := Rule{Kind: word, Scope: ScopeAll}
	v := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(v, "title:"):
		r.Scope = ScopeTitle
		v = strings.TrimPrefix(v, "title:")
	case strings.HasPrefix(v, "summary:"):
		r.Scope = ScopeSummary
		v = strings.TrimPrefix(v, "summary:")
	}
	if strings.HasPrefix(v, "re:") {
		r.Kind = re
		v = strings.TrimPrefix(v, "re:")
		compiled, err := regexp.Compile("(?i)" + v)
		if err != nil {
			return Rule{}, fmt.Errorf("invalid regex %q: %w", v, err)
		}
		r.re = compiled
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return Rule{}, fmt.Errorf("empty rule %q", raw)
	}
	r.Value = v
	return r, nil
}

// Match checks whether an item passes the given set of rules.
// If no rules are provided, the item always passes.
// Include rules use OR logic (at least one must match).
// Exclude rules use AND logic (none must match).
func Match(item Item, rules []Rule) bool {
	if len(rules) == 0 {
		return true
	}

	hasIncludes := false
	anyIncludeMatched := false

	for _, r := range rules {
		switch r.Kind {
		case Include, IncludeRe:
			hasIncludes = true
			if matchesRule(item, r) {
				anyIncludeMatched = true
			}
		case Exclude, ExcludeRe:
			if matchesRule(item, r) {
				return false
			}
		}
	}

	return !hasIncludes || anyIncludeMatched
}

func matchesRule(item Item, r Rule) bool {
	text := textForScope(item, r.Scope)
	switch r.Kind {
	case Include, Exclude:
		return strings.Contains(text, strings.ToLower(r.Value))
	case IncludeRe, ExcludeRe:
		re := r.re
		if re == nil {
			var err error
			re, err = regexp.Compile("(?i)" + r.Value)
			if err != nil {
				return false
			}
		}
		return re.MatchString(text)
	}
	return false
}

func textForScope(item Item, scope Scope) string {
	switch scope {
	case ScopeTitle:
		return strings.ToLower(item.Title)
	case ScopeSummary:
		return strings.ToLower(item.Summary)
	default:
		return strings.ToLower(item.Title + " " + item.Summary)
	}
}
