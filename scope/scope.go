// Package scope decides which frames a batch job picks up. Rules are regular
// expressions matched against either the galaxy name or the file path, split
// into include and exclude lists, with exclusions always winning.
package scope

import (
	"fmt"
	"regexp"
)

// Rule is a single compiled scope rule.
type Rule struct {
	Pattern   *regexp.Regexp
	MatchType string // "galaxy" or "path"
}

// Scope holds the include and exclude rule sets and the policy applied when
// nothing matches. Rules are keyed by "pattern|matchType" so the same pattern
// can target both dimensions.
type Scope struct {
	IncludeRules map[string]Rule
	ExcludeRules map[string]Rule
	DefaultAllow bool
}

// NewScope returns an empty scope with the given default policy.
func NewScope(defaultAllow bool) *Scope {
	return &Scope{
		IncludeRules: make(map[string]Rule),
		ExcludeRules: make(map[string]Rule),
		DefaultAllow: defaultAllow,
	}
}

// MatchesString reports whether the input passes the rules for the given match
// type. Exclusions are checked first, then inclusions, then the default policy.
func (scope *Scope) MatchesString(input string, matchType string) bool {
	for _, rule := range scope.ExcludeRules {
		if rule.MatchType == matchType && rule.Pattern.MatchString(input) {
			return false
		}
	}

	for _, rule := range scope.IncludeRules {
		if rule.MatchType == matchType && rule.Pattern.MatchString(input) {
			return true
		}
	}

	return scope.DefaultAllow
}

// Matches reports whether a frame identified by its galaxy and file path is in
// scope. Both dimensions have to pass.
func (scope *Scope) Matches(galaxy string, path string) bool {
	return scope.MatchesString(galaxy, "galaxy") && scope.MatchesString(path, "path")
}

// ClearRules removes every rule from both lists, leaving the default policy.
func (scope *Scope) ClearRules() {
	scope.IncludeRules = make(map[string]Rule)
	scope.ExcludeRules = make(map[string]Rule)
}

// AddRule compiles the pattern and stores it in the include or exclude list.
// It returns an error for an unknown match type, an invalid pattern, or a rule
// that already exists in the targeted list.
func (scope *Scope) AddRule(pattern string, matchType string, exclude bool) error {
	if matchType != "galaxy" && matchType != "path" {
		return fmt.Errorf("invalid match type: %s", matchType)
	}

	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid regex pattern: %w", err)
	}

	key := fmt.Sprintf("%s|%s", pattern, matchType)
	rule := Rule{Pattern: compiled, MatchType: matchType}

	if exclude {
		if _, exists := scope.ExcludeRules[key]; exists {
			return fmt.Errorf("rule already exists in exclude list")
		}
		scope.ExcludeRules[key] = rule
		return nil
	}

	if _, exists := scope.IncludeRules[key]; exists {
		return fmt.Errorf("rule already exists in include list")
	}
	scope.IncludeRules[key] = rule

	return nil
}

// RemoveRule deletes the rule for the pattern and match type from the include
// or exclude list. It returns an error when the rule is not present.
func (scope *Scope) RemoveRule(pattern string, matchType string, exclude bool) error {
	key := fmt.Sprintf("%s|%s", pattern, matchType)

	if exclude {
		if _, exists := scope.ExcludeRules[key]; !exists {
			return fmt.Errorf("rule not found in exclude list")
		}
		delete(scope.ExcludeRules, key)
		return nil
	}

	if _, exists := scope.IncludeRules[key]; !exists {
		return fmt.Errorf("rule not found in include list")
	}
	delete(scope.IncludeRules, key)

	return nil
}
