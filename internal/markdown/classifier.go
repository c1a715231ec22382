package markdown

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/wudi/mdgate/config"
)

// MarkerSuffix is the reserved path suffix that triggers the pipeline.
const MarkerSuffix = ".md"

// apiPrefix is the reserved API path prefix excluded by default.
const apiPrefix = "/api/"

// matcherKind distinguishes exclusion matcher variants without dynamic type
// inspection.
type matcherKind int

const (
	matchLiteral matcherKind = iota
	matchRegexp
	matchGlob
)

// PathMatcher is a compiled exclusion rule: a literal substring, a regular
// expression, or a doublestar glob.
type PathMatcher struct {
	kind    matcherKind
	literal string
	re      *regexp.Regexp
	glob    string
}

// Matches reports whether the matcher matches the given path.
func (m PathMatcher) Matches(path string) bool {
	switch m.kind {
	case matchRegexp:
		return m.re.MatchString(path)
	case matchGlob:
		ok, _ := doublestar.Match(m.glob, path)
		return ok
	default:
		return strings.Contains(path, m.literal)
	}
}

// CompileMatchers compiles exclusion rules from config form. A "re:" prefix
// produces a regexp matcher, "glob:" a doublestar matcher, "literal:" or a
// bare string a substring matcher.
func CompileMatchers(rules []string) ([]PathMatcher, error) {
	matchers := make([]PathMatcher, 0, len(rules))
	for _, rule := range rules {
		switch {
		case strings.HasPrefix(rule, "re:"):
			re, err := regexp.Compile(strings.TrimPrefix(rule, "re:"))
			if err != nil {
				return nil, fmt.Errorf("exclude rule %q: %w", rule, err)
			}
			matchers = append(matchers, PathMatcher{kind: matchRegexp, re: re})
		case strings.HasPrefix(rule, "glob:"):
			pattern := strings.TrimPrefix(rule, "glob:")
			if !doublestar.ValidatePattern(pattern) {
				return nil, fmt.Errorf("exclude rule %q: invalid glob", rule)
			}
			matchers = append(matchers, PathMatcher{kind: matchGlob, glob: pattern})
		case strings.HasPrefix(rule, "literal:"):
			matchers = append(matchers, PathMatcher{kind: matchLiteral, literal: strings.TrimPrefix(rule, "literal:")})
		default:
			matchers = append(matchers, PathMatcher{kind: matchLiteral, literal: rule})
		}
	}
	return matchers, nil
}

// Classifier decides whether a request path is eligible for the pipeline.
type Classifier struct {
	excludeAPI bool
	matchers   []PathMatcher
}

// NewClassifier builds a classifier from exclusion config.
func NewClassifier(cfg config.ExcludeConfig) (*Classifier, error) {
	matchers, err := CompileMatchers(cfg.Paths)
	if err != nil {
		return nil, err
	}
	return &Classifier{
		excludeAPI: cfg.ExcludeAPIRoutes(),
		matchers:   matchers,
	}, nil
}

// Eligible reports whether a path should be handled by the pipeline. It is a
// pure function of the path and compiled rules.
func (c *Classifier) Eligible(path string) bool {
	if !strings.HasSuffix(path, MarkerSuffix) {
		return false
	}
	if c.excludeAPI && strings.HasPrefix(path, apiPrefix) {
		return false
	}
	for _, m := range c.matchers {
		if m.Matches(path) {
			return false
		}
	}
	return true
}

// StripMarker removes the marker suffix from an eligible path.
func StripMarker(path string) string {
	return strings.TrimSuffix(path, MarkerSuffix)
}
