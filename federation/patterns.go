package federation

import (
	"fmt"
	"regexp"
)

// Patterns is an allow/deny pair of regular expressions. Deny wins; a nil
// allow pattern admits everything, a nil deny pattern rejects nothing.
type Patterns struct {
	Allow *regexp.Regexp
	Deny  *regexp.Regexp
}

// CompilePatterns compiles the configured expressions. Empty strings leave
// the corresponding side unset.
func CompilePatterns(allow, deny string) (Patterns, error) {
	var p Patterns
	var err error
	if allow != "" {
		if p.Allow, err = regexp.Compile(allow); err != nil {
			return p, fmt.Errorf("compile allow pattern: %w", err)
		}
	}
	if deny != "" {
		if p.Deny, err = regexp.Compile(deny); err != nil {
			return p, fmt.Errorf("compile deny pattern: %w", err)
		}
	}
	return p, nil
}

// Permits reports whether s passes the patterns.
func (p Patterns) Permits(s string) bool {
	if p.Deny != nil && p.Deny.MatchString(s) {
		return false
	}
	return p.Allow == nil || p.Allow.MatchString(s)
}
