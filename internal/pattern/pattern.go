// Package pattern matches strings against ordered lists of glob patterns.
//
// Globs are compiled without separators, so "*" matches any run of characters
// including "/", "?" matches exactly one character and "[...]" is a character
// class ("[!...]" negates it).
package pattern

import (
	"github.com/gobwas/glob"
)

type Patterns struct {
	invert   bool
	raw      []string
	compiled []glob.Glob
}

// literal matches a pattern that failed to compile as a glob.
type literal string

func (l literal) Match(s string) bool { return string(l) == s }

// New compiles patterns once. A pattern that cannot be compiled as a glob is
// matched literally.
func New(invert bool, patterns ...string) *Patterns {
	p := &Patterns{
		invert:   invert,
		raw:      make([]string, 0, len(patterns)),
		compiled: make([]glob.Glob, 0, len(patterns)),
	}
	for _, raw := range patterns {
		p.raw = append(p.raw, raw)
		p.compiled = append(p.compiled, compile(raw))
	}
	return p
}

// Matches reports whether any pattern matches candidate, negated when the
// set was built inverted.
func (p *Patterns) Matches(candidate string) bool {
	if p == nil {
		return false
	}
	matched := false
	for _, g := range p.compiled {
		if g.Match(candidate) {
			matched = true
			break
		}
	}
	return matched != p.invert
}

func (p *Patterns) Patterns() []string {
	out := make([]string, len(p.raw))
	copy(out, p.raw)
	return out
}

func (p *Patterns) Len() int {
	return len(p.raw)
}

func compile(raw string) glob.Glob {
	g, err := glob.Compile(raw)
	if err != nil {
		return literal(raw)
	}
	return g
}
