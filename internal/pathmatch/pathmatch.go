// Package pathmatch matches and rewrites dotted, wildcard-capable field
// path patterns against concrete patch paths. A pattern is a dotted path
// where "*" matches exactly one concrete segment of any kind, e.g.
// "plantings.*.bedFeet". Literal segments compare by string-equivalent
// value, so the pattern segment "3" matches both the array index 3 and the
// map key "3".
package pathmatch

import (
	"strconv"
	"strings"

	"plancore/pkg/domain"
)

type token struct {
	wildcard bool
	seg      domain.Segment
}

// Pattern is a parsed path pattern.
type Pattern struct {
	raw  string
	toks []token
}

// Parse splits a dotted pattern string into segments. All-digit segments
// parse as array indices; everything else is a map key. "*" is a
// single-segment wildcard.
func Parse(s string) Pattern {
	if s == "" {
		return Pattern{}
	}
	parts := strings.Split(s, ".")
	toks := make([]token, len(parts))
	for i, part := range parts {
		if part == "*" {
			toks[i] = token{wildcard: true}
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			toks[i] = token{seg: domain.Index(n)}
			continue
		}
		toks[i] = token{seg: domain.Key(part)}
	}
	return Pattern{raw: s, toks: toks}
}

// String returns the pattern as originally written.
func (p Pattern) String() string { return p.raw }

// Len returns the number of pattern segments.
func (p Pattern) Len() int { return len(p.toks) }

// Wildcards counts the wildcard segments in the pattern.
func (p Pattern) Wildcards() int {
	n := 0
	for _, t := range p.toks {
		if t.wildcard {
			n++
		}
	}
	return n
}

// Matches reports whether the concrete path matches the pattern: equal
// lengths, every non-wildcard segment equal by string value.
func (p Pattern) Matches(path domain.Path) bool {
	if len(path) != len(p.toks) {
		return false
	}
	for i, t := range p.toks {
		if t.wildcard {
			continue
		}
		if t.seg.String() != path[i].String() {
			return false
		}
	}
	return true
}

// capture returns the concrete segments bound by the pattern's wildcards,
// in order.
func (p Pattern) capture(path domain.Path) []domain.Segment {
	var out []domain.Segment
	for i, t := range p.toks {
		if t.wildcard {
			out = append(out, path[i])
		}
	}
	return out
}

// Transform rewrites path from one pattern shape to another. It returns
// (nil, false) if the path does not match from. Otherwise the result is
// built from to's segments, with each wildcard position filled by the
// concrete segment captured at the same ordinal wildcard position in from,
// keeping the captured segment's original type (array indices stay
// integers).
//
// Both patterns must declare the same number of wildcards; registration
// validates that up front, so an excess wildcard in to reports no match
// rather than guessing.
func Transform(path domain.Path, from, to Pattern) (domain.Path, bool) {
	if !from.Matches(path) {
		return nil, false
	}
	captured := from.capture(path)
	out := make(domain.Path, 0, len(to.toks))
	next := 0
	for _, t := range to.toks {
		if !t.wildcard {
			out = append(out, t.seg)
			continue
		}
		if next >= len(captured) {
			return nil, false
		}
		out = append(out, captured[next])
		next++
	}
	return out, true
}
