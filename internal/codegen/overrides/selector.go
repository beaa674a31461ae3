package overrides

import (
	"fmt"
	"path"
	"strings"
)

// selector matches entity paths segment by segment. Each dot separated
// segment is a path.Match pattern and the segment counts must be equal, so
// "Gtk.*" matches top-level entities only and never their members.
type selector struct {
	raw      string
	segments []string
}

func parseSelector(s string) (selector, error) {
	if s == "" {
		return selector{}, fmt.Errorf("empty selector")
	}
	segs := strings.Split(s, ".")
	for _, seg := range segs {
		if seg == "" {
			return selector{}, fmt.Errorf("selector %q has an empty segment", s)
		}
		if _, err := path.Match(seg, ""); err != nil {
			return selector{}, fmt.Errorf("selector %q: bad pattern %q: %w", s, seg, err)
		}
	}
	return selector{raw: s, segments: segs}, nil
}

func (s selector) match(p string) bool {
	parts := strings.Split(p, ".")
	if len(parts) != len(s.segments) {
		return false
	}
	for i, seg := range s.segments {
		if ok, _ := path.Match(seg, parts[i]); !ok {
			return false
		}
	}
	return true
}

// captures reports whether the last segment holds exactly one '*' and no
// other wildcard, which rename values may refer to.
func (s selector) captures() bool {
	last := s.segments[len(s.segments)-1]
	return strings.Count(last, "*") == 1 && !strings.ContainsAny(last, "?[\\")
}

// capture returns the text the '*' of the last segment matched in p.
func (s selector) capture(p string) (string, bool) {
	if !s.captures() {
		return "", false
	}
	last := s.segments[len(s.segments)-1]
	prefix, suffix, _ := strings.Cut(last, "*")
	name := p[strings.LastIndexByte(p, '.')+1:]
	if len(name) < len(prefix)+len(suffix) {
		return "", false
	}
	return name[len(prefix) : len(name)-len(suffix)], true
}

// specificity ranks matching rules: more literal segments first, then more
// literal characters, then scoped over unscoped.
type specificity struct {
	literalSegments int
	literalChars    int
	scoped          int
}

func (a specificity) compare(b specificity) int {
	switch {
	case a.literalSegments != b.literalSegments:
		return a.literalSegments - b.literalSegments
	case a.literalChars != b.literalChars:
		return a.literalChars - b.literalChars
	}
	return a.scoped - b.scoped
}

func (s selector) specificity(scoped bool) specificity {
	var sp specificity
	for _, seg := range s.segments {
		if !strings.ContainsAny(seg, "*?[") {
			sp.literalSegments++
		}
		sp.literalChars += literalChars(seg)
	}
	if scoped {
		sp.scoped = 1
	}
	return sp
}

// literalChars counts the characters of a pattern outside wildcards and
// character classes.
func literalChars(pattern string) int {
	n := 0
	inClass := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case inClass:
			if c == ']' {
				inClass = false
			}
		case c == '[':
			inClass = true
		case c == '*' || c == '?':
		case c == '\\':
			i++
			n++
		default:
			n++
		}
	}
	return n
}
