package stream

import (
	"fmt"
	"strings"
	"unicode"
)

// Sanitizer keeps only an allow-listed charset: ASCII letters and digits,
// whitespace, one natural-language script and an optional extra set.
type Sanitizer struct {
	script *unicode.RangeTable
	extra  map[rune]struct{}
}

// NewSanitizer builds a sanitizer for a unicode script name such as "Thai".
// An empty script name allows ASCII only.
func NewSanitizer(script string, extra string) (*Sanitizer, error) {
	s := &Sanitizer{extra: make(map[rune]struct{})}
	if script != "" {
		table, ok := unicode.Scripts[script]
		if !ok {
			return nil, fmt.Errorf("unknown unicode script %q", script)
		}
		s.script = table
	}
	for _, r := range extra {
		s.extra[r] = struct{}{}
	}
	return s, nil
}

// Clean strips every rune outside the allow-list. Invalid UTF-8 decodes to
// U+FFFD and is stripped along with control sequences.
func (s *Sanitizer) Clean(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if s.allowed(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (s *Sanitizer) allowed(r rune) bool {
	switch {
	case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
		return true
	case unicode.IsSpace(r):
		return true
	case s.script != nil && unicode.Is(s.script, r):
		return true
	}
	_, ok := s.extra[r]
	return ok
}
