package dedup

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultPrefixes are boilerplate lead-ins that sources prepend to headlines.
var DefaultPrefixes = []string{
	"BREAKING:", "NEW:", "UPDATE:", "DC Wiki Update:", "TMS News:",
	"Fandom Wiki Update:", "ANN DC News:", "ANN:", "Reuters:", "BBC:",
}

// TitleNormalizer canonicalizes headlines into dedup keys.
// It is safe for concurrent use.
type TitleNormalizer struct {
	prefixes []string
}

// NewTitleNormalizer builds a normalizer; a nil prefix list uses DefaultPrefixes.
func NewTitleNormalizer(prefixes []string) *TitleNormalizer {
	if prefixes == nil {
		prefixes = DefaultPrefixes
	}
	folded := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		folded = append(folded, fold(p))
	}
	return &TitleNormalizer{prefixes: folded}
}

// Normalize case-folds the title, strips boilerplate prefixes and every
// character that is not a letter, digit, underscore or space, and collapses
// whitespace.
func (n *TitleNormalizer) Normalize(title string) string {
	t := fold(strings.TrimSpace(title))

	for _, p := range n.prefixes {
		if strings.HasPrefix(t, p) {
			t = strings.TrimSpace(t[len(p):])
		}
	}

	var b strings.Builder
	b.Grow(len(t))
	for _, r := range t {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r), r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// fold builds a fresh Caser per call since a Caser carries state.
func fold(s string) string {
	return cases.Fold().String(norm.NFKC.String(s))
}
