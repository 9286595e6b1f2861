package dedup

import "github.com/pmezard/go-difflib/difflib"

// Ratio returns the similarity of a and b in [0, 1] as 2*M/T over runes,
// where M counts the runes in difflib's matching blocks. Two empty strings
// are identical.
func Ratio(a, b string) float64 {
	return difflib.NewMatcher(runeStrings(a), runeStrings(b)).Ratio()
}

func runeStrings(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
