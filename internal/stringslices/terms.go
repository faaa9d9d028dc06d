package stringslices

import "strings"

// ToLowerASCII lowercases A-Z only, leaving other runes untouched. Keyword
// matching folds case this way on every path because SQLite's lower() is
// ASCII-only; Unicode-aware folding on one side would make the stores
// disagree on non-ASCII terms.
func ToLowerASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

// ContainsAll reports whether haystack contains every term as a substring.
func ContainsAll(haystack string, terms []string) bool {
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

// Terms splits text into ASCII-lowercased whitespace-separated terms,
// dropping empty elements.
func Terms(text string) []string {
	var terms []string
	for _, f := range strings.Fields(text) {
		terms = append(terms, ToLowerASCII(f))
	}
	return terms
}
