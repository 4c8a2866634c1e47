package grading

import (
	"strings"
	"unicode"
)

// Normalize trims, casefolds, collapses whitespace runs to one space and drops
// trailing . , ; : ! ? characters.
func Normalize(s string) string {
	out := make([]rune, 0, len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && len(out) > 0 {
			out = append(out, ' ')
		}
		space = false
		out = append(out, unicode.ToLower(r))
	}
	// spaces go with the punctuation: "a . ." must end as "a" on the first
	// pass, otherwise Normalize is not idempotent
	return strings.TrimRight(string(out), trailingCut)
}

const trailingCut = ".,;:!? "

const (
	TokenTrue     = "true"
	TokenFalse    = "false"
	TokenNotGiven = "not given"
)

var (
	trueWords     = []string{"true", "t", "yes", "y"}
	falseWords    = []string{"false", "f", "no", "n"}
	notGivenWords = []string{"not given", "ng", "not_given"}

	// strict per-family tables, see WithStrictTFNG
	tfTrue  = []string{"true", "t"}
	tfFalse = []string{"false", "f"}
	ynTrue  = []string{"yes", "y"}
	ynFalse = []string{"no", "n"}
)

// ExpandTFNG maps True/False/Not Given and Yes/No/Not Given spellings onto
// the canonical tokens "true", "false" and "not given".
func ExpandTFNG(s string) string {
	return expandWith(s, trueWords, falseWords)
}

func expandWith(s string, truthy, falsy []string) string {
	n := Normalize(s)
	switch {
	case contains(truthy, n):
		return TokenTrue
	case contains(falsy, n):
		return TokenFalse
	case contains(notGivenWords, n):
		return TokenNotGiven
	}
	return n
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
