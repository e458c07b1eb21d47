// Package fuzzy implements the fuzzy_match host function §4.5 registers
// for the solutions metadata cache's fuzzy-search predicate: case- and
// accent-insensitive, tolerant of up to two edit-distance typos or a
// plain substring containment.
//
// Grounded on golang.org/x/text's transform/norm/runes pipeline for
// diacritic folding (a standard idiom in the corpus's x/text dependency
// tree) and github.com/agnivade/levenshtein for the edit-distance check
// (pulled from the AKJUS-bsc-erigon pack sibling, which depends on it
// directly for similar fuzzy-name matching).
package fuzzy

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxTypos is the edit-distance budget §4.5 allows before two strings are
// no longer considered a fuzzy match.
const MaxTypos = 2

var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// fold lowercases s and strips combining diacritical marks, so "café" and
// "Cafe" compare equal.
func fold(s string) string {
	out, _, err := transform.String(foldDiacritics, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// Match implements the SQL-registrable fuzzy_match(text, query) -> 0|1
// predicate from §4.5: case-insensitive, accent-insensitive, true on
// substring containment or when the whole text or any single word of it
// is within MaxTypos edit distance of the query.
func Match(text, query string) bool {
	if query == "" {
		return true
	}
	ft, fq := fold(text), fold(query)
	if strings.Contains(ft, fq) {
		return true
	}
	for _, word := range strings.Fields(ft) {
		if levenshtein.ComputeDistance(word, fq) <= MaxTypos {
			return true
		}
	}
	return levenshtein.ComputeDistance(ft, fq) <= MaxTypos
}

// MatchInt adapts Match to the 0|1 integer return §4.5 describes for a
// SQL scalar function registration.
func MatchInt(text, query string) int {
	if Match(text, query) {
		return 1
	}
	return 0
}
