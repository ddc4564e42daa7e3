// Package ordinal resolves numeric references in user utterances.
//
// Users address search results by position: "2", "el tercero", "dame
// detalles del dos". Resolution is deliberately loose — the mapping
// table is scanned in declaration order and the first key that appears
// as a substring of the cleaned input wins, so "uno" inside a longer
// word still matches. That behavior is long-standing and callers depend
// on it; do not tighten it to word-boundary matching.
package ordinal

import "strings"

// entry pairs a spelled-out or digit form with its position.
type entry struct {
	key string
	num int
}

// table is scanned in order; word forms come first so "dos" beats "2"
// when both appear.
var table = []entry{
	{"uno", 1},
	{"dos", 2},
	{"tres", 3},
	{"cuatro", 4},
	{"cinco", 5},
	{"1", 1},
	{"2", 2},
	{"3", 3},
	{"4", 4},
	{"5", 5},
}

// Resolve extracts an ordinal (1-5) from text. It lowercases the input,
// drops every character outside [a-z0-9 ], then returns the first table
// entry whose key occurs as a substring. The second return is false
// when no entry matches.
//
// Resolve does not range-check against the current result count; that
// is the caller's job since only the caller knows how many results the
// last search produced.
func Resolve(text string) (int, bool) {
	cleaned := clean(text)
	for _, e := range table {
		if strings.Contains(cleaned, e.key) {
			return e.num, true
		}
	}
	return 0, false
}

// clean lowercases s and strips everything outside [a-z0-9 ].
func clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// affirmations are the continuation words that mean "yes, show me the
// full description" after the assistant has offered one.
var affirmations = map[string]bool{
	"si":  true,
	"sí":  true,
	"mas": true,
	"más": true,
}

// IsAffirmation reports whether text is a bare affirmative continuation
// ("sí", "si", "más"). Unlike Resolve this requires the whole trimmed
// input to be the affirmation word — "sí, el dos" is a new request, not
// a continuation.
func IsAffirmation(text string) bool {
	return affirmations[strings.ToLower(strings.TrimSpace(text))]
}
