package matching

import (
	"sort"
	"strings"
	"unicode"
)

// stopWords carry no signal in line item descriptions
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "the": {}, "of": {}, "for": {}, "to": {},
	"in": {}, "on": {}, "at": {}, "by": {}, "with": {}, "from": {}, "per": {},
	"ea": {}, "each": {}, "lot": {}, "item": {}, "misc": {}, "inc": {}, "incl": {},
}

// Tokenize lowercases s, splits it on anything that is not a letter or digit and
// returns the distinct significant tokens in order of first appearance.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = singular(f)
		if len(f) < 2 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}

// singular strips a trailing plural "s" ("outlets" -> "outlet", but not "glass")
func singular(token string) string {
	if len(token) > 3 && strings.HasSuffix(token, "s") && !strings.HasSuffix(token, "ss") {
		return token[:len(token)-1]
	}
	return token
}

// NormalizeDescription returns the sorted distinct tokens of s joined by a space.
// Two descriptions that differ only in case, punctuation, word order or plurals
// normalize to the same key.
func NormalizeDescription(s string) string {
	tokens := Tokenize(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
