package embedder

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Preprocess normalizes file content before embedding.
// Text is lowercased and split on whitespace; a word is kept when it is longer
// than two characters or consists only of letters and digits. Issue text is
// embedded verbatim and does not go through Preprocess.
func Preprocess(text string) string {
	words := strings.Fields(strings.ToLower(text))
	kept := words[:0]
	for _, w := range words {
		if utf8.RuneCountInString(w) > 2 || isAlnum(w) {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

func isAlnum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
