// Package title derives human readable headings from item keys.
package title

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Heading replaces separators with spaces and capitalizes the first letter of each word.
// The rest of every word is kept as is.
func Heading(key string) string {
	words := strings.FieldsFunc(key, func(r rune) bool {
		return r == '-' || r == '_' || r == ' ' || r == '\t'
	})
	// a Caser is stateful and must not be shared between goroutines
	caser := cases.Title(language.Und, cases.NoLower)
	for i, word := range words {
		words[i] = caser.String(word)
	}
	return strings.Join(words, " ")
}
