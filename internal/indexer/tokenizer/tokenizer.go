// Package tokenizer turns free text into index terms. It strips punctuation,
// lower-cases, splits on whitespace, removes English stop-words and reduces
// every remaining word with the Snowball English stemmer.
package tokenizer

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

// asciiPunctuation is the set of ASCII punctuation characters. Several of
// them ($+<=>^`|~) are symbols rather than punctuation to package unicode.
const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// Normalize returns the ordered index terms for text. Repeated words yield
// repeated terms; the result is empty (never nil) for text with no indexable
// words.
func Normalize(text string) []string {
	words := Tokenize(text)
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if IsStopWord(word) {
			continue
		}
		stemmed := english.Stem(word, true)
		if stemmed == "" {
			continue
		}
		terms = append(terms, stemmed)
	}
	return terms
}

// Tokenize removes punctuation, lower-cases text and splits it on
// whitespace. Stop-words are kept.
func Tokenize(text string) []string {
	stripped := strings.Map(func(r rune) rune {
		if isPunctuation(r) {
			return -1
		}
		return r
	}, text)
	return strings.Fields(strings.ToLower(stripped))
}

func isPunctuation(r rune) bool {
	if r < unicode.MaxASCII {
		return strings.ContainsRune(asciiPunctuation, r)
	}
	return unicode.IsPunct(r)
}
