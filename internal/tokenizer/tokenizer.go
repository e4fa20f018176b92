// Package tokenizer turns free text into comparable token sets.
//
// The same policy is applied to stored notes and unsaved drafts, so overlap
// counts between any two texts are symmetric and reproducible.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinTokenLen is the minimum token length in runes.
const MinTokenLen = 2

var stopwords = map[string]struct{}{
	"the": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "do": {}, "does": {}, "did": {}, "has": {},
	"have": {}, "had": {}, "and": {}, "or": {}, "but": {}, "if": {},
	"then": {}, "than": {}, "so": {}, "as": {}, "at": {}, "by": {},
	"for": {}, "from": {}, "in": {}, "into": {}, "of": {}, "on": {},
	"to": {}, "with": {}, "it": {}, "its": {}, "this": {}, "that": {},
	"these": {}, "those": {}, "not": {}, "no": {}, "can": {}, "will": {},
	"we": {}, "our": {}, "you": {}, "your": {}, "they": {}, "their": {},
}

// Tokenize case-folds text and splits it on every rune that is not a letter
// or a digit. Fragments shorter than MinTokenLen and stopwords are dropped.
// The result may contain duplicates.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) < MinTokenLen {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

// Set is a set of tokens.
type Set map[string]struct{}

// NewSet builds a Set from tokens.
func NewSet(tokens []string) Set {
	s := make(Set, len(tokens))
	for _, t := range tokens {
		s[t] = struct{}{}
	}
	return s
}

// SetOf tokenizes text into a Set.
func SetOf(text string) Set {
	return NewSet(Tokenize(text))
}

// Has reports whether token is in the set.
func (s Set) Has(token string) bool {
	_, ok := s[token]
	return ok
}

// Overlap returns the number of tokens present in both sets.
func Overlap(a, b Set) int {
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	n := 0
	for t := range small {
		if _, ok := large[t]; ok {
			n++
		}
	}
	return n
}
