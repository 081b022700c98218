package theme

import (
	"strings"
	"unicode"
)

// TermFilter decides which tokens may become keywords or topic vocabulary
type TermFilter struct {
	stopwords map[string]bool
}

// NewTermFilter creates a filter from a stopword list
func NewTermFilter(stopwords []string) *TermFilter {
	set := make(map[string]bool, len(stopwords))
	for _, w := range stopwords {
		set[strings.ToLower(w)] = true
	}
	return &TermFilter{stopwords: set}
}

// Keep reports whether a single token is a content term
func (f *TermFilter) Keep(tok string) bool {
	if len([]rune(tok)) <= 2 || f.stopwords[tok] || strings.HasPrefix(tok, "emo_") {
		return false
	}
	for _, r := range tok {
		if !unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// Terms returns the unigram and bigram terms of a token sequence in order
func (f *TermFilter) Terms(tokens []string) []string {
	terms := make([]string, 0, len(tokens)*2)
	for i, tok := range tokens {
		if !f.Keep(tok) {
			continue
		}
		terms = append(terms, tok)
		if i+1 < len(tokens) && f.Keep(tokens[i+1]) {
			terms = append(terms, tok+" "+tokens[i+1])
		}
	}
	return terms
}

// Unigrams returns the kept single tokens in order
func (f *TermFilter) Unigrams(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if f.Keep(tok) {
			out = append(out, tok)
		}
	}
	return out
}
