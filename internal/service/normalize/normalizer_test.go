package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	n := New()

	tests := []struct {
		name   string
		raw    string
		text   string
		tokens []string
	}{
		{
			name:   "lowercase and collapse punctuation",
			raw:    "Gusto pricing is TOO high!!!",
			text:   "gusto pricing is too high!",
			tokens: []string{"gusto", "pricing", "is", "too", "high"},
		},
		{
			name:   "strip urls and handles",
			raw:    "Check https://gusto.com/pricing @gustohq and u/someone in r/smallbusiness",
			text:   "check and in",
			tokens: []string{"check", "and", "in"},
		},
		{
			name:   "markdown and html",
			raw:    "**Great** [support team](https://example.com) <b>today</b> &amp; more",
			text:   "great support team today & more",
			tokens: []string{"great", "support", "team", "today", "more"},
		},
		{
			name:   "emoticons become tokens",
			raw:    "Switched to Gusto :) no regrets <3",
			text:   "switched to gusto emo_smile no regrets emo_heart",
			tokens: []string{"switched", "to", "gusto", "emo_smile", "no", "regrets", "emo_heart"},
		},
		{
			name:   "inner apostrophes and hyphens",
			raw:    "Don't love the user-friendly claims...",
			text:   "don't love the user-friendly claims.",
			tokens: []string{"don't", "love", "the", "user-friendly", "claims"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.raw)
			assert.Equal(t, tt.text, got.Text)
			assert.Equal(t, tt.tokens, got.Tokens)
			assert.False(t, got.Empty)
		})
	}
}

func TestNormalizeEmptyIsFlagged(t *testing.T) {
	n := New()
	for _, raw := range []string{"", "   ", "https://t.co/abc", "!!! ???", "@someone"} {
		got := n.Normalize(raw)
		assert.True(t, got.Empty, raw)
		assert.Empty(t, got.Tokens, raw)
		assert.Equal(t, "", got.Text, raw)
	}
}

func TestNormalizeIsPure(t *testing.T) {
	n := New()
	raw := "Payroll ran late AGAIN?!? Support said 'wait' :( https://x.com/y"
	first := n.Normalize(raw)
	second := n.Normalize(raw)
	assert.Equal(t, first, second)
	assert.Equal(t, "payroll ran late again? support said 'wait' emo_frown", first.Text)
}

func TestCleanKeepsRepeatedPunctuation(t *testing.T) {
	n := New()
	raw := "Love it!!! see https://gusto.com/pricing?plan=simple&ref=a?b"
	cleaned := n.Clean(raw)
	assert.Equal(t, "love it!!! see", cleaned)
	assert.Equal(t, cleaned, n.Normalize(raw).Cleaned)
	assert.Equal(t, "love it! see", n.Normalize(raw).Text)
}

func TestKeyIgnoresPunctuation(t *testing.T) {
	n := New()
	a := n.Normalize("Gusto pricing is too high!!")
	b := n.Normalize("gusto pricing is too high")
	assert.NotEqual(t, a.Text, b.Text)
	assert.Equal(t, a.Key(), b.Key())
}

func TestIndexSequence(t *testing.T) {
	tokens := []string{"compared", "to", "bamboo", "hr", "and", "bamboo", "hr", "again"}
	assert.Equal(t, 2, IndexSequence(tokens, []string{"bamboo", "hr"}, 0))
	assert.Equal(t, 5, IndexSequence(tokens, []string{"bamboo", "hr"}, 3))
	assert.Equal(t, -1, IndexSequence(tokens, []string{"hr", "payroll"}, 0))
	assert.Equal(t, -1, IndexSequence(tokens, nil, 0))
	assert.True(t, ContainsSequence(tokens, []string{"again"}))
}
