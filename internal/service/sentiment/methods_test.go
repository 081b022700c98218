package sentiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brandpulse/internal/config"
)

func TestLexicon(t *testing.T) {
	lex, err := NewLexicon()
	require.NoError(t, err)

	score := func(text string) float64 {
		s, err := lex.Score(input(text))
		require.NoError(t, err)
		return s.Value
	}

	plain := score("Gusto is great")
	assert.Greater(t, plain, 0.6)
	assert.Less(t, plain, 0.63)

	assert.Less(t, score("Gusto is not great"), 0.0, "negation flips")
	assert.Greater(t, score("Gusto is very good"), score("Gusto is good"), "boosters amplify")
	assert.Greater(t, score("Gusto is great!!!"), plain, "exclamation emphasis")
	assert.Less(t, score("The app is good but support is terrible"), 0.0, "clause after but dominates")
	assert.Greater(t, score("switched last week :)"), 0.0, "emoticons carry valence")
	assert.Equal(t, 0.0, score("gusto payroll runs on fridays"))
}

func TestLexiconEmphasisIsCapped(t *testing.T) {
	lex, err := NewLexicon()
	require.NoError(t, err)

	four, err := lex.Score(Input{Cleaned: "great!!!!", Tokens: []string{"great"}})
	require.NoError(t, err)
	ten, err := lex.Score(Input{Cleaned: "great!!!!!!!!!!", Tokens: []string{"great"}})
	require.NoError(t, err)
	assert.Equal(t, four.Value, ten.Value)
}

func TestLexiconEmphasisIgnoresLinks(t *testing.T) {
	lex, err := NewLexicon()
	require.NoError(t, err)

	plain, err := lex.Score(input("Gusto is great"))
	require.NoError(t, err)
	linked, err := lex.Score(input("Gusto is great https://gusto.com/a?b=1?c=2?d=3!"))
	require.NoError(t, err)
	assert.Equal(t, plain.Value, linked.Value)
}

func TestPolarity(t *testing.T) {
	pol, err := NewPolarity()
	require.NoError(t, err)

	great, err := pol.Score(input("support is great"))
	require.NoError(t, err)
	assert.InDelta(t, 0.8, great.Value, 1e-12)
	assert.InDelta(t, 0.75, great.Subjectivity, 1e-12)

	notGreat, err := pol.Score(input("support is not great"))
	require.NoError(t, err)
	assert.InDelta(t, -0.4, notGreat.Value, 1e-12)

	veryBad, err := pol.Score(input("support is very bad"))
	require.NoError(t, err)
	assert.InDelta(t, -0.91, veryBad.Value, 1e-12)

	mixed, err := pol.Score(input("good price, terrible support"))
	require.NoError(t, err)
	assert.InDelta(t, (0.7-1.0)/2, mixed.Value, 1e-12)

	none, err := pol.Score(input("payroll runs on fridays"))
	require.NoError(t, err)
	assert.Equal(t, MethodScore{}, none)
}

func TestDomainAdjuster(t *testing.T) {
	adj := NewDomainAdjuster([]config.PhraseDef{
		{Phrase: "easy to use", Weight: 0.2},
		{Phrase: "great support", Weight: 0.2},
		{Phrase: "hidden fees", Weight: -0.15},
	}, 0.3)

	s, err := adj.Score(input("Easy to use and great support"))
	require.NoError(t, err)
	assert.Equal(t, 0.3, s.Value, "clamped to bound")
	assert.Equal(t, 2, s.Hits)

	s, err = adj.Score(input("watch out for hidden fees"))
	require.NoError(t, err)
	assert.Equal(t, -0.15, s.Value)

	s, err = adj.Score(input("to use it is easy"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.Value, "phrases match as contiguous sequences")

	empty := NewDomainAdjuster(nil, 0.3)
	s, err = empty.Score(input("easy to use"))
	require.NoError(t, err)
	assert.Equal(t, MethodScore{}, s)
}
