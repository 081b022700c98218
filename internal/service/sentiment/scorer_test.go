package sentiment

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brandpulse/internal/config"
	"brandpulse/internal/domain/signal"
	"brandpulse/internal/logging"
	"brandpulse/internal/service/normalize"
)

type stubMethod struct {
	name  string
	score MethodScore
	err   error
	panic bool
}

func (m stubMethod) Name() string { return m.name }

func (m stubMethod) Score(Input) (MethodScore, error) {
	if m.panic {
		panic("boom")
	}
	return m.score, m.err
}

func defaultConfig() Config {
	return Config{
		LexiconWeight:     0.6,
		PolarityWeight:    0.4,
		PositiveThreshold: 0.1,
		NegativeThreshold: -0.1,
		AdjustmentBound:   0.3,
		PipelineVersion:   "test",
	}
}

func input(text string) Input {
	norm := normalize.New().Normalize(text)
	return Input{Cleaned: norm.Cleaned, Text: norm.Text, Tokens: norm.Tokens}
}

func TestLabelBoundariesAreInclusive(t *testing.T) {
	assert.Equal(t, signal.LabelPositive, LabelFor(0.1, 0.1, -0.1))
	assert.Equal(t, signal.LabelNegative, LabelFor(-0.1, 0.1, -0.1))
	assert.Equal(t, signal.LabelNeutral, LabelFor(0.0, 0.1, -0.1))
	assert.Equal(t, signal.LabelNeutral, LabelFor(0.0999, 0.1, -0.1))
	assert.Equal(t, signal.LabelNeutral, LabelFor(-0.0999, 0.1, -0.1))
}

func TestScorerLabelsAtCombinedBoundaries(t *testing.T) {
	zero := stubMethod{name: "zero"}
	tests := []struct {
		adjustment float64
		label      signal.Label
	}{
		{0.1, signal.LabelPositive},
		{-0.1, signal.LabelNegative},
		{0.0, signal.LabelNeutral},
	}
	for _, tt := range tests {
		adj := stubMethod{name: "domain", score: MethodScore{Value: tt.adjustment}}
		s := NewScorer(defaultConfig(), zero, zero, adj, logging.NewTestLogger())

		res := s.Score("p1", input("anything"))
		assert.Equal(t, tt.adjustment, res.Score)
		assert.Equal(t, tt.label, res.Label)
	}
}

func TestEmptyPhraseTableFallsBackToWeightedMethods(t *testing.T) {
	s, err := NewDefaultScorer(defaultConfig(), nil, logging.NewTestLogger())
	require.NoError(t, err)

	res := s.Score("p1", input("Gusto support is really helpful but the pricing is too expensive"))

	assert.False(t, res.Degraded)
	assert.Equal(t, 0.0, res.Adjustment)
	assert.InDelta(t, 0.6*res.Lexicon+0.4*res.Polarity, res.Score, 1e-12)
	assert.NotZero(t, res.Lexicon)
	assert.NotZero(t, res.Polarity)
}

func TestMethodFailureDegradesToZero(t *testing.T) {
	pol := stubMethod{name: "polarity", score: MethodScore{Value: 0.5, Subjectivity: 0.6}}
	adj := stubMethod{name: "domain"}

	tests := []struct {
		name   string
		method stubMethod
	}{
		{"error", stubMethod{name: "lexicon", err: errors.New("lexicon unavailable")}},
		{"panic", stubMethod{name: "lexicon", panic: true}},
		{"nan", stubMethod{name: "lexicon", score: MethodScore{Value: math.NaN()}}},
		{"inf", stubMethod{name: "lexicon", score: MethodScore{Value: math.Inf(1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScorer(defaultConfig(), tt.method, pol, adj, logging.NewTestLogger())
			res := s.Score("p1", input("fine"))

			assert.True(t, res.Degraded)
			assert.Equal(t, []string{"lexicon"}, res.FailedMethods)
			assert.Equal(t, 0.0, res.Lexicon)
			assert.InDelta(t, 0.2, res.Score, 1e-12)
			assert.Equal(t, signal.LabelPositive, res.Label)
		})
	}
}

func TestScoreIsIdempotent(t *testing.T) {
	s, err := NewDefaultScorer(defaultConfig(), []config.PhraseDef{{Phrase: "too expensive", Weight: -0.15}}, logging.NewTestLogger())
	require.NoError(t, err)

	in := input("Gusto is way too expensive now!! Thinking about ADP :(")
	first := s.Score("p1", in)
	second := s.Score("p1", in)
	assert.Equal(t, first, second)
	assert.Equal(t, signal.LabelNegative, first.Label)
	assert.Equal(t, -0.15, first.Adjustment)
	assert.Equal(t, "test", first.PipelineVersion)
}

func TestEmptyInputIsNeutral(t *testing.T) {
	s, err := NewDefaultScorer(defaultConfig(), nil, logging.NewTestLogger())
	require.NoError(t, err)

	res := s.Score("p1", Input{})
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, signal.LabelNeutral, res.Label)
	assert.False(t, res.Degraded)
	assert.Equal(t, 0.0, res.Confidence)
}

func TestConfidence(t *testing.T) {
	assert.InDelta(t, 0.4*0.5+0.3*0.5+0.3*0.4, Confidence(0.5, -0.5, 2), 1e-12)
	assert.Equal(t, 1.0, Confidence(1, 1, 10))
}
