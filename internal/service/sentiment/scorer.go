package sentiment

import (
	"fmt"
	"math"

	"brandpulse/internal/config"
	"brandpulse/internal/domain/signal"
	"brandpulse/internal/logging"
	"brandpulse/internal/metrics"
)

// Config holds combination weights and label thresholds
type Config struct {
	LexiconWeight     float64
	PolarityWeight    float64
	PositiveThreshold float64
	NegativeThreshold float64
	AdjustmentBound   float64
	PipelineVersion   string
}

// Scorer combines the lexicon, polarity and domain methods into one result
type Scorer struct {
	config   Config
	lexicon  Method
	polarity Method
	adjuster Method
	logger   logging.Logger
}

// NewScorer creates a scorer from explicit methods
func NewScorer(cfg Config, lexicon, polarity, adjuster Method, logger logging.Logger) *Scorer {
	return &Scorer{
		config:   cfg,
		lexicon:  lexicon,
		polarity: polarity,
		adjuster: adjuster,
		logger:   logger,
	}
}

// NewDefaultScorer creates a scorer with the built-in methods and the catalog phrase table
func NewDefaultScorer(cfg Config, phrases []config.PhraseDef, logger logging.Logger) (*Scorer, error) {
	lexicon, err := NewLexicon()
	if err != nil {
		return nil, fmt.Errorf("error loading lexicon: %w", err)
	}
	polarity, err := NewPolarity()
	if err != nil {
		return nil, fmt.Errorf("error loading polarity table: %w", err)
	}
	return NewScorer(cfg, lexicon, polarity, NewDomainAdjuster(phrases, cfg.AdjustmentBound), logger), nil
}

// Score computes the combined sentiment of one post. A failing method
// contributes zero and marks the result degraded.
func (s *Scorer) Score(postID string, in Input) signal.SentimentResult {
	result := signal.SentimentResult{
		PostID:          postID,
		PipelineVersion: s.config.PipelineVersion,
	}

	lex, lexOK := s.run(postID, s.lexicon, in)
	pol, polOK := s.run(postID, s.polarity, in)
	adj, adjOK := s.run(postID, s.adjuster, in)
	for _, r := range []struct {
		ok   bool
		name string
	}{{lexOK, s.lexicon.Name()}, {polOK, s.polarity.Name()}, {adjOK, s.adjuster.Name()}} {
		if !r.ok {
			result.Degraded = true
			result.FailedMethods = append(result.FailedMethods, r.name)
		}
	}

	adjustment := clamp(adj.Value, -s.config.AdjustmentBound, s.config.AdjustmentBound)

	result.Lexicon = lex.Value
	result.Polarity = pol.Value
	result.Subjectivity = pol.Subjectivity
	result.Adjustment = adjustment
	result.Score = clamp(s.config.LexiconWeight*lex.Value+s.config.PolarityWeight*pol.Value+adjustment, -1, 1)
	result.Label = LabelFor(result.Score, s.config.PositiveThreshold, s.config.NegativeThreshold)
	result.Confidence = Confidence(lex.Value, pol.Value, adj.Hits)
	return result
}

// run calls one method, converting errors, panics and non-finite output to a zero score
func (s *Scorer) run(postID string, m Method, in Input) (score MethodScore, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.degrade(postID, m.Name(), fmt.Errorf("panic: %v", r))
			score, ok = MethodScore{}, false
		}
	}()

	score, err := m.Score(in)
	if err != nil {
		s.degrade(postID, m.Name(), err)
		return MethodScore{}, false
	}
	if !finite(score.Value) || !finite(score.Subjectivity) {
		s.degrade(postID, m.Name(), fmt.Errorf("non-finite score %v", score.Value))
		return MethodScore{}, false
	}
	return score, true
}

func (s *Scorer) degrade(postID, method string, err error) {
	metrics.IncMethodFailure(method)
	s.logger.WithError(err).WithFields(logging.Fields{
		"post_id": postID,
		"method":  method,
	}).Warn("Sentiment method failed, using neutral contribution")
}

// LabelFor maps a combined score to a label. Both thresholds are inclusive.
func LabelFor(score, positive, negative float64) signal.Label {
	switch {
	case score >= positive:
		return signal.LabelPositive
	case score <= negative:
		return signal.LabelNegative
	default:
		return signal.LabelNeutral
	}
}

// Confidence rates how much evidence backs a score, in [0, 1]
func Confidence(lexicon, polarity float64, phraseHits int) float64 {
	phrases := math.Min(float64(phraseHits)/5, 1)
	return clamp(math.Abs(lexicon)*0.4+math.Abs(polarity)*0.3+phrases*0.3, 0, 1)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
