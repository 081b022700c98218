package sentiment

import (
	"strings"

	"brandpulse/internal/config"
	"brandpulse/internal/service/normalize"
)

type phrase struct {
	text   string
	tokens []string
	weight float64
}

// DomainAdjuster offsets sentiment for domain phrases such as pricing
// complaints or support praise. The offset is clamped to the bound.
type DomainAdjuster struct {
	phrases []phrase
	bound   float64
}

// NewDomainAdjuster creates an adjuster from the catalog phrase table
func NewDomainAdjuster(defs []config.PhraseDef, bound float64) *DomainAdjuster {
	phrases := make([]phrase, 0, len(defs))
	for _, d := range defs {
		tokens := normalize.Tokenize(strings.ToLower(d.Phrase))
		if len(tokens) == 0 {
			continue
		}
		phrases = append(phrases, phrase{text: d.Phrase, tokens: tokens, weight: d.Weight})
	}
	return &DomainAdjuster{phrases: phrases, bound: bound}
}

// Name returns the method name
func (a *DomainAdjuster) Name() string { return "domain" }

// Score sums the weights of distinct matched phrases
func (a *DomainAdjuster) Score(in Input) (MethodScore, error) {
	if len(a.phrases) == 0 || len(in.Tokens) == 0 {
		return MethodScore{}, nil
	}
	sum := 0.0
	hits := 0
	for _, p := range a.phrases {
		if normalize.ContainsSequence(in.Tokens, p.tokens) {
			sum += p.weight
			hits++
		}
	}
	return MethodScore{Value: clamp(sum, -a.bound, a.bound), Hits: hits}, nil
}
