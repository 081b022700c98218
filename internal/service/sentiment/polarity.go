package sentiment

import (
	_ "embed"
)

//go:embed polarity.tsv
var polarityData []byte

var intensifiers = map[string]float64{
	"very": 1.3, "really": 1.3, "so": 1.3, "extremely": 1.5, "super": 1.4, "incredibly": 1.4,
	"too": 1.2, "highly": 1.3, "quite": 1.1, "pretty": 1.1, "fairly": 0.9,
	"somewhat": 0.8, "slightly": 0.5, "barely": 0.5, "kinda": 0.8,
}

const negationFactor = -0.5

type assessment struct {
	polarity     float64
	subjectivity float64
}

// Polarity averages adjective polarity and subjectivity with intensifier
// multiplication and negation flipping. It is independent of the lexicon method.
type Polarity struct {
	words map[string]assessment
}

// NewPolarity creates the polarity method from the built-in adjective table
func NewPolarity() (*Polarity, error) {
	table, err := parseTable(polarityData, 2)
	if err != nil {
		return nil, err
	}
	words := make(map[string]assessment, len(table))
	for word, v := range table {
		words[word] = assessment{polarity: v[0], subjectivity: v[1]}
	}
	return &Polarity{words: words}, nil
}

// Name returns the method name
func (p *Polarity) Name() string { return "polarity" }

// Score returns the mean polarity of assessed words and their mean subjectivity
func (p *Polarity) Score(in Input) (MethodScore, error) {
	var found []assessment
	for i, tok := range in.Tokens {
		a, ok := p.words[tok]
		if !ok {
			continue
		}
		prev := i - 1
		if prev >= 0 {
			if m, ok := intensifiers[in.Tokens[prev]]; ok {
				a.polarity = clamp(a.polarity*m, -1, 1)
				a.subjectivity = clamp(a.subjectivity*m, 0, 1)
				prev--
			}
		}
		if prev >= 0 && isNegation(in.Tokens[prev]) {
			a.polarity *= negationFactor
		}
		found = append(found, a)
	}
	if len(found) == 0 {
		return MethodScore{}, nil
	}

	var pol, subj float64
	for _, a := range found {
		pol += a.polarity
		subj += a.subjectivity
	}
	n := float64(len(found))
	return MethodScore{
		Value:        clamp(pol/n, -1, 1),
		Subjectivity: clamp(subj/n, 0, 1),
		Hits:         len(found),
	}, nil
}
