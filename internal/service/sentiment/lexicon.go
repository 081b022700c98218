package sentiment

import (
	_ "embed"
	"math"
	"strings"
)

//go:embed lexicon.tsv
var lexiconData []byte

const (
	boosterIncrement = 0.293
	negationScalar   = -0.74
	exclaimIncrement = 0.292
	questionSmall    = 0.18
	questionLarge    = 0.96
	compoundAlpha    = 15.0
	lookback         = 3
)

var boosters = map[string]float64{
	"absolutely": boosterIncrement, "amazingly": boosterIncrement, "completely": boosterIncrement,
	"deeply": boosterIncrement, "especially": boosterIncrement, "extremely": boosterIncrement,
	"highly": boosterIncrement, "hugely": boosterIncrement, "incredibly": boosterIncrement,
	"really": boosterIncrement, "so": boosterIncrement, "super": boosterIncrement,
	"totally": boosterIncrement, "truly": boosterIncrement, "very": boosterIncrement,
	"most": boosterIncrement, "more": boosterIncrement, "too": boosterIncrement,
	"almost": -boosterIncrement, "barely": -boosterIncrement, "hardly": -boosterIncrement,
	"kinda": -boosterIncrement, "less": -boosterIncrement, "marginally": -boosterIncrement,
	"occasionally": -boosterIncrement, "partly": -boosterIncrement, "slightly": -boosterIncrement,
	"somewhat": -boosterIncrement, "sort": -boosterIncrement,
}

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "none": true, "nothing": true, "nowhere": true,
	"neither": true, "nor": true, "nobody": true, "without": true, "cannot": true,
	"dont": true, "doesnt": true, "didnt": true, "isnt": true, "wasnt": true, "arent": true,
	"werent": true, "wont": true, "cant": true, "couldnt": true, "shouldnt": true, "wouldnt": true,
	"havent": true, "hasnt": true, "hadnt": true, "aint": true,
}

// Lexicon scores short informal text from a valence lexicon with negation,
// booster words, contrastive "but", punctuation emphasis and emoticons.
type Lexicon struct {
	valence map[string]float64
}

// NewLexicon creates the lexicon method from the built-in valence table
func NewLexicon() (*Lexicon, error) {
	table, err := parseTable(lexiconData, 1)
	if err != nil {
		return nil, err
	}
	valence := make(map[string]float64, len(table))
	for word, v := range table {
		valence[word] = v[0]
	}
	return &Lexicon{valence: valence}, nil
}

// Name returns the method name
func (l *Lexicon) Name() string { return "lexicon" }

// Score returns the normalized compound valence of the input
func (l *Lexicon) Score(in Input) (MethodScore, error) {
	tokens := in.Tokens
	if len(tokens) == 0 {
		return MethodScore{}, nil
	}

	sentiments := make([]float64, len(tokens))
	hits := 0
	for i, tok := range tokens {
		if _, ok := boosters[tok]; ok {
			continue
		}
		v, ok := l.valence[tok]
		if !ok {
			continue
		}
		hits++

		for j := 1; j <= lookback && i-j >= 0; j++ {
			b, ok := boosters[tokens[i-j]]
			if !ok {
				continue
			}
			if v < 0 {
				b = -b
			}
			switch j {
			case 2:
				b *= 0.95
			case 3:
				b *= 0.9
			}
			v += b
		}

		for j := 1; j <= lookback && i-j >= 0; j++ {
			if isNegation(tokens[i-j]) {
				v *= negationScalar
				break
			}
		}
		sentiments[i] = v
	}
	if hits == 0 {
		return MethodScore{}, nil
	}

	for i, tok := range tokens {
		if tok != "but" {
			continue
		}
		for j := range sentiments {
			switch {
			case j < i:
				sentiments[j] *= 0.5
			case j > i:
				sentiments[j] *= 1.5
			}
		}
		break
	}

	sum := 0.0
	for _, s := range sentiments {
		sum += s
	}

	if emphasis := punctuationEmphasis(in.Cleaned); sum > 0 {
		sum += emphasis
	} else if sum < 0 {
		sum -= emphasis
	}

	compound := sum / math.Sqrt(sum*sum+compoundAlpha)
	return MethodScore{Value: clamp(compound, -1, 1), Hits: hits}, nil
}

func isNegation(tok string) bool {
	if negations[strings.ReplaceAll(tok, "'", "")] {
		return true
	}
	return strings.HasSuffix(tok, "n't")
}

func punctuationEmphasis(cleaned string) float64 {
	exclaims := strings.Count(cleaned, "!")
	if exclaims > 4 {
		exclaims = 4
	}
	amp := float64(exclaims) * exclaimIncrement

	questions := strings.Count(cleaned, "?")
	switch {
	case questions > 3:
		amp += questionLarge
	case questions > 1:
		amp += float64(questions) * questionSmall
	}
	return amp
}
