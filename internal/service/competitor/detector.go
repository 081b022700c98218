package competitor

import (
	"sort"
	"strings"

	"brandpulse/internal/config"
	"brandpulse/internal/domain/signal"
	"brandpulse/internal/service/normalize"
)

// DefaultContextWindow is the number of tokens kept on each side of a mention
const DefaultContextWindow = 8

// Match is one competitor found in a post
type Match struct {
	Competitor string
	Alias      string
	Index      int
	Context    string
}

type alias struct {
	text   string
	tokens []string
}

type competitor struct {
	name    string
	aliases []alias
}

// Detector finds competitor names in normalized tokens using the alias table
type Detector struct {
	competitors []competitor
	window      int
}

// NewDetector creates a detector from the catalog alias table
func NewDetector(catalog *config.Catalog, window int) *Detector {
	comps := make([]competitor, 0, len(catalog.Competitors))
	for _, def := range catalog.Competitors {
		c := competitor{name: def.Name}
		for _, a := range def.Aliases {
			if tokens := normalize.Tokenize(a); len(tokens) > 0 {
				c.aliases = append(c.aliases, alias{text: strings.Join(tokens, " "), tokens: tokens})
			}
		}
		// longer aliases win when several start at the same token
		sort.SliceStable(c.aliases, func(i, j int) bool {
			return len(c.aliases[i].tokens) > len(c.aliases[j].tokens)
		})
		comps = append(comps, c)
	}
	sort.Slice(comps, func(i, j int) bool { return comps[i].name < comps[j].name })
	return &Detector{competitors: comps, window: window}
}

// Detect returns at most one match per competitor, ordered by competitor name
func (d *Detector) Detect(tokens []string) []Match {
	if len(tokens) == 0 {
		return nil
	}
	var out []Match
	for _, c := range d.competitors {
		best := -1
		var bestAlias alias
		for _, a := range c.aliases {
			i := normalize.IndexSequence(tokens, a.tokens, 0)
			if i < 0 {
				continue
			}
			if best < 0 || i < best || (i == best && len(a.tokens) > len(bestAlias.tokens)) {
				best, bestAlias = i, a
			}
		}
		if best < 0 {
			continue
		}
		out = append(out, Match{
			Competitor: c.name,
			Alias:      bestAlias.text,
			Index:      best,
			Context:    d.context(tokens, best, len(bestAlias.tokens)),
		})
	}
	return out
}

func (d *Detector) context(tokens []string, start, length int) string {
	from := start - d.window
	if from < 0 {
		from = 0
	}
	to := start + length + d.window
	if to > len(tokens) {
		to = len(tokens)
	}
	return strings.Join(tokens[from:to], " ")
}

// Mentions turns matches into rows carrying the post's combined sentiment score
func Mentions(postID string, matches []Match, score float64) []signal.CompetitorMention {
	out := make([]signal.CompetitorMention, 0, len(matches))
	for _, m := range matches {
		out = append(out, signal.CompetitorMention{
			PostID:     postID,
			Competitor: m.Competitor,
			Alias:      m.Alias,
			Context:    m.Context,
			Score:      score,
		})
	}
	return out
}
