package theme

import (
	"sort"

	"brandpulse/internal/config"
	"brandpulse/internal/domain/signal"
	"brandpulse/internal/service/normalize"
)

type catalogTheme struct {
	def   config.ThemeDef
	terms [][]string
}

// Matcher attaches predefined catalog themes to posts
type Matcher struct {
	themes    []catalogTheme
	minWeight float64
	version   string
}

// NewMatcher creates a matcher over the catalog themes
func NewMatcher(catalog *config.Catalog, minWeight float64) *Matcher {
	themes := make([]catalogTheme, 0, len(catalog.Themes))
	for _, def := range catalog.Themes {
		ct := catalogTheme{def: def}
		for _, term := range def.Terms {
			if tokens := normalize.Tokenize(term); len(tokens) > 0 {
				ct.terms = append(ct.terms, tokens)
			}
		}
		themes = append(themes, ct)
	}
	sort.Slice(themes, func(i, j int) bool { return themes[i].def.ID < themes[j].def.ID })
	return &Matcher{themes: themes, minWeight: minWeight, version: catalog.Version}
}

// Themes returns the predefined themes as domain rows
func (m *Matcher) Themes() []signal.Theme {
	out := make([]signal.Theme, 0, len(m.themes))
	for _, t := range m.themes {
		out = append(out, signal.Theme{
			ID:          t.def.ID,
			Name:        t.def.Name,
			Description: t.def.Description,
			Kind:        signal.ThemePredefined,
			Terms:       t.def.Terms,
			Version:     m.version,
		})
	}
	return out
}

// Match returns a PostTheme for every theme whose weight, the share of its
// distinct terms present in the tokens, reaches the minimum weight.
func (m *Matcher) Match(postID string, tokens []string) []signal.PostTheme {
	if len(tokens) == 0 {
		return nil
	}
	var out []signal.PostTheme
	for _, t := range m.themes {
		if len(t.terms) == 0 {
			continue
		}
		matched := 0
		for _, term := range t.terms {
			if normalize.ContainsSequence(tokens, term) {
				matched++
			}
		}
		weight := float64(matched) / float64(len(t.terms))
		if matched == 0 || weight < m.minWeight {
			continue
		}
		out = append(out, signal.PostTheme{
			PostID:  postID,
			ThemeID: t.def.ID,
			Weight:  weight,
			Kind:    signal.ThemePredefined,
		})
	}
	return out
}
