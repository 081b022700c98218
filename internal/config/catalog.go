package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// Catalog is the versioned domain data the pipeline loads at startup:
// predefined themes, the competitor alias table, domain phrases and stopwords.
type Catalog struct {
	Version     string          `yaml:"version"`
	Brand       string          `yaml:"brand"`
	Themes      []ThemeDef      `yaml:"themes"`
	Competitors []CompetitorDef `yaml:"competitors"`
	Phrases     []PhraseDef     `yaml:"phrases"`
	Stopwords   []string        `yaml:"stopwords"`
}

// ThemeDef defines one predefined theme
type ThemeDef struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Terms       []string `yaml:"terms"`
}

// CompetitorDef maps a competitor name to its surface forms
type CompetitorDef struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// PhraseDef is one weighted domain phrase
type PhraseDef struct {
	Phrase string  `yaml:"phrase"`
	Weight float64 `yaml:"weight"`
}

// LoadCatalog reads the catalog at path, or the built-in catalog when path is empty
func LoadCatalog(path string) (*Catalog, error) {
	data := builtinCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading catalog %s: %w", path, err)
		}
		data = b
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes catalog YAML and lower-cases every matchable term
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("error parsing catalog: %w", err)
	}
	for i := range c.Themes {
		c.Themes[i].Terms = lowerAll(c.Themes[i].Terms)
	}
	for i := range c.Competitors {
		c.Competitors[i].Aliases = lowerAll(c.Competitors[i].Aliases)
	}
	for i := range c.Phrases {
		c.Phrases[i].Phrase = strings.ToLower(strings.TrimSpace(c.Phrases[i].Phrase))
	}
	c.Stopwords = lowerAll(c.Stopwords)
	return &c, nil
}

// Validate reports fatal catalog problems. An empty phrase table is allowed.
func (c *Catalog) Validate() error {
	var problems []error
	if strings.TrimSpace(c.Version) == "" {
		problems = append(problems, errors.New("catalog version is required"))
	}
	if len(c.Themes) == 0 {
		problems = append(problems, errors.New("theme catalog is empty"))
	}
	seen := make(map[string]bool)
	for _, t := range c.Themes {
		if t.ID == "" {
			problems = append(problems, errors.New("theme without id"))
			continue
		}
		if seen[t.ID] {
			problems = append(problems, fmt.Errorf("duplicate theme id %q", t.ID))
		}
		seen[t.ID] = true
		if len(t.Terms) == 0 {
			problems = append(problems, fmt.Errorf("theme %q has no terms", t.ID))
		}
	}
	if len(c.Competitors) == 0 {
		problems = append(problems, errors.New("competitor alias table is empty"))
	}
	for _, comp := range c.Competitors {
		if comp.Name == "" || len(comp.Aliases) == 0 {
			problems = append(problems, fmt.Errorf("competitor %q needs a name and aliases", comp.Name))
		}
	}
	for _, p := range c.Phrases {
		if p.Phrase == "" || math.IsNaN(p.Weight) || math.IsInf(p.Weight, 0) {
			problems = append(problems, fmt.Errorf("invalid domain phrase %q", p.Phrase))
		}
	}
	return errors.Join(problems...)
}

// ThemeByID returns the theme definition with the given id
func (c *Catalog) ThemeByID(id string) (ThemeDef, bool) {
	for _, t := range c.Themes {
		if t.ID == id {
			return t, true
		}
	}
	return ThemeDef{}, false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
