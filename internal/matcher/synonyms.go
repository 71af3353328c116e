package matcher

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Synonyms maps a normalized term to its canonical form. Implementations must
// be safe for concurrent reads.
type Synonyms interface {
	Canonical(term string) string
}

// SynonymTable is an alias → canonical lookup.
type SynonymTable map[string]string

// Canonical returns the canonical form of term, or term itself.
func (t SynonymTable) Canonical(term string) string {
	if c, ok := t[term]; ok {
		return c
	}
	return term
}

// defaultGroups lists canonical terms and their aliases.
var defaultGroups = map[string][]string{
	"javascript":       {"js", "ecmascript", "es6"},
	"typescript":       {"ts"},
	"go":               {"golang"},
	"kubernetes":       {"k8s"},
	"postgresql":       {"postgres", "psql"},
	"react":            {"reactjs", "react.js"},
	"node":             {"nodejs", "node.js"},
	"vue":              {"vuejs", "vue.js"},
	"python":           {"py"},
	"c#":               {"csharp", "c sharp"},
	"c++":              {"cpp"},
	"aws":              {"amazon web services"},
	"gcp":              {"google cloud", "google cloud platform"},
	"machine learning": {"ml"},
	"ci cd":            {"cicd", "continuous integration"},
}

// DefaultSynonyms returns the built-in table.
func DefaultSynonyms() SynonymTable {
	return buildTable(defaultGroups)
}

// LoadSynonyms reads a YAML file of `canonical: [alias, ...]` groups and
// layers it over the built-in table.
func LoadSynonyms(path string) (SynonymTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read synonyms file: %w", err)
	}
	var groups map[string][]string
	if err := yaml.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("parse synonyms file: %w", err)
	}
	table := DefaultSynonyms()
	for canonical, aliases := range groups {
		c := normalize(canonical)
		table[c] = c
		for _, a := range aliases {
			table[normalize(a)] = c
		}
	}
	return table, nil
}

func buildTable(groups map[string][]string) SynonymTable {
	table := make(SynonymTable)
	for canonical, aliases := range groups {
		c := normalize(canonical)
		table[c] = c
		for _, a := range aliases {
			table[normalize(a)] = c
		}
	}
	return table
}
