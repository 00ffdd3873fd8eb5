package router

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadTableFile reads a tier to model table from a YAML file:
//
//	models:
//	  balanced: gpt-4o
//	  fast: gpt-4o-mini
//
// Unknown tiers are rejected so typos do not silently route to defaults.
func LoadTableFile(path string) (map[Tier]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read models file: %w", err)
	}
	return parseTable(data)
}

func parseTable(data []byte) (map[Tier]string, error) {
	var doc struct {
		Models map[string]string `yaml:"models"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse models file: %w", err)
	}

	known := DefaultTable()
	table := make(map[Tier]string, len(doc.Models))
	for name, model := range doc.Models {
		tier := Tier(name)
		if _, ok := known[tier]; !ok {
			return nil, fmt.Errorf("unknown model tier %q", name)
		}
		table[tier] = model
	}
	return table, nil
}
