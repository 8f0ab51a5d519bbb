// File: internal/taint/registry.go
package taint

// Registry maps taint categories to ordered pattern lists. It is a mandatory
// constructor argument: a category absent from the map yields no matches for
// that category, and the engine never substitutes built-in defaults. Silent
// omission is preferred to a guessed pattern that could produce a misleading
// finding.
type Registry struct {
	patterns map[Category][]string
}

// NewRegistry builds a registry from caller-supplied pattern lists. A nil or
// empty map is valid and discovers nothing for any pattern-driven category.
func NewRegistry(patterns map[Category][]string) *Registry {
	cloned := make(map[Category][]string, len(patterns))
	for cat, list := range patterns {
		cloned[cat] = append([]string(nil), list...)
	}
	return &Registry{patterns: cloned}
}

// Patterns returns the pattern list for a category, nil when absent.
func (r *Registry) Patterns(cat Category) []string {
	return r.patterns[cat]
}
