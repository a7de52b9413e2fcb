package registry

import "strings"

// Wildcard terminates a prefix pattern, as in "agent-*".
const Wildcard = "*"

// Patterns is a string-keyed registry whose keys may end in Wildcard.
// Lookup prefers an exact key, then the longest matching prefix pattern.
type Patterns[V any] struct {
	*Registry[string, V]
}

// NewPatterns creates an empty pattern registry.
func NewPatterns[V any]() *Patterns[V] {
	return &Patterns[V]{Registry: New[string, V]()}
}

// IsPattern reports whether key is a prefix pattern.
func IsPattern(key string) bool {
	return strings.HasSuffix(key, Wildcard)
}

// Lookup resolves name against exact keys first, then patterns. It returns
// the key that matched.
func (p *Patterns[V]) Lookup(name string) (V, string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if v, ok := p.entries[name]; ok {
		return v, name, true
	}

	var (
		best    string
		bestVal V
		found   bool
	)
	for key, v := range p.entries {
		if !IsPattern(key) {
			continue
		}
		prefix := strings.TrimSuffix(key, Wildcard)
		if strings.HasPrefix(name, prefix) && (!found || len(key) > len(best)) {
			best, bestVal, found = key, v, true
		}
	}
	return bestVal, best, found
}
