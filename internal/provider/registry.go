package provider

import (
	"fmt"
	"strings"
)

// Registry holds registered providers and resolves configured channel order
// into a concrete provider sequence. It is populated once at startup and
// read-only afterwards, so lookups need no locking.
type Registry struct {
	order  []string
	byName map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]Provider{}}
}

// Register adds a provider under its channel name.
func (r *Registry) Register(p Provider) error {
	name := strings.ToLower(strings.TrimSpace(p.Name()))
	if name == "" {
		return fmt.Errorf("provider has empty name")
	}
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("provider %q registered twice", name)
	}
	r.byName[name] = p
	r.order = append(r.order, name)
	return nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Len reports the number of registered providers.
func (r *Registry) Len() int { return len(r.byName) }

// All returns providers in registration order.
func (r *Registry) All() []Provider {
	out := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Ordered resolves a configured channel-name list into providers, preserving
// the given precedence. Names are case-insensitive; duplicates and unknown
// names are rejected so a typo in config fails loudly instead of silently
// skipping a channel.
func (r *Registry) Ordered(names []string) ([]Provider, error) {
	out := make([]Provider, 0, len(names))
	seen := map[string]bool{}
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if seen[name] {
			return nil, fmt.Errorf("channel %q listed twice in provider order", name)
		}
		seen[name] = true
		p, ok := r.byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown channel %q in provider order", name)
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("provider order resolves to no channels")
	}
	return out, nil
}
