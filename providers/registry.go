package providers

// Registry holds the configured adapters keyed by provider name. The
// set is closed at construction; handlers look adapters up by the tag
// baked into each route.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds a registry from the given adapters
func NewRegistry(list ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(list))}
	for _, p := range list {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the adapter registered under name, or nil
func (r *Registry) Get(name string) Provider {
	return r.providers[name]
}

// Names returns the registered provider tags
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
