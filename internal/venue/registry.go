package venue

import (
	"perp-gateway/internal/config"
	"perp-gateway/pkg/types"
)

// Constructor builds an adapter from its venue config and shared deps.
type Constructor func(cfg config.VenueConfig, deps Deps) (Adapter, error)

// Registry maps venues to adapter constructors. The binary registers every
// adapter it links at startup; enabling a venue in config that has no
// registered constructor is a configuration error.
type Registry struct {
	constructors map[types.Venue]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[types.Venue]Constructor)}
}

// Register binds a constructor to a venue, replacing any previous binding.
func (r *Registry) Register(v types.Venue, c Constructor) {
	r.constructors[v] = c
}

// Build constructs the adapter for v.
func (r *Registry) Build(v types.Venue, cfg config.VenueConfig, deps Deps) (Adapter, error) {
	c, ok := r.constructors[v]
	if !ok {
		return nil, types.NewConfigurationError("no adapter registered for venue " + string(v))
	}
	return c(cfg, deps)
}

// Registered reports whether v has a constructor.
func (r *Registry) Registered(v types.Venue) bool {
	_, ok := r.constructors[v]
	return ok
}
