package breaker

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Registry creates and looks up breakers by dependency name. Each name maps
// to exactly one long-lived breaker; GetOrCreate is the only construction
// path.
type Registry struct {
	defaults Config
	logger   zerolog.Logger

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry creates a registry. Breakers created without an explicit
// config inherit defaults.
func NewRegistry(defaults Config, logger zerolog.Logger) *Registry {
	return &Registry{
		defaults: defaults,
		logger:   logger,
		breakers: make(map[string]*Breaker),
	}
}

// GetOrCreate returns the breaker for name, creating it with the registry
// defaults on first request. The config of an existing breaker is never
// changed.
func (r *Registry) GetOrCreate(name string) *Breaker {
	return r.GetOrCreateWithConfig(name, r.defaults)
}

// GetOrCreateWithConfig returns the breaker for name, creating it with cfg
// if it does not exist yet.
func (r *Registry) GetOrCreateWithConfig(name string, cfg Config) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}

	b := newBreaker(name, cfg, r.logger)
	r.breakers[name] = b
	r.logger.Debug().Str("dependency", name).Msg("Created circuit breaker")
	return b
}

// Get returns the breaker for name if one exists.
func (r *Registry) Get(name string) (*Breaker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[name]
	return b, ok
}

// Names returns the registered dependency names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResetAll resets every registered breaker to closed.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	for _, b := range breakers {
		b.Reset()
	}
}

// Stats returns per-dependency snapshots keyed by name.
func (r *Registry) Stats() map[string]Stats {
	r.mu.Lock()
	breakers := make(map[string]*Breaker, len(r.breakers))
	for name, b := range r.breakers {
		breakers[name] = b
	}
	r.mu.Unlock()

	stats := make(map[string]Stats, len(breakers))
	for name, b := range breakers {
		stats[name] = b.Stats()
	}
	return stats
}
