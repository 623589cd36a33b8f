package nowplaying

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds the known sources keyed by player name, so the daemon
// can switch the monitored player at runtime.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates a registry with the given sources.
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{sources: make(map[string]Source, len(sources))}
	for _, s := range sources {
		r.sources[strings.ToLower(s.Name())] = s
	}
	return r
}

// Register adds a source, replacing any existing source for the same
// player name.
func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[strings.ToLower(s.Name())] = s
}

// Lookup returns the source for the given player name.
func (r *Registry) Lookup(name string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sources[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown player %q (known: %s)", name, strings.Join(r.names(), ", "))
	}
	return s, nil
}

// Names returns the registered player names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names()
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.sources))
	for _, s := range r.sources {
		names = append(names, s.Name())
	}
	sort.Strings(names)
	return names
}
