package plugins

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownModule is returned when a plugin config names a module that was
// never registered.
var ErrUnknownModule = errors.New("unknown plugin module")

// Constructor adds a module's routes to a freshly created plugin.
type Constructor func(p *Plugin) error

// Registry maps module identifiers to constructors. Modules register
// themselves at startup with explicit calls.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry creates an empty module registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds a module constructor.
func (r *Registry) Register(module string, c Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ctors[module]; ok {
		return fmt.Errorf("plugin module %q already registered", module)
	}
	r.ctors[module] = c
	return nil
}

// Lookup returns the constructor for module.
func (r *Registry) Lookup(module string) (Constructor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.ctors[module]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModule, module)
	}
	return c, nil
}

// Modules lists registered module identifiers in order.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ctors))
	for m := range r.ctors {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
