package flavor

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ErrUnknownFlavor is returned by Get for names that were never registered.
var ErrUnknownFlavor = errors.New("unknown flavor")

// Registry maps flavor names to implementations.
type Registry struct {
	mu      sync.RWMutex
	flavors map[string]Flavor
}

func NewRegistry() *Registry {
	return &Registry{flavors: map[string]Flavor{}}
}

// Register adds f under its normalized name. It panics on an empty name or a
// duplicate registration, both of which are programming errors.
func (r *Registry) Register(f Flavor) {
	if f == nil {
		panic("flavor: nil flavor")
	}
	name := normalize(f.Name())
	if name == "" {
		panic("flavor: empty flavor name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.flavors[name]; exists {
		panic(fmt.Sprintf("flavor: %q already registered", name))
	}
	r.flavors[name] = f
}

func (r *Registry) Get(name string) (Flavor, error) {
	r.mu.RLock()
	f, ok := r.flavors[normalize(name)]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownFlavor, name, strings.Join(r.List(), ", "))
	}
	return f, nil
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.flavors))
	for name := range r.flavors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var defaultRegistry = NewRegistry()

func init() {
	defaultRegistry.Register(G4AD{})
}

// Register adds f to the default registry.
func Register(f Flavor) { defaultRegistry.Register(f) }

// Get looks name up in the default registry.
func Get(name string) (Flavor, error) { return defaultRegistry.Get(name) }

// List returns the names in the default registry.
func List() []string { return defaultRegistry.List() }
