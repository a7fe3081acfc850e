package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrRegistrySealed is returned by Register after Seal.
var ErrRegistrySealed = errors.New("registry is sealed")

// Registry holds importer definitions by name. It is populated once at
// startup and read concurrently afterwards; Seal marks the end of the
// configuration phase.
type Registry struct {
	mu     sync.RWMutex
	defs   map[string]*ImporterDefinition
	sealed bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*ImporterDefinition)}
}

// Register validates def and adds it under def.Name.
func (r *Registry) Register(def *ImporterDefinition) error {
	if def == nil {
		return &ConfigurationError{Reason: "nil importer definition"}
	}
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("register %q: %w", def.Name, ErrRegistrySealed)
	}
	if _, exists := r.defs[def.Name]; exists {
		return &ConfigurationError{Importer: def.Name, Reason: "importer already registered"}
	}

	r.defs[def.Name] = def
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(def *ImporterDefinition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Lookup returns the definition registered under name. A missing importer
// is reported as a ConfigurationError wrapping ErrImporterNotFound.
func (r *Registry) Lookup(name string) (*ImporterDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[name]
	if !ok {
		return nil, &ConfigurationError{Importer: name, Err: ErrImporterNotFound}
	}
	return def, nil
}

// All returns all registered definitions sorted by name.
func (r *Registry) All() []*ImporterDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*ImporterDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result
}

// Names returns the registered importer names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered importers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// Seal stops further registration.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}
