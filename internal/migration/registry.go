package migration

import (
	"fmt"
	"strings"
)

// Registry is the ordered catalog of definitions known to the process.
// Registration order is execution order.
type Registry struct {
	defs  []Definition
	index map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register appends def to the registry.
func (r *Registry) Register(def Definition) error {
	if def == nil {
		return fmt.Errorf("%w: nil definition", ErrInvalidDefinition)
	}

	name := def.Meta().Name
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidDefinition)
	}

	if _, exists := r.index[name]; exists {
		return fmt.Errorf("registering %s: %w", name, ErrDuplicateName)
	}

	r.index[name] = len(r.defs)
	r.defs = append(r.defs, def)

	return nil
}

// MustRegister registers every definition and panics on the first error.
// Intended for boot code where a bad registry is fatal.
func (r *Registry) MustRegister(defs ...Definition) {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
}

// All returns the definitions in registration order.
func (r *Registry) All() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)

	return out
}

// Get looks up a definition by name.
func (r *Registry) Get(name string) (Definition, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}

	return r.defs[i], true
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.defs))
	for i, def := range r.defs {
		names[i] = def.Meta().Name
	}

	return names
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	return len(r.defs)
}
