package connector

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the connector types known to the process. It is built
// explicitly at startup and repopulated only through Reload.
type Registry struct {
	mu       sync.RWMutex
	builtins []*Definition
	defs     map[string]*Definition
}

// NewRegistry creates a registry holding the given built-in definitions.
func NewRegistry(builtins ...*Definition) (*Registry, error) {
	defs, err := index(builtins)
	if err != nil {
		return nil, err
	}
	return &Registry{builtins: builtins, defs: defs}, nil
}

// Get returns the definition for a connector type.
func (r *Registry) Get(typ string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[typ]
	return d, ok
}

// List returns all definitions sorted by type.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Reload rebuilds the registry from the built-ins plus every definition file
// in dir. On any error the previous contents stay in place.
func (r *Registry) Reload(dir string) (int, error) {
	loaded, err := LoadDir(dir)
	if err != nil {
		return 0, err
	}
	all := append(append([]*Definition(nil), r.builtins...), loaded...)
	defs, err := index(all)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	r.defs = defs
	r.mu.Unlock()
	return len(defs), nil
}

func index(defs []*Definition) (map[string]*Definition, error) {
	out := make(map[string]*Definition, len(defs))
	for _, d := range defs {
		if err := d.Check(); err != nil {
			return nil, err
		}
		if _, dup := out[d.Type]; dup {
			return nil, fmt.Errorf("duplicate connector type %q", d.Type)
		}
		out[d.Type] = d
	}
	return out, nil
}
