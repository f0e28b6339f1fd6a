package store

import (
	"sync"

	"github.com/merchantskit/merchants/internal/domain/session"
)

// Registry holds the ordered set of storage models the router may write to
// and read from. Registration order is preserved and defines the default
// search order. Registering the same model twice is a no-op. Registration
// happens once at startup; the registry is read-mostly afterwards.
type Registry struct {
	mu     sync.RWMutex
	models []session.Model
	seen   map[session.Model]struct{}
}

// NewRegistry creates an empty model registry.
func NewRegistry(models ...session.Model) *Registry {
	r := &Registry{seen: make(map[session.Model]struct{})}
	for _, m := range models {
		r.Register(m)
	}
	return r
}

// Register adds a model definition, de-duplicated by identity.
func (r *Registry) Register(m session.Model) {
	if m == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.seen[m]; dup {
		return
	}
	r.seen[m] = struct{}{}
	r.models = append(r.models, m)
}

// Models returns the registered models in registration order.
func (r *Registry) Models() []session.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]session.Model, len(r.models))
	copy(out, r.models)
	return out
}

// Lookup returns the registered model with the given name.
func (r *Registry) Lookup(name string) (session.Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.models {
		if m.Name() == name {
			return m, true
		}
	}
	return nil, false
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}
