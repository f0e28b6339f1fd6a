package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	domainErrors "github.com/merchantskit/merchants/internal/domain/errors"
	"github.com/merchantskit/merchants/internal/domain/session"
)

// FallbackModelName is the name of the implicit in-memory model used when no
// models are registered.
const FallbackModelName = "memory"

// Router performs model-scoped or model-agnostic create/read/update/scan of
// sessions over a model registry. The union of registered models behaves as
// one logical namespace: payment ids are unique across all of them, and
// callers never need to know which model a payment id lives in.
type Router struct {
	registry *Registry
	locker   Locker

	fallbackOnce sync.Once
	fallback     *MemoryModel
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithLocker replaces the default process-local per-key locker.
func WithLocker(l Locker) RouterOption {
	return func(r *Router) { r.locker = l }
}

// NewRouter creates a router over the given model registry.
func NewRouter(registry *Registry, opts ...RouterOption) *Router {
	r := &Router{
		registry: registry,
		locker:   NewMutexLocker(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// targets returns the models to operate on, in registration order, falling
// back to the implicit in-memory model when nothing is registered.
func (r *Router) targets() []session.Model {
	models := r.registry.Models()
	if len(models) > 0 {
		return models
	}
	r.fallbackOnce.Do(func() {
		r.fallback = NewMemoryModel(FallbackModelName)
	})
	return []session.Model{r.fallback}
}

// ResolveModel maps a model name to a single target. An empty name selects
// the first registered model (or the fallback); an unknown name is a
// configuration error. The checkout flow uses it to reject a misconfigured
// model before any provider is contacted.
func (r *Router) ResolveModel(name string) (session.Model, error) {
	targets := r.targets()
	if name == "" {
		return targets[0], nil
	}
	for _, m := range targets {
		if m.Name() == name {
			return m, nil
		}
	}
	return nil, fmt.Errorf("model %q: %w", name, domainErrors.ErrModelNotRegistered)
}

// Create inserts the session into the named model, or the default model when
// name is empty. The payment id must be unique across every registered model.
func (r *Router) Create(ctx context.Context, s *session.Session, modelName string) error {
	target, err := r.ResolveModel(modelName)
	if err != nil {
		return err
	}

	for _, m := range r.targets() {
		_, err := m.Get(ctx, s.PaymentID)
		if err == nil {
			return fmt.Errorf("payment id %s already exists in model %s: %w",
				s.PaymentID, m.Name(), domainErrors.ErrDuplicateSession)
		}
		if !errors.Is(err, domainErrors.ErrSessionNotFound) {
			return err
		}
	}

	return target.Insert(ctx, s)
}

// Get looks up a payment id in the named model, or searches every model in
// registration order when name is empty.
func (r *Router) Get(ctx context.Context, paymentID, modelName string) (*session.Session, error) {
	if modelName != "" {
		m, err := r.ResolveModel(modelName)
		if err != nil {
			return nil, err
		}
		return m.Get(ctx, paymentID)
	}

	for _, m := range r.targets() {
		s, err := m.Get(ctx, paymentID)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, domainErrors.ErrSessionNotFound) {
			return nil, err
		}
	}
	return nil, domainErrors.ErrSessionNotFound
}

// Update applies mutate to the session and persists the result through the
// owning model, but only when mutate reports a change. Updates to the same
// payment id are serialized through the locker; different payment ids never
// block each other.
func (r *Router) Update(ctx context.Context, paymentID, modelName string, mutate func(*session.Session) (bool, error)) (*session.Session, error) {
	var result *session.Session

	err := r.locker.WithLock(ctx, paymentID, func() error {
		owner, s, err := r.find(ctx, paymentID, modelName)
		if err != nil {
			return err
		}

		changed, err := mutate(s)
		if err != nil {
			return err
		}
		if changed {
			if err := owner.Update(ctx, s); err != nil {
				return err
			}
		}
		result = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// All returns the sessions of the named model, or the union of every model
// when name is empty: created_at ascending within each model, registration
// order across models.
func (r *Router) All(ctx context.Context, modelName string) ([]*session.Session, error) {
	if modelName != "" {
		m, err := r.ResolveModel(modelName)
		if err != nil {
			return nil, err
		}
		return m.List(ctx)
	}

	var out []*session.Session
	for _, m := range r.targets() {
		sessions, err := m.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list model %s: %w", m.Name(), err)
		}
		out = append(out, sessions...)
	}
	return out, nil
}

// find locates the owning model and current record for a payment id.
func (r *Router) find(ctx context.Context, paymentID, modelName string) (session.Model, *session.Session, error) {
	if modelName != "" {
		m, err := r.ResolveModel(modelName)
		if err != nil {
			return nil, nil, err
		}
		s, err := m.Get(ctx, paymentID)
		if err != nil {
			return nil, nil, err
		}
		return m, s, nil
	}

	for _, m := range r.targets() {
		s, err := m.Get(ctx, paymentID)
		if err == nil {
			return m, s, nil
		}
		if !errors.Is(err, domainErrors.ErrSessionNotFound) {
			return nil, nil, err
		}
	}
	return nil, nil, domainErrors.ErrSessionNotFound
}
