package providers

import (
	"fmt"
	"time"

	domainErrors "github.com/merchantskit/merchants/internal/domain/errors"
	"github.com/sony/gobreaker/v2"
)

// Registry holds the available payment providers in registration order. Each
// provider gets its own circuit breaker so one failing provider cannot drag
// the others down.
type Registry struct {
	order     []string
	providers map[string]Provider
	breakers  map[string]*gobreaker.CircuitBreaker[*Result]
}

// NewRegistry creates a provider registry. With no providers given, a single
// dummy provider is registered so the zero-config mode has a working default.
func NewRegistry(providersList ...Provider) *Registry {
	r := &Registry{
		providers: make(map[string]Provider),
		breakers:  make(map[string]*gobreaker.CircuitBreaker[*Result]),
	}

	if len(providersList) == 0 {
		r.Register(NewDummyProvider())
	} else {
		for _, p := range providersList {
			r.Register(p)
		}
	}

	return r
}

// NewEmptyRegistry creates a registry with no providers at all. Checkout
// against it fails with ErrUnknownProvider rather than creating orphaned
// sessions.
func NewEmptyRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		breakers:  make(map[string]*gobreaker.CircuitBreaker[*Result]),
	}
}

// Register adds a provider. Re-registering a key replaces the provider but
// keeps its position in the order.
func (r *Registry) Register(p Provider) {
	key := p.Key()
	if _, exists := r.providers[key]; !exists {
		r.order = append(r.order, key)
	}
	r.providers[key] = p
	r.breakers[key] = gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:        key,
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
	})
}

// Resolve returns the provider for key together with its circuit breaker.
// An empty key selects the first registered provider; an unknown or missing
// default is a caller input error.
func (r *Registry) Resolve(key string) (Provider, *gobreaker.CircuitBreaker[*Result], error) {
	if key == "" {
		if len(r.order) == 0 {
			return nil, nil, fmt.Errorf("no providers registered: %w", domainErrors.ErrUnknownProvider)
		}
		key = r.order[0]
	}
	p, ok := r.providers[key]
	if !ok {
		return nil, nil, fmt.Errorf("provider %q: %w", key, domainErrors.ErrUnknownProvider)
	}
	return p, r.breakers[key], nil
}

// Keys returns the registered provider keys in registration order.
func (r *Registry) Keys() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
