package store

import (
	"context"
	"sync"

	domainErrors "github.com/merchantskit/merchants/internal/domain/errors"
	"github.com/merchantskit/merchants/internal/domain/session"
)

// MemoryModel is an in-process storage model. It backs the zero-config mode
// when no models are registered and doubles as a lightweight backend in tests.
type MemoryModel struct {
	name string

	mu       sync.RWMutex
	sessions map[string]*session.Session
	order    []string // payment ids in insertion order
}

// NewMemoryModel creates an empty in-memory model.
func NewMemoryModel(name string) *MemoryModel {
	return &MemoryModel{
		name:     name,
		sessions: make(map[string]*session.Session),
	}
}

func (m *MemoryModel) Name() string { return m.name }

func (m *MemoryModel) Insert(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.PaymentID]; exists {
		return domainErrors.ErrDuplicateSession
	}
	m.sessions[s.PaymentID] = s.Clone()
	m.order = append(m.order, s.PaymentID)
	return nil
}

func (m *MemoryModel) Get(_ context.Context, paymentID string) (*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[paymentID]
	if !ok {
		return nil, domainErrors.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryModel) Update(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.PaymentID]; !ok {
		return domainErrors.ErrSessionNotFound
	}
	m.sessions[s.PaymentID] = s.Clone()
	return nil
}

func (m *MemoryModel) List(_ context.Context) ([]*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*session.Session, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.sessions[id].Clone())
	}
	return out, nil
}
