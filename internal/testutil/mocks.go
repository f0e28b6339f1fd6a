package testutil

import (
	"context"
	"sync"

	domainErrors "github.com/merchantskit/merchants/internal/domain/errors"
	"github.com/merchantskit/merchants/internal/domain/session"
)

// --- Session Model Mock ---

// MockModel is a mock implementation of session.Model. Unset funcs fall back
// to a map-backed store, so tests only override the path under test.
type MockModel struct {
	ModelName string

	mu       sync.Mutex
	sessions map[string]*session.Session
	order    []string

	InsertFunc func(ctx context.Context, s *session.Session) error
	GetFunc    func(ctx context.Context, paymentID string) (*session.Session, error)
	UpdateFunc func(ctx context.Context, s *session.Session) error
	ListFunc   func(ctx context.Context) ([]*session.Session, error)
}

func NewMockModel(name string) *MockModel {
	return &MockModel{
		ModelName: name,
		sessions:  make(map[string]*session.Session),
	}
}

func (m *MockModel) Name() string { return m.ModelName }

func (m *MockModel) Insert(ctx context.Context, s *session.Session) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.PaymentID]; exists {
		return domainErrors.ErrDuplicateSession
	}
	m.sessions[s.PaymentID] = s.Clone()
	m.order = append(m.order, s.PaymentID)
	return nil
}

func (m *MockModel) Get(ctx context.Context, paymentID string) (*session.Session, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, paymentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[paymentID]
	if !ok {
		return nil, domainErrors.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *MockModel) Update(ctx context.Context, s *session.Session) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.PaymentID]; !ok {
		return domainErrors.ErrSessionNotFound
	}
	m.sessions[s.PaymentID] = s.Clone()
	return nil
}

func (m *MockModel) List(ctx context.Context) ([]*session.Session, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*session.Session, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.sessions[id].Clone())
	}
	return out, nil
}

// Seed stores a session directly, bypassing any InsertFunc override.
func (m *MockModel) Seed(s *session.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.PaymentID]; !exists {
		m.order = append(m.order, s.PaymentID)
	}
	m.sessions[s.PaymentID] = s.Clone()
}
