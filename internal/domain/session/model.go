package session

import "context"

// Model is one registered storage backend. Each session lives in exactly one
// model; the router never copies records between them. Implementations must
// support lookup by payment id and scan in creation order, and must return
// errors.ErrSessionNotFound for missing ids.
type Model interface {
	// Name identifies the model within the registry (e.g. table name).
	Name() string
	// Insert stores a new session.
	Insert(ctx context.Context, s *Session) error
	// Get returns the session with the given provider-issued payment id.
	Get(ctx context.Context, paymentID string) (*Session, error)
	// Update persists a mutated session, matched by payment id.
	Update(ctx context.Context, s *Session) error
	// List returns all sessions ordered by creation time ascending.
	List(ctx context.Context) ([]*Session, error)
}
