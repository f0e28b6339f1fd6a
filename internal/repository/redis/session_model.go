package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domainErrors "github.com/merchantskit/merchants/internal/domain/errors"
	"github.com/merchantskit/merchants/internal/domain/session"
	"github.com/redis/go-redis/v9"
)

// SessionModel is a Redis-backed storage model. Sessions live as JSON values
// keyed by payment id; a sorted set scored by creation time keeps List in
// insertion order.
type SessionModel struct {
	client *redis.Client
	name   string
}

// NewSessionModel creates a Redis session model registered under name.
func NewSessionModel(client *redis.Client, name string) *SessionModel {
	return &SessionModel{client: client, name: name}
}

func (m *SessionModel) Name() string { return m.name }

func (m *SessionModel) key(paymentID string) string {
	return fmt.Sprintf("merchants:%s:session:%s", m.name, paymentID)
}

func (m *SessionModel) indexKey() string {
	return fmt.Sprintf("merchants:%s:sessions", m.name)
}

func (m *SessionModel) Insert(ctx context.Context, s *session.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ok, err := m.client.SetNX(ctx, m.key(s.PaymentID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if !ok {
		return domainErrors.ErrDuplicateSession
	}

	if err := m.client.ZAdd(ctx, m.indexKey(), redis.Z{
		Score:  float64(s.CreatedAt.UnixNano()),
		Member: s.PaymentID,
	}).Err(); err != nil {
		return fmt.Errorf("index session: %w", err)
	}
	return nil
}

func (m *SessionModel) Get(ctx context.Context, paymentID string) (*session.Session, error) {
	data, err := m.client.Get(ctx, m.key(paymentID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domainErrors.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var s session.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

func (m *SessionModel) Update(ctx context.Context, s *session.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	// XX: only update an existing key, never resurrect a deleted session.
	ok, err := m.client.SetXX(ctx, m.key(s.PaymentID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if !ok {
		return domainErrors.ErrSessionNotFound
	}
	return nil
}

func (m *SessionModel) List(ctx context.Context) ([]*session.Session, error) {
	ids, err := m.client.ZRange(ctx, m.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = m.key(id)
	}
	values, err := m.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	sessions := make([]*session.Session, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry with no value key; skip rather than fail the scan.
			continue
		}
		var s session.Session
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, fmt.Errorf("unmarshal session: %w", err)
		}
		sessions = append(sessions, &s)
	}
	return sessions, nil
}
