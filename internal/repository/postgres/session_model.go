package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	domainErrors "github.com/merchantskit/merchants/internal/domain/errors"
	"github.com/merchantskit/merchants/internal/domain/session"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Table names come from configuration and are interpolated into SQL, so they
// are restricted to plain identifiers.
var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// SessionModel is a PostgreSQL-backed storage model. Each instance binds to
// one table, so multiple models over the same pool give one model per table.
type SessionModel struct {
	pool  *pgxpool.Pool
	name  string
	table string
}

// NewSessionModel creates a session model over the given table. The model
// name is how the router addresses it; the table is where rows live.
func NewSessionModel(pool *pgxpool.Pool, name, table string) (*SessionModel, error) {
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid session table name %q", table)
	}
	return &SessionModel{pool: pool, name: name, table: table}, nil
}

func (m *SessionModel) Name() string { return m.name }

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (m *SessionModel) Insert(ctx context.Context, s *session.Session) error {
	metadata, err := json.Marshal(s.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = m.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s
		 (id, payment_id, provider, amount, currency, status, redirect_url,
		  metadata, raw_provider_payload, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`, m.table),
		s.ID, s.PaymentID, s.ProviderKey, s.Amount, s.Currency, string(s.Status),
		s.RedirectURL, metadata, []byte(s.RawProviderPayload), s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domainErrors.ErrDuplicateSession
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (m *SessionModel) Get(ctx context.Context, paymentID string) (*session.Session, error) {
	return m.scanSession(m.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT id, payment_id, provider, amount, currency, status, redirect_url,
		        metadata, raw_provider_payload, created_at, updated_at
		 FROM %s WHERE payment_id = $1`, m.table), paymentID))
}

func (m *SessionModel) Update(ctx context.Context, s *session.Session) error {
	metadata, err := json.Marshal(s.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tag, err := m.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET
		  status=$1, redirect_url=$2, metadata=$3, raw_provider_payload=$4, updated_at=$5
		 WHERE payment_id=$6`, m.table),
		string(s.Status), s.RedirectURL, metadata, []byte(s.RawProviderPayload), s.UpdatedAt, s.PaymentID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrSessionNotFound
	}
	return nil
}

func (m *SessionModel) List(ctx context.Context) ([]*session.Session, error) {
	rows, err := m.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, payment_id, provider, amount, currency, status, redirect_url,
		        metadata, raw_provider_payload, created_at, updated_at
		 FROM %s ORDER BY created_at ASC`, m.table))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		s, err := m.scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (m *SessionModel) scanSession(sc scanner) (*session.Session, error) {
	s := &session.Session{}
	var (
		status   string
		metadata []byte
		raw      []byte
	)
	err := sc.Scan(
		&s.ID, &s.PaymentID, &s.ProviderKey, &s.Amount, &s.Currency, &status,
		&s.RedirectURL, &metadata, &raw, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domainErrors.ErrSessionNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	s.Status = session.Status(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &s.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal session metadata: %w", err)
		}
	}
	if len(raw) > 0 {
		s.RawProviderPayload = json.RawMessage(raw)
	}
	return s, nil
}
