package session

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/merchantskit/merchants/internal/domain/errors"
	"github.com/shopspring/decimal"
)

// Status represents the session status in the state machine
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// transitions defines the accepted moves of the state machine. Anything not
// listed here is a no-op: provider event delivery is at-least-once and
// out-of-order, so replays and stale events must never error.
var transitions = map[Status][]Status{
	StatusPending:   {StatusPaid, StatusFailed, StatusCancelled},
	StatusPaid:      {StatusRefunded},
	StatusFailed:    {}, // Terminal state
	StatusCancelled: {}, // Terminal state
	StatusRefunded:  {}, // Terminal state
}

// Valid reports whether s is a known session status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Session represents one hosted-checkout attempt. ID, PaymentID, ProviderKey,
// Amount and Currency are immutable after creation; only the State Sync
// Engine mutates Status.
type Session struct {
	ID                 uuid.UUID
	PaymentID          string
	ProviderKey        string
	Amount             string // decimal string, pass-through (e.g. "19.99")
	Currency           string
	Status             Status
	RedirectURL        string
	Metadata           map[string]string
	RawProviderPayload json.RawMessage
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// New creates a pending session bound to the provider that issued paymentID.
func New(paymentID, providerKey, amount, currency, redirectURL string, metadata map[string]string, raw json.RawMessage) (*Session, error) {
	if paymentID == "" {
		return nil, errors.NewValidationError("payment_id", "cannot be empty")
	}
	if providerKey == "" {
		return nil, errors.NewValidationError("provider", "cannot be empty")
	}
	if err := ValidateAmount(amount, currency); err != nil {
		return nil, err
	}
	if metadata == nil {
		metadata = make(map[string]string)
	}

	now := time.Now().UTC()
	return &Session{
		ID:                 uuid.New(),
		PaymentID:          paymentID,
		ProviderKey:        providerKey,
		Amount:             amount,
		Currency:           currency,
		Status:             StatusPending,
		RedirectURL:        redirectURL,
		Metadata:           metadata,
		RawProviderPayload: raw,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// ValidateAmount checks the decimal string and currency code. The amount is
// never computed with, only validated and passed through.
func ValidateAmount(amount, currency string) error {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return errors.NewValidationError("amount", "must be a decimal string")
	}
	if !d.IsPositive() {
		return errors.NewValidationError("amount", "must be greater than 0")
	}
	if len(currency) != 3 {
		return errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}
	return nil
}

// CanTransitionTo checks if the session can transition to the given status
func (s *Session) CanTransitionTo(target Status) bool {
	allowed, exists := transitions[s.Status]
	if !exists {
		return false
	}
	for _, a := range allowed {
		if a == target {
			return true
		}
	}
	return false
}

// ApplyTransition moves the session to target if the state machine accepts
// it, overwriting the raw payload snapshot and bumping UpdatedAt. It returns
// false when the transition is rejected; the record is left untouched so
// duplicate or stale events resolve to no-ops.
func (s *Session) ApplyTransition(target Status, raw json.RawMessage) bool {
	if !s.CanTransitionTo(target) {
		return false
	}
	s.Status = target
	if raw != nil {
		s.RawProviderPayload = raw
	}
	s.UpdatedAt = time.Now().UTC()
	return true
}

// IsTerminal checks if the session is in a terminal state
func (s *Session) IsTerminal() bool {
	return s.Status == StatusFailed ||
		s.Status == StatusCancelled ||
		s.Status == StatusRefunded
}

// Clone returns a deep copy. Storage models hand out clones so callers can
// never mutate stored state behind the router's back.
func (s *Session) Clone() *Session {
	dup := *s
	if s.Metadata != nil {
		dup.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			dup.Metadata[k] = v
		}
	}
	if s.RawProviderPayload != nil {
		dup.RawProviderPayload = append(json.RawMessage(nil), s.RawProviderPayload...)
	}
	return &dup
}

// providerStatuses maps the status vocabularies providers report to the
// internal state machine targets.
var providerStatuses = map[string]Status{
	"pending":    StatusPending,
	"processing": StatusPending,
	"created":    StatusPending,
	"open":       StatusPending,
	"paid":       StatusPaid,
	"succeeded":  StatusPaid,
	"success":    StatusPaid,
	"completed":  StatusPaid,
	"failed":     StatusFailed,
	"declined":   StatusFailed,
	"error":      StatusFailed,
	"cancelled":  StatusCancelled,
	"canceled":   StatusCancelled,
	"expired":    StatusCancelled,
	"refunded":   StatusRefunded,
}

// FromProviderStatus maps a provider-reported status string to an internal
// status. The second return value is false for vocabulary we do not know.
func FromProviderStatus(s string) (Status, bool) {
	st, ok := providerStatuses[strings.ToLower(strings.TrimSpace(s))]
	return st, ok
}
