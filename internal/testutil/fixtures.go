package testutil

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/merchantskit/merchants/internal/domain/session"
)

// NewTestSession builds a pending session with a unique payment id.
func NewTestSession(provider, amount, currency string) *session.Session {
	now := time.Now()
	return &session.Session{
		ID:          uuid.New(),
		PaymentID:   fmt.Sprintf("%s_pay_%s", provider, uuid.New().String()[:8]),
		ProviderKey: provider,
		Amount:      amount,
		Currency:    currency,
		Status:      session.StatusPending,
		RedirectURL: "https://checkout.example.invalid/session",
		Metadata:    map[string]string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewPaidSession builds a session already settled as paid.
func NewPaidSession(provider, amount, currency string) *session.Session {
	s := NewTestSession(provider, amount, currency)
	s.Status = session.StatusPaid
	s.RawProviderPayload = json.RawMessage(
		fmt.Sprintf(`{"id":%q,"status":"paid"}`, s.PaymentID))
	return s
}
