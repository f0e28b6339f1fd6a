package controller

import (
	"encoding/json"
	"time"

	"github.com/merchantskit/merchants/internal/domain/session"
	"github.com/merchantskit/merchants/internal/service"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (validation tags, wire names).
// Controllers convert these to service layer inputs before calling business
// logic. Amounts stay strings on the wire end to end.

// CreateCheckoutRequest holds the input for opening a checkout session.
type CreateCheckoutRequest struct {
	Amount      string            `json:"amount" validate:"required"`
	Currency    string            `json:"currency" validate:"required,len=3"`
	Provider    string            `json:"provider,omitempty"`
	Model       string            `json:"model,omitempty"`
	SuccessURL  string            `json:"success_url,omitempty" validate:"omitempty,url"`
	CancelURL   string            `json:"cancel_url,omitempty" validate:"omitempty,url"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// BulkActionRequest holds the payment ids targeted by a bulk action.
type BulkActionRequest struct {
	PaymentIDs []string `json:"payment_ids" validate:"required,min=1,dive,required"`
}

// --- Response DTOs ---

// SessionResponse represents a checkout session in API responses.
type SessionResponse struct {
	ID          string            `json:"id"`
	PaymentID   string            `json:"payment_id"`
	Provider    string            `json:"provider"`
	Amount      string            `json:"amount"`
	Currency    string            `json:"currency"`
	Status      string            `json:"status"`
	RedirectURL string            `json:"redirect_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	RawPayload  json.RawMessage   `json:"raw_provider_payload,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// SyncResponse is the result of a live provider sync.
type SyncResponse struct {
	Session *SessionResponse `json:"session"`
	IsFinal bool             `json:"is_final"`
}

// LandingResponse is returned by the checkout landing endpoints.
type LandingResponse struct {
	Landing string           `json:"landing"`
	Session *SessionResponse `json:"session,omitempty"`
}

// WebhookResponse acknowledges a processed provider event.
type WebhookResponse struct {
	Received  bool   `json:"received"`
	PaymentID string `json:"payment_id,omitempty"`
	EventID   string `json:"event_id,omitempty"`
}

// BulkOutcomeResponse is the per-record result of a bulk action.
type BulkOutcomeResponse struct {
	PaymentID string           `json:"payment_id"`
	Session   *SessionResponse `json:"session,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromSession converts a domain session to API response.
func FromSession(s *session.Session) *SessionResponse {
	return &SessionResponse{
		ID:          s.ID.String(),
		PaymentID:   s.PaymentID,
		Provider:    s.ProviderKey,
		Amount:      s.Amount,
		Currency:    s.Currency,
		Status:      string(s.Status),
		RedirectURL: s.RedirectURL,
		Metadata:    s.Metadata,
		RawPayload:  s.RawProviderPayload,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// FromBulkOutcome converts a bulk action outcome to API response.
func FromBulkOutcome(o service.BulkOutcome) BulkOutcomeResponse {
	resp := BulkOutcomeResponse{PaymentID: o.PaymentID}
	if o.Session != nil {
		resp.Session = FromSession(o.Session)
	}
	if o.Err != nil {
		resp.Error = o.Err.Error()
	}
	return resp
}
