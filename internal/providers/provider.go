package providers

import (
	"context"
	"encoding/json"
)

// CheckoutRequest carries the normalized input for a hosted-checkout session.
type CheckoutRequest struct {
	Amount     string // decimal string, e.g. "19.99"
	Currency   string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// Result is the provider's answer to any capability call. Status uses the
// provider's own vocabulary; RawPayload is an opaque snapshot kept for audit.
type Result struct {
	PaymentID   string
	Status      string
	RedirectURL string
	RawPayload  json.RawMessage
}

// Provider is a hosted-checkout capability. Implementations are expected to
// enforce their own network timeouts; callers treat every method as a
// blocking call that either succeeds or fails definitively.
type Provider interface {
	// Key returns the provider key (e.g. "dummy", "stripe").
	Key() string
	// CreateCheckout opens a new checkout session with the provider.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Result, error)
	// Refund refunds the payment with the given provider-issued id.
	Refund(ctx context.Context, paymentID string) (*Result, error)
	// Cancel cancels the payment with the given provider-issued id.
	Cancel(ctx context.Context, paymentID string) (*Result, error)
	// FetchStatus returns the provider's current view of the payment.
	FetchStatus(ctx context.Context, paymentID string) (*Result, error)
}
