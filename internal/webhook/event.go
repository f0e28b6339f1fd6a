package webhook

import (
	"encoding/json"
	"strings"

	domainErrors "github.com/merchantskit/merchants/internal/domain/errors"
)

// Event is a decoded provider webhook. Status may be given explicitly or
// derived from the event type suffix ("payment.succeeded" -> "succeeded").
type Event struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

// ParseEvent decodes a verified webhook payload. It must only ever be called
// on bodies that passed Verify.
func ParseEvent(payload []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, domainErrors.NewValidationError("payload", "malformed webhook payload")
	}
	if ev.PaymentID == "" {
		return nil, domainErrors.NewValidationError("payment_id", "missing in webhook payload")
	}

	if ev.Status == "" && ev.EventType != "" {
		if i := strings.LastIndex(ev.EventType, "."); i >= 0 {
			ev.Status = ev.EventType[i+1:]
		}
	}
	if ev.Status == "" {
		return nil, domainErrors.NewValidationError("status", "missing in webhook payload")
	}
	return &ev, nil
}
