package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	domainErrors "github.com/merchantskit/merchants/internal/domain/errors"
	"github.com/google/uuid"
)

// DummyProvider is an in-process provider used for local development and
// tests. It keeps its own view of every payment it issued, so FetchStatus
// reports whatever the dummy backend currently believes.
type DummyProvider struct {
	key string

	mu       sync.Mutex
	statuses map[string]string // payment id -> provider-vocabulary status

	reportStatus string // when set, FetchStatus reports this for any id
	failWith     error  // when set, every call fails with this error
}

// DummyOption configures a DummyProvider.
type DummyOption func(*DummyProvider)

// WithKey overrides the provider key (default "dummy").
func WithKey(key string) DummyOption {
	return func(p *DummyProvider) { p.key = key }
}

// WithReportedStatus makes FetchStatus report the given status for every
// payment id, mimicking a provider whose backend moved on its own.
func WithReportedStatus(status string) DummyOption {
	return func(p *DummyProvider) { p.reportStatus = status }
}

// WithFailure makes every capability call fail with err.
func WithFailure(err error) DummyOption {
	return func(p *DummyProvider) { p.failWith = err }
}

// NewDummyProvider creates a dummy provider.
func NewDummyProvider(opts ...DummyOption) *DummyProvider {
	p := &DummyProvider{
		key:      "dummy",
		statuses: make(map[string]string),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *DummyProvider) Key() string { return p.key }

// SetStatus moves the dummy backend's view of a payment, as if the money
// actually moved on the provider side.
func (p *DummyProvider) SetStatus(paymentID, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[paymentID] = status
}

func (p *DummyProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Result, error) {
	if err := p.checkFailure(ctx); err != nil {
		return nil, err
	}

	paymentID := fmt.Sprintf("%s_pay_%s", p.key, uuid.New().String()[:8])

	p.mu.Lock()
	p.statuses[paymentID] = "pending"
	p.mu.Unlock()

	redirect := fmt.Sprintf("https://checkout.%s.invalid/%s", p.key, paymentID)
	return &Result{
		PaymentID:   paymentID,
		Status:      "pending",
		RedirectURL: redirect,
		RawPayload: p.payload(map[string]string{
			"id":           paymentID,
			"status":       "pending",
			"amount":       req.Amount,
			"currency":     req.Currency,
			"redirect_url": redirect,
		}),
	}, nil
}

func (p *DummyProvider) Refund(ctx context.Context, paymentID string) (*Result, error) {
	if err := p.checkFailure(ctx); err != nil {
		return nil, err
	}
	p.SetStatus(paymentID, "refunded")
	return &Result{
		PaymentID:  paymentID,
		Status:     "refunded",
		RawPayload: p.payload(map[string]string{"id": paymentID, "status": "refunded"}),
	}, nil
}

func (p *DummyProvider) Cancel(ctx context.Context, paymentID string) (*Result, error) {
	if err := p.checkFailure(ctx); err != nil {
		return nil, err
	}
	p.SetStatus(paymentID, "cancelled")
	return &Result{
		PaymentID:  paymentID,
		Status:     "cancelled",
		RawPayload: p.payload(map[string]string{"id": paymentID, "status": "cancelled"}),
	}, nil
}

func (p *DummyProvider) FetchStatus(ctx context.Context, paymentID string) (*Result, error) {
	if err := p.checkFailure(ctx); err != nil {
		return nil, err
	}

	status := p.reportStatus
	if status == "" {
		p.mu.Lock()
		stored, ok := p.statuses[paymentID]
		p.mu.Unlock()
		if !ok {
			return nil, domainErrors.ErrProviderRejected
		}
		status = stored
	}

	return &Result{
		PaymentID:  paymentID,
		Status:     status,
		RawPayload: p.payload(map[string]string{"id": paymentID, "status": status}),
	}, nil
}

func (p *DummyProvider) checkFailure(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.failWith
}

func (p *DummyProvider) payload(fields map[string]string) json.RawMessage {
	raw, _ := json.Marshal(fields)
	return raw
}
