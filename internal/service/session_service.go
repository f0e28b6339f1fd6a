package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	domainErrors "github.com/merchantskit/merchants/internal/domain/errors"
	"github.com/merchantskit/merchants/internal/domain/session"
	"github.com/merchantskit/merchants/internal/infrastructure/observability"
	"github.com/merchantskit/merchants/internal/providers"
	"github.com/merchantskit/merchants/internal/store"
	"github.com/merchantskit/merchants/internal/webhook"
	"github.com/merchantskit/merchants/pkg/retry"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config holds service-level tunables.
type Config struct {
	// WebhookSecret enables webhook processing. Empty means every webhook is
	// rejected.
	WebhookSecret string
	// SyncRetry controls retries of poll-driven fetch_status calls.
	SyncRetry retry.Config
	// BulkConcurrency bounds parallel provider calls during bulk actions.
	BulkConcurrency int
}

// SessionService orchestrates checkout sessions: it dispatches checkouts to
// providers, reconciles session state from webhooks and polls, and exposes
// the lookup operations the request layer consumes. All state mutation flows
// through applyTransition, never directly through a handler.
type SessionService struct {
	providers *providers.Registry
	router    *store.Router
	cfg       Config
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// NewSessionService creates a new SessionService. metrics may be nil.
func NewSessionService(
	providerRegistry *providers.Registry,
	router *store.Router,
	cfg Config,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *SessionService {
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = 4
	}
	if cfg.SyncRetry.MaxAttempts == 0 {
		cfg.SyncRetry = retry.DefaultConfig()
	}
	return &SessionService{
		providers: providerRegistry,
		router:    router,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckoutInput holds the input for creating a checkout session.
type CheckoutInput struct {
	Amount      string
	Currency    string
	ProviderKey string // empty: first registered provider
	Model       string // empty: first registered model
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string
}

// CreateCheckout resolves the provider, opens a hosted-checkout session and
// persists the pending record. Nothing is persisted when the provider call
// fails.
func (s *SessionService) CreateCheckout(ctx context.Context, in CheckoutInput) (*session.Session, error) {
	if err := session.ValidateAmount(in.Amount, in.Currency); err != nil {
		return nil, err
	}

	// Reject a misconfigured target model before contacting the provider, so
	// a configuration error can never leave an orphaned provider session.
	if _, err := s.router.ResolveModel(in.Model); err != nil {
		return nil, err
	}

	provider, breaker, err := s.providers.Resolve(in.ProviderKey)
	if err != nil {
		return nil, err
	}

	result, err := s.callProvider(ctx, provider.Key(), "create_checkout", func() (*providers.Result, error) {
		return breaker.Execute(func() (*providers.Result, error) {
			return provider.CreateCheckout(ctx, providers.CheckoutRequest{
				Amount:     in.Amount,
				Currency:   in.Currency,
				SuccessURL: in.SuccessURL,
				CancelURL:  in.CancelURL,
				Metadata:   in.Metadata,
			})
		})
	})
	if err != nil {
		s.countCheckout(provider.Key(), "provider_error")
		return nil, err
	}

	sess, err := session.New(result.PaymentID, provider.Key(), in.Amount, in.Currency, result.RedirectURL, in.Metadata, result.RawPayload)
	if err != nil {
		return nil, err
	}

	if err := s.router.Create(ctx, sess, in.Model); err != nil {
		s.countCheckout(provider.Key(), "store_error")
		return nil, err
	}

	s.countCheckout(provider.Key(), "created")
	s.logger.Info().
		Str("payment_id", sess.PaymentID).
		Str("provider", sess.ProviderKey).
		Str("amount", sess.Amount).
		Str("currency", sess.Currency).
		Msg("checkout session created")
	return sess, nil
}

// GetSession returns the stored session for a payment id, searching every
// registered model unless one is named.
func (s *SessionService) GetSession(ctx context.Context, paymentID, model string) (*session.Session, error) {
	return s.router.Get(ctx, paymentID, model)
}

// AllSessions lists sessions from one model, or the union of all of them.
func (s *SessionService) AllSessions(ctx context.Context, model string) ([]*session.Session, error) {
	return s.router.All(ctx, model)
}

// ApplyWebhook verifies and applies one provider event. Unknown payment ids
// and replayed or stale events are acknowledged as no-ops; only signature
// failures and malformed payloads are errors.
func (s *SessionService) ApplyWebhook(ctx context.Context, payload []byte, signature string) (*webhook.Event, error) {
	if err := webhook.Verify(payload, signature, s.cfg.WebhookSecret); err != nil {
		s.countWebhook("invalid_signature")
		s.logger.Warn().Msg("webhook rejected: invalid signature")
		return nil, err
	}

	ev, err := webhook.ParseEvent(payload)
	if err != nil {
		s.countWebhook("malformed")
		return nil, err
	}

	target, ok := session.FromProviderStatus(ev.Status)
	if !ok {
		s.countWebhook("unknown_status")
		s.logger.Warn().
			Str("payment_id", ev.PaymentID).
			Str("status", ev.Status).
			Msg("webhook with unrecognized status ignored")
		return ev, nil
	}

	_, accepted, err := s.applyTransition(ctx, ev.PaymentID, "", target, payload)
	if err != nil {
		if errors.Is(err, domainErrors.ErrSessionNotFound) {
			// At-least-once delivery: an event for a session we do not hold
			// is acknowledged, not bounced back for redelivery.
			s.countWebhook("unknown_session")
			s.logger.Warn().
				Str("payment_id", ev.PaymentID).
				Msg("webhook for unknown payment id ignored")
			return ev, nil
		}
		return nil, err
	}

	if accepted {
		s.countWebhook("applied")
	} else {
		s.countWebhook("noop")
	}
	return ev, nil
}

// SyncSession fetches the provider's current status for a session and
// reconciles the stored record. Unlike webhook replays this is a
// caller-initiated operation expecting a definitive answer, so provider
// failure is surfaced instead of swallowed.
func (s *SessionService) SyncSession(ctx context.Context, paymentID string) (*session.Session, error) {
	sess, err := s.router.Get(ctx, paymentID, "")
	if err != nil {
		return nil, err
	}

	provider, breaker, err := s.providers.Resolve(sess.ProviderKey)
	if err != nil {
		return nil, err
	}

	result, err := s.callProvider(ctx, provider.Key(), "fetch_status", func() (*providers.Result, error) {
		return retry.DoWithResult(ctx, s.cfg.SyncRetry, func() (*providers.Result, error) {
			return breaker.Execute(func() (*providers.Result, error) {
				return provider.FetchStatus(ctx, paymentID)
			})
		})
	})
	if err != nil {
		return nil, err
	}

	target, ok := session.FromProviderStatus(result.Status)
	if !ok {
		s.logger.Warn().
			Str("payment_id", paymentID).
			Str("status", result.Status).
			Msg("provider reported unrecognized status, record left unchanged")
		return sess, nil
	}

	updated, _, err := s.applyTransition(ctx, paymentID, "", target, result.RawPayload)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RefundSession refunds a paid session. The provider is called first; only a
// successful provider response moves the record.
func (s *SessionService) RefundSession(ctx context.Context, paymentID string) (*session.Session, error) {
	sess, err := s.router.Get(ctx, paymentID, "")
	if err != nil {
		return nil, err
	}
	if sess.Status != session.StatusPaid {
		return nil, domainErrors.NewDomainError(
			"invalid_refund",
			fmt.Sprintf("cannot refund session in status %s", sess.Status),
			domainErrors.ErrInvalidStateTransition,
		)
	}

	provider, breaker, err := s.providers.Resolve(sess.ProviderKey)
	if err != nil {
		return nil, err
	}

	result, err := s.callProvider(ctx, provider.Key(), "refund", func() (*providers.Result, error) {
		return breaker.Execute(func() (*providers.Result, error) {
			return provider.Refund(ctx, paymentID)
		})
	})
	if err != nil {
		return nil, err
	}

	updated, _, err := s.applyTransition(ctx, paymentID, "", session.StatusRefunded, result.RawPayload)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("payment_id", paymentID).Msg("session refunded")
	return updated, nil
}

// CancelSession cancels a pending session. The provider is called first;
// only a successful provider response moves the record.
func (s *SessionService) CancelSession(ctx context.Context, paymentID string) (*session.Session, error) {
	sess, err := s.router.Get(ctx, paymentID, "")
	if err != nil {
		return nil, err
	}
	if sess.Status != session.StatusPending {
		return nil, domainErrors.NewDomainError(
			"invalid_cancel",
			fmt.Sprintf("cannot cancel session in status %s", sess.Status),
			domainErrors.ErrInvalidStateTransition,
		)
	}

	provider, breaker, err := s.providers.Resolve(sess.ProviderKey)
	if err != nil {
		return nil, err
	}

	result, err := s.callProvider(ctx, provider.Key(), "cancel", func() (*providers.Result, error) {
		return breaker.Execute(func() (*providers.Result, error) {
			return provider.Cancel(ctx, paymentID)
		})
	})
	if err != nil {
		return nil, err
	}

	updated, _, err := s.applyTransition(ctx, paymentID, "", session.StatusCancelled, result.RawPayload)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("payment_id", paymentID).Msg("session cancelled")
	return updated, nil
}

// applyTransition is the single write path for session state. It runs the
// state machine under the router's per-payment-id lock and persists only
// accepted transitions.
func (s *SessionService) applyTransition(ctx context.Context, paymentID, model string, target session.Status, raw json.RawMessage) (*session.Session, bool, error) {
	var (
		from     session.Status
		accepted bool
	)
	updated, err := s.router.Update(ctx, paymentID, model, func(sess *session.Session) (bool, error) {
		from = sess.Status
		accepted = sess.ApplyTransition(target, raw)
		return accepted, nil
	})
	if err != nil {
		return nil, false, err
	}

	if s.metrics != nil {
		s.metrics.TransitionsTotal.WithLabelValues(string(from), string(target), strconv.FormatBool(accepted)).Inc()
	}
	if accepted {
		s.logger.Info().
			Str("payment_id", paymentID).
			Str("from", string(from)).
			Str("to", string(target)).
			Msg("session transition applied")
	} else {
		s.logger.Debug().
			Str("payment_id", paymentID).
			Str("from", string(from)).
			Str("to", string(target)).
			Msg("session transition ignored")
	}
	return updated, accepted, nil
}

// callProvider wraps one capability call with metrics and error mapping.
func (s *SessionService) callProvider(ctx context.Context, key, op string, call func() (*providers.Result, error)) (*providers.Result, error) {
	start := time.Now()
	result, err := call()
	elapsed := time.Since(start).Seconds()

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if s.metrics != nil {
		s.metrics.ProviderRequestsTotal.WithLabelValues(key, op, outcome).Inc()
		s.metrics.ProviderRequestDuration.WithLabelValues(key, op).Observe(elapsed)
	}

	if err != nil {
		s.logger.Error().Err(err).Str("provider", key).Str("op", op).Msg("provider call failed")
		return nil, domainErrors.NewProviderError(key, op, err)
	}
	return result, nil
}

func (s *SessionService) countCheckout(provider, result string) {
	if s.metrics != nil {
		s.metrics.CheckoutsTotal.WithLabelValues(provider, result).Inc()
	}
}

func (s *SessionService) countWebhook(result string) {
	if s.metrics != nil {
		s.metrics.WebhooksTotal.WithLabelValues(result).Inc()
	}
}

// --- Bulk actions ---

// BulkAction names one of the admin bulk operations.
type BulkAction string

const (
	BulkRefund BulkAction = "refund"
	BulkCancel BulkAction = "cancel"
	BulkSync   BulkAction = "sync"
)

// BulkOutcome is the per-record result of a bulk action.
type BulkOutcome struct {
	PaymentID string
	Session   *session.Session
	Err       error
}

// BulkApply runs a bulk action over many payment ids with bounded
// concurrency. One record's failure never aborts the rest; every outcome is
// reported.
func (s *SessionService) BulkApply(ctx context.Context, action BulkAction, paymentIDs []string) ([]BulkOutcome, error) {
	var op func(context.Context, string) (*session.Session, error)
	switch action {
	case BulkRefund:
		op = s.RefundSession
	case BulkCancel:
		op = s.CancelSession
	case BulkSync:
		op = s.SyncSession
	default:
		return nil, domainErrors.NewValidationError("action", fmt.Sprintf("unknown bulk action %q", action))
	}

	outcomes := make([]BulkOutcome, len(paymentIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BulkConcurrency)

	for i, id := range paymentIDs {
		g.Go(func() error {
			sess, err := op(gctx, id)
			outcomes[i] = BulkOutcome{PaymentID: id, Session: sess, Err: err}
			return nil
		})
	}
	// Goroutines never return errors; Wait only joins them.
	_ = g.Wait()

	return outcomes, nil
}
