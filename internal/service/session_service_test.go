package service_test

import (
	"context"
	"encoding/json"
	"testing"

	domainErrors "github.com/merchantskit/merchants/internal/domain/errors"
	"github.com/merchantskit/merchants/internal/domain/session"
	"github.com/merchantskit/merchants/internal/providers"
	"github.com/merchantskit/merchants/internal/service"
	"github.com/merchantskit/merchants/internal/store"
	"github.com/merchantskit/merchants/internal/webhook"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-webhook-secret"

type fixture struct {
	svc    *service.SessionService
	dummy  *providers.DummyProvider
	router *store.Router
}

func newFixture(t *testing.T, opts ...providers.DummyOption) *fixture {
	t.Helper()
	dummy := providers.NewDummyProvider(opts...)
	router := store.NewRouter(store.NewRegistry(store.NewMemoryModel("sessions")))
	svc := service.NewSessionService(
		providers.NewRegistry(dummy),
		router,
		service.Config{WebhookSecret: testSecret},
		zerolog.Nop(),
		nil,
	)
	return &fixture{svc: svc, dummy: dummy, router: router}
}

func (f *fixture) checkout(t *testing.T) *session.Session {
	t.Helper()
	s, err := f.svc.CreateCheckout(context.Background(), service.CheckoutInput{
		Amount:   "19.99",
		Currency: "USD",
	})
	require.NoError(t, err)
	return s
}

func signedEvent(t *testing.T, paymentID, eventType string) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]string{
		"payment_id": paymentID,
		"event_type": eventType,
		"event_id":   "evt_" + paymentID,
	})
	require.NoError(t, err)
	return payload, webhook.Sign(payload, testSecret)
}

// --- Checkout ---

func TestCreateCheckout(t *testing.T) {
	f := newFixture(t)
	s := f.checkout(t)

	assert.Equal(t, session.StatusPending, s.Status)
	assert.NotEmpty(t, s.PaymentID)
	assert.Equal(t, "dummy", s.ProviderKey)
	assert.Equal(t, "19.99", s.Amount)
	assert.NotEmpty(t, s.RedirectURL)

	stored, err := f.svc.GetSession(context.Background(), s.PaymentID, "")
	require.NoError(t, err)
	assert.Equal(t, s.PaymentID, stored.PaymentID)
}

func TestCreateCheckout_UnknownProvider(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateCheckout(context.Background(), service.CheckoutInput{
		Amount: "19.99", Currency: "USD", ProviderKey: "stripe",
	})
	assert.ErrorIs(t, err, domainErrors.ErrUnknownProvider)
}

func TestCreateCheckout_EmptyRegistryNeverCreatesOrphans(t *testing.T) {
	model := store.NewMemoryModel("sessions")
	router := store.NewRouter(store.NewRegistry(model))
	svc := service.NewSessionService(
		providers.NewEmptyRegistry(), router, service.Config{}, zerolog.Nop(), nil)

	_, err := svc.CreateCheckout(context.Background(), service.CheckoutInput{
		Amount: "19.99", Currency: "USD",
	})
	assert.ErrorIs(t, err, domainErrors.ErrUnknownProvider)

	all, err := router.All(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateCheckout_ProviderFailureNoPartialRecord(t *testing.T) {
	f := newFixture(t, providers.WithFailure(domainErrors.ErrProviderTimeout))

	_, err := f.svc.CreateCheckout(context.Background(), service.CheckoutInput{
		Amount: "19.99", Currency: "USD",
	})

	var provErr *domainErrors.ProviderError
	assert.ErrorAs(t, err, &provErr)
	assert.ErrorIs(t, err, domainErrors.ErrProviderTimeout)

	all, err := f.svc.AllSessions(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateCheckout_UnknownModelRejectedBeforeProviderCall(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateCheckout(context.Background(), service.CheckoutInput{
		Amount: "19.99", Currency: "USD", Model: "nope",
	})
	assert.ErrorIs(t, err, domainErrors.ErrModelNotRegistered)

	// The provider must not have been asked to open a session.
	all, _ := f.svc.AllSessions(context.Background(), "")
	assert.Empty(t, all)
}

func TestCreateCheckout_InvalidAmount(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateCheckout(context.Background(), service.CheckoutInput{
		Amount: "free", Currency: "USD",
	})
	assert.Error(t, err)
}

// --- Webhooks ---

func TestApplyWebhook_TransitionsSession(t *testing.T) {
	f := newFixture(t)
	s := f.checkout(t)

	payload, sig := signedEvent(t, s.PaymentID, "payment.succeeded")
	ev, err := f.svc.ApplyWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, s.PaymentID, ev.PaymentID)

	stored, err := f.svc.GetSession(context.Background(), s.PaymentID, "")
	require.NoError(t, err)
	assert.Equal(t, session.StatusPaid, stored.Status)
	assert.Equal(t, json.RawMessage(payload), stored.RawProviderPayload)
}

func TestApplyWebhook_ReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	s := f.checkout(t)

	payload, sig := signedEvent(t, s.PaymentID, "payment.succeeded")
	_, err := f.svc.ApplyWebhook(context.Background(), payload, sig)
	require.NoError(t, err)

	first, err := f.svc.GetSession(context.Background(), s.PaymentID, "")
	require.NoError(t, err)

	// Same event again: same final status, no second audit update.
	_, err = f.svc.ApplyWebhook(context.Background(), payload, sig)
	require.NoError(t, err)

	second, err := f.svc.GetSession(context.Background(), s.PaymentID, "")
	require.NoError(t, err)
	assert.Equal(t, session.StatusPaid, second.Status)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
}

func TestApplyWebhook_StaleEventAfterSettlementIgnored(t *testing.T) {
	f := newFixture(t)
	s := f.checkout(t)

	paid, sig := signedEvent(t, s.PaymentID, "payment.succeeded")
	_, err := f.svc.ApplyWebhook(context.Background(), paid, sig)
	require.NoError(t, err)

	failed, sig := signedEvent(t, s.PaymentID, "payment.failed")
	_, err = f.svc.ApplyWebhook(context.Background(), failed, sig)
	require.NoError(t, err)

	stored, err := f.svc.GetSession(context.Background(), s.PaymentID, "")
	require.NoError(t, err)
	assert.Equal(t, session.StatusPaid, stored.Status)
}

func TestApplyWebhook_InvalidSignatureLeavesRecordUntouched(t *testing.T) {
	f := newFixture(t)
	s := f.checkout(t)

	payload, _ := signedEvent(t, s.PaymentID, "payment.succeeded")
	_, err := f.svc.ApplyWebhook(context.Background(), payload, webhook.Sign(payload, "wrong-secret"))
	assert.ErrorIs(t, err, domainErrors.ErrInvalidSignature)

	stored, err := f.svc.GetSession(context.Background(), s.PaymentID, "")
	require.NoError(t, err)
	assert.Equal(t, session.StatusPending, stored.Status)
}

func TestApplyWebhook_NoSecretConfiguredFailsClosed(t *testing.T) {
	dummy := providers.NewDummyProvider()
	router := store.NewRouter(store.NewRegistry())
	svc := service.NewSessionService(
		providers.NewRegistry(dummy), router, service.Config{}, zerolog.Nop(), nil)

	payload, sig := []byte(`{"payment_id":"p","status":"paid"}`), ""
	_, err := svc.ApplyWebhook(context.Background(), payload, sig)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidSignature)
}

func TestApplyWebhook_UnknownPaymentAcknowledged(t *testing.T) {
	f := newFixture(t)

	payload, sig := signedEvent(t, "missing_pay", "payment.succeeded")
	ev, err := f.svc.ApplyWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, "missing_pay", ev.PaymentID)
}

func TestApplyWebhook_UnknownStatusAcknowledged(t *testing.T) {
	f := newFixture(t)
	s := f.checkout(t)

	payload, sig := signedEvent(t, s.PaymentID, "payment.weird")
	_, err := f.svc.ApplyWebhook(context.Background(), payload, sig)
	require.NoError(t, err)

	stored, _ := f.svc.GetSession(context.Background(), s.PaymentID, "")
	assert.Equal(t, session.StatusPending, stored.Status)
}

// --- Poll-driven sync, refund, cancel ---

func TestScenario_CheckoutSyncRefund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s := f.checkout(t)
	assert.Equal(t, session.StatusPending, s.Status)
	assert.NotEmpty(t, s.PaymentID)

	// Provider backend settles the payment on its own.
	f.dummy.SetStatus(s.PaymentID, "paid")

	synced, err := f.svc.SyncSession(ctx, s.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusPaid, synced.Status)

	refunded, err := f.svc.RefundSession(ctx, s.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusRefunded, refunded.Status)
	assert.Equal(t, "dummy", refunded.ProviderKey)
}

func TestSyncSession_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SyncSession(context.Background(), "missing")
	assert.ErrorIs(t, err, domainErrors.ErrSessionNotFound)
}

func TestSyncSession_ProviderFailureSurfaced(t *testing.T) {
	f := newFixture(t)
	s := f.checkout(t)

	f.dummy.SetStatus(s.PaymentID, "paid")

	// Swap in a failing provider registry bound to the same router.
	failing := providers.NewDummyProvider(providers.WithFailure(domainErrors.ErrProviderUnavailable))
	svc := service.NewSessionService(
		providers.NewRegistry(failing), f.router, service.Config{}, zerolog.Nop(), nil)

	_, err := svc.SyncSession(context.Background(), s.PaymentID)
	var provErr *domainErrors.ProviderError
	assert.ErrorAs(t, err, &provErr)

	stored, _ := f.svc.GetSession(context.Background(), s.PaymentID, "")
	assert.Equal(t, session.StatusPending, stored.Status)
}

func TestRefundSession_RequiresPaid(t *testing.T) {
	f := newFixture(t)
	s := f.checkout(t)

	_, err := f.svc.RefundSession(context.Background(), s.PaymentID)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)

	stored, _ := f.svc.GetSession(context.Background(), s.PaymentID, "")
	assert.Equal(t, session.StatusPending, stored.Status)
}

func TestCancelSession(t *testing.T) {
	f := newFixture(t)
	s := f.checkout(t)

	cancelled, err := f.svc.CancelSession(context.Background(), s.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCancelled, cancelled.Status)
}

func TestCancelSession_RequiresPending(t *testing.T) {
	f := newFixture(t)
	s := f.checkout(t)

	payload, sig := signedEvent(t, s.PaymentID, "payment.succeeded")
	_, err := f.svc.ApplyWebhook(context.Background(), payload, sig)
	require.NoError(t, err)

	_, err = f.svc.CancelSession(context.Background(), s.PaymentID)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
}

func TestRefundSession_ProviderFailureNoMutation(t *testing.T) {
	f := newFixture(t)
	s := f.checkout(t)

	// Settle via webhook, then make the provider fail.
	payload, sig := signedEvent(t, s.PaymentID, "payment.succeeded")
	_, err := f.svc.ApplyWebhook(context.Background(), payload, sig)
	require.NoError(t, err)

	failing := providers.NewDummyProvider(providers.WithFailure(domainErrors.ErrProviderRejected))
	svc := service.NewSessionService(
		providers.NewRegistry(failing), f.router, service.Config{}, zerolog.Nop(), nil)

	_, err = svc.RefundSession(context.Background(), s.PaymentID)
	var provErr *domainErrors.ProviderError
	assert.ErrorAs(t, err, &provErr)

	stored, _ := f.svc.GetSession(context.Background(), s.PaymentID, "")
	assert.Equal(t, session.StatusPaid, stored.Status)
}

// --- Bulk actions ---

func TestBulkApply_PerRecordErrorIsolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	paid := f.checkout(t)
	payload, sig := signedEvent(t, paid.PaymentID, "payment.succeeded")
	_, err := f.svc.ApplyWebhook(ctx, payload, sig)
	require.NoError(t, err)

	pending := f.checkout(t)

	ids := []string{paid.PaymentID, "missing_pay", pending.PaymentID}
	outcomes, err := f.svc.BulkApply(ctx, service.BulkRefund, ids)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, session.StatusRefunded, outcomes[0].Session.Status)

	assert.ErrorIs(t, outcomes[1].Err, domainErrors.ErrSessionNotFound)

	// Pending session cannot be refunded, but its failure is isolated.
	assert.ErrorIs(t, outcomes[2].Err, domainErrors.ErrInvalidStateTransition)
}

func TestBulkApply_Sync(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a := f.checkout(t)
	b := f.checkout(t)
	f.dummy.SetStatus(a.PaymentID, "paid")
	f.dummy.SetStatus(b.PaymentID, "failed")

	outcomes, err := f.svc.BulkApply(ctx, service.BulkSync, []string{a.PaymentID, b.PaymentID})
	require.NoError(t, err)
	assert.Equal(t, session.StatusPaid, outcomes[0].Session.Status)
	assert.Equal(t, session.StatusFailed, outcomes[1].Session.Status)
}

func TestBulkApply_UnknownAction(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.BulkApply(context.Background(), service.BulkAction("explode"), []string{"x"})
	assert.Error(t, err)
}
