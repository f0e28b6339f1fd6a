package controller

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/merchantskit/merchants/internal/infrastructure/config"
	"github.com/merchantskit/merchants/internal/providers"
	"github.com/merchantskit/merchants/internal/service"
	"github.com/merchantskit/merchants/internal/store"
	"github.com/merchantskit/merchants/internal/webhook"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "controller-test-secret"

func newTestRouter(t *testing.T) (http.Handler, *providers.DummyProvider) {
	t.Helper()
	dummy := providers.NewDummyProvider()
	router := store.NewRouter(store.NewRegistry(store.NewMemoryModel("sessions")))
	svc := service.NewSessionService(
		providers.NewRegistry(dummy),
		router,
		service.Config{WebhookSecret: testSecret},
		zerolog.Nop(),
		nil,
	)
	return NewRouter(RouterDeps{
		SessionService: svc,
		CORSConfig:     config.CORSConfig{AllowedOrigins: []string{"*"}},
	}), dummy
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, h http.Handler) SessionResponse {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/checkout", CreateCheckoutRequest{
		Amount:   "42.50",
		Currency: "EUR",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCreateCheckoutEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)
	resp := createSession(t, h)

	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "42.50", resp.Amount)
	assert.Equal(t, "EUR", resp.Currency)
	assert.Equal(t, "dummy", resp.Provider)
	assert.NotEmpty(t, resp.PaymentID)
	assert.NotEmpty(t, resp.RedirectURL)
}

func TestCreateCheckoutEndpoint_ValidationErrors(t *testing.T) {
	h, _ := newTestRouter(t)

	tests := []struct {
		name string
		req  CreateCheckoutRequest
	}{
		{"missing amount", CreateCheckoutRequest{Currency: "USD"}},
		{"bad currency", CreateCheckoutRequest{Amount: "10.00", Currency: "EURO"}},
		{"missing currency", CreateCheckoutRequest{Amount: "10.00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/v1/checkout", tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreateCheckoutEndpoint_NonPositiveAmount(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/checkout", CreateCheckoutRequest{
		Amount: "-5.00", Currency: "USD",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateCheckoutEndpoint_UnknownProvider(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/checkout", CreateCheckoutRequest{
		Amount: "10.00", Currency: "USD", Provider: "stripe",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unknown_provider", resp.Code)
}

func TestGetSessionEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)
	created := createSession(t, h)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/sessions/"+created.PaymentID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, created.PaymentID, resp.PaymentID)
}

func TestGetSessionEndpoint_NotFound(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := doJSON(t, h, http.MethodGet, "/api/v1/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSessionsEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)
	createSession(t, h)
	createSession(t, h)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp, 2)
}

func TestWebhookEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)
	created := createSession(t, h)

	payload, err := json.Marshal(map[string]string{
		"payment_id": created.PaymentID,
		"event_type": "payment.succeeded",
		"event_id":   "evt_1",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set(webhook.SignatureHeader, webhook.Sign(payload, testSecret))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	get := doJSON(t, h, http.MethodGet, "/api/v1/sessions/"+created.PaymentID, nil)
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(get.Body.Bytes(), &resp))
	assert.Equal(t, "paid", resp.Status)
}

func TestWebhookEndpoint_BadSignature(t *testing.T) {
	h, _ := newTestRouter(t)
	created := createSession(t, h)

	payload, _ := json.Marshal(map[string]string{
		"payment_id": created.PaymentID,
		"event_type": "payment.succeeded",
	})

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set(webhook.SignatureHeader, "sha256=deadbeef")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	get := doJSON(t, h, http.MethodGet, "/api/v1/sessions/"+created.PaymentID, nil)
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(get.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp.Status)
}

func TestWebhookEndpoint_MissingSignature(t *testing.T) {
	h, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncEndpoint(t *testing.T) {
	h, dummy := newTestRouter(t)
	created := createSession(t, h)
	dummy.SetStatus(created.PaymentID, "paid")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sessions/"+created.PaymentID+"/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SyncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Session)
	assert.Equal(t, "paid", resp.Session.Status)
	// Paid is not final: a refund can still move it.
	assert.False(t, resp.IsFinal)
}

func TestRefundEndpoint_RequiresPaid(t *testing.T) {
	h, _ := newTestRouter(t)
	created := createSession(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sessions/"+created.PaymentID+"/refund", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)
	created := createSession(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sessions/"+created.PaymentID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cancelled", resp.Status)
}

func TestBulkActionEndpoint(t *testing.T) {
	h, dummy := newTestRouter(t)
	a := createSession(t, h)
	b := createSession(t, h)
	dummy.SetStatus(a.PaymentID, "paid")
	dummy.SetStatus(b.PaymentID, "failed")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sessions/actions/sync", BulkActionRequest{
		PaymentIDs: []string{a.PaymentID, b.PaymentID, "missing"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp []BulkOutcomeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 3)
	assert.Equal(t, "paid", resp[0].Session.Status)
	assert.Equal(t, "failed", resp[1].Session.Status)
	assert.NotEmpty(t, resp[2].Error)
}

func TestBulkActionEndpoint_UnknownAction(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/sessions/actions/explode", BulkActionRequest{
		PaymentIDs: []string{"x"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLandingEndpoints(t *testing.T) {
	h, _ := newTestRouter(t)
	created := createSession(t, h)

	rec := doJSON(t, h, http.MethodGet, "/checkout/success?payment_id="+created.PaymentID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LandingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Landing)
	require.NotNil(t, resp.Session)
	assert.Equal(t, created.PaymentID, resp.Session.PaymentID)

	// Unknown or missing payment id still lands cleanly.
	rec = doJSON(t, h, http.MethodGet, "/checkout/cancel?payment_id=missing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cancelResp LandingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cancelResp))
	assert.Equal(t, "cancel", cancelResp.Landing)
	assert.Nil(t, cancelResp.Session)
}

func TestHealthEndpoints(t *testing.T) {
	h, _ := newTestRouter(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rec := doJSON(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
