package controller

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/merchantskit/merchants/internal/service"
	"github.com/merchantskit/merchants/internal/webhook"
)

// maxWebhookBody bounds how much of a provider callback we are willing to
// read before verifying anything about it.
const maxWebhookBody = 1 << 20

// SessionController handles checkout-session HTTP requests.
type SessionController struct {
	sessions *service.SessionService
}

// NewSessionController creates a new SessionController.
func NewSessionController(sessions *service.SessionService) *SessionController {
	return &SessionController{sessions: sessions}
}

// CreateCheckout handles POST /api/v1/checkout
func (h *SessionController) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req CreateCheckoutRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	sess, err := h.sessions.CreateCheckout(r.Context(), service.CheckoutInput{
		Amount:      req.Amount,
		Currency:    req.Currency,
		ProviderKey: req.Provider,
		Model:       req.Model,
		SuccessURL:  req.SuccessURL,
		CancelURL:   req.CancelURL,
		Metadata:    req.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, FromSession(sess))
}

// GetSession handles GET /api/v1/sessions/{payment_id}
func (h *SessionController) GetSession(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "payment_id")

	sess, err := h.sessions.GetSession(r.Context(), paymentID, r.URL.Query().Get("model"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromSession(sess))
}

// ListSessions handles GET /api/v1/sessions
func (h *SessionController) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.AllSessions(r.Context(), r.URL.Query().Get("model"))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, FromSession(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

// RefundSession handles POST /api/v1/sessions/{payment_id}/refund
func (h *SessionController) RefundSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.RefundSession(r.Context(), chi.URLParam(r, "payment_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromSession(sess))
}

// CancelSession handles POST /api/v1/sessions/{payment_id}/cancel
func (h *SessionController) CancelSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.CancelSession(r.Context(), chi.URLParam(r, "payment_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromSession(sess))
}

// SyncSession handles POST /api/v1/sessions/{payment_id}/sync
func (h *SessionController) SyncSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.SyncSession(r.Context(), chi.URLParam(r, "payment_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{
		Session: FromSession(sess),
		IsFinal: sess.IsTerminal(),
	})
}

// BulkAction handles POST /api/v1/sessions/actions/{action}
func (h *SessionController) BulkAction(w http.ResponseWriter, r *http.Request) {
	var req BulkActionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	action := service.BulkAction(chi.URLParam(r, "action"))
	outcomes, err := h.sessions.BulkApply(r.Context(), action, req.PaymentIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]BulkOutcomeResponse, 0, len(outcomes))
	for _, o := range outcomes {
		resp = append(resp, FromBulkOutcome(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Webhook handles POST /webhook
func (h *SessionController) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "cannot read body", Code: "invalid_body"})
		return
	}

	ev, err := h.sessions.ApplyWebhook(r.Context(), payload, r.Header.Get(webhook.SignatureHeader))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, WebhookResponse{
		Received:  true,
		PaymentID: ev.PaymentID,
		EventID:   ev.EventID,
	})
}

// CheckoutSuccess handles GET /checkout/success, where providers redirect the
// customer back to after a completed hosted checkout. With a payment_id query
// parameter it returns the stored record alongside the landing status.
func (h *SessionController) CheckoutSuccess(w http.ResponseWriter, r *http.Request) {
	h.landing(w, r, "success")
}

// CheckoutCancel handles GET /checkout/cancel.
func (h *SessionController) CheckoutCancel(w http.ResponseWriter, r *http.Request) {
	h.landing(w, r, "cancel")
}

func (h *SessionController) landing(w http.ResponseWriter, r *http.Request, outcome string) {
	resp := LandingResponse{Landing: outcome}
	if paymentID := r.URL.Query().Get("payment_id"); paymentID != "" {
		// The customer coming back tells us nothing authoritative; show the
		// record as we hold it and let webhooks or sync settle it.
		if sess, err := h.sessions.GetSession(r.Context(), paymentID, ""); err == nil {
			resp.Session = FromSession(sess)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
