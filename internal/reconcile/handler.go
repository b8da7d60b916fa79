package reconcile

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/payu-bridge/internal/common"
	"github.com/noah-isme/payu-bridge/internal/obs"
	"github.com/noah-isme/payu-bridge/internal/payu"
)

// Handler exposes the reconciliation engine over HTTP.
type Handler struct {
	Engine *Engine
	Logger zerolog.Logger
}

// Notify receives provider notifications. The response code tells the
// provider whether to redeliver: only 5xx responses are retried, so every
// permanent rejection maps to a 4xx.
func (h Handler) Notify(w http.ResponseWriter, r *http.Request) {
	if h.Engine == nil {
		common.JSONError(w, http.StatusInternalServerError, "NOTIFY_NOT_CONFIGURED", "notification endpoint unavailable", nil)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		obs.ObserveNotification(string(OutcomeMalformedPayload))
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}

	h.Logger.Debug().
		Str("remote_addr", common.ClientIP(r)).
		Str("payload_sha256", common.Sha256Hex(string(body))).
		Msg("notification received")

	outcome, err := h.Engine.Handle(r.Context(), body, r.Header.Get(payu.SignatureHeaderName))
	if err != nil {
		obs.ObserveNotification("error")
		h.Logger.Error().Err(err).Msg("notification reconciliation failed")
		common.JSONError(w, http.StatusInternalServerError, "RECONCILE_ERROR", "notification processing failed", nil)
		return
	}
	obs.ObserveNotification(string(outcome.Code))

	switch outcome.Code {
	case OutcomeAccepted:
		common.Text(w, http.StatusOK, "Notification OK")
	case OutcomeMalformedPayload:
		common.JSONError(w, http.StatusBadRequest, "MALFORMED_PAYLOAD", outcome.Reason, nil)
	case OutcomeBadSignature:
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
	case OutcomeOrderNotFound:
		// Retryable: the order may still be in flight from checkout.
		common.JSONError(w, http.StatusServiceUnavailable, "ORDER_NOT_READY", "order not created yet, retry later", nil)
	case OutcomeConflict:
		common.JSONError(w, http.StatusConflict, "TRANSITION_CONFLICT", outcome.Reason, nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "UNKNOWN_OUTCOME", string(outcome.Code), nil)
	}
}

// Return handles the customer coming back from the hosted payment page. PayU
// redirects before the asynchronous notification may have arrived, so the
// only signal checked here is whether a payment record exists yet.
func (h Handler) Return(w http.ResponseWriter, r *http.Request) {
	if h.Engine == nil || h.Engine.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "RETURN_NOT_CONFIGURED", "return endpoint unavailable", nil)
		return
	}
	extOrderID := strings.TrimSpace(chi.URLParam(r, "extOrderId"))
	if extOrderID == "" {
		common.JSONError(w, http.StatusBadRequest, "MISSING_ORDER_ID", "external order id is required", nil)
		return
	}
	ctx := r.Context()
	order, err := h.Engine.Store.FindOrderByExternalID(ctx, extOrderID)
	if errors.Is(err, ErrOrderNotFound) {
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "unknown order", nil)
		return
	}
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "ORDER_FETCH_ERROR", "order lookup failed", nil)
		return
	}
	payment, err := h.Engine.Store.FindPaymentByOrderID(ctx, order.ID)
	if errors.Is(err, ErrPaymentNotFound) {
		common.JSONError(w, http.StatusPaymentRequired, "PAYMENT_PENDING", "payment has not been recorded yet", nil)
		return
	}
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_FETCH_ERROR", "payment lookup failed", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"orderId":     order.ID,
		"extOrderId":  order.ExternalID,
		"orderState":  order.State,
		"paymentId":   payment.ID,
		"remoteState": payment.RemoteState,
		"completed":   payment.Completed,
	})
}
