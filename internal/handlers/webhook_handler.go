package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/dimasprsty/tiketin/internal/gateway"
	"github.com/dimasprsty/tiketin/internal/helpers"
	"github.com/dimasprsty/tiketin/internal/services"
)

// WebhookHandler receives payment outcome notifications from the gateway.
// Delivery is at-least-once, so replays and races with the reaper must be
// acknowledged with a 2xx; only transient processing failures return a 5xx to
// trigger the gateway's retry.
type WebhookHandler struct {
	Payments *services.PaymentService
	Gateway  *gateway.Client
	Log      zerolog.Logger
}

func NewWebhookHandler(payments *services.PaymentService, gw *gateway.Client, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		Payments: payments,
		Gateway:  gw,
		Log:      log.With().Str("component", "webhook").Logger(),
	}
}

func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Failed to read request body.")
		return
	}

	signature := c.GetHeader("X-Gateway-Signature")
	if !h.Gateway.VerifyWebhookSignature(body, signature) {
		h.Log.Warn().Msg("webhook rejected: bad signature")
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid webhook signature.")
		return
	}

	event, err := gateway.ParseWebhookEvent(body)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Malformed webhook payload.")
		return
	}

	switch event.Kind {
	case gateway.EventCheckoutCompleted:
		err = h.Payments.HandleCheckoutCompleted(c.Request.Context(), event.SessionID, event.TransactionID)
	case gateway.EventPaymentFailed:
		err = h.Payments.HandlePaymentFailed(c.Request.Context(), event.SessionID)
	case gateway.EventChargeRefunded:
		err = h.Payments.HandleRefundNotification(c.Request.Context(), event.TransactionID)
	case gateway.EventUnrecognized:
		h.Log.Info().Str("event", event.RawKind).Msg("ignoring unrecognized webhook event")
		c.JSON(http.StatusOK, gin.H{"message": "Event ignored."})
		return
	}

	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "Webhook processed."})
	case errors.Is(err, services.ErrAlreadyFinalized):
		// Replay or a lost race against the reaper. The transition already
		// happened exactly once, so the delivery is acknowledged.
		h.Log.Info().Str("event", event.RawKind).Str("session_id", event.SessionID).
			Msg("webhook replay for finalized order")
		c.JSON(http.StatusOK, gin.H{"message": "Order already finalized."})
	case errors.Is(err, services.ErrInvalidReference):
		// Unknown session or transaction. Retrying will not help, so the
		// delivery is acknowledged and logged for investigation.
		h.Log.Warn().Str("event", event.RawKind).Str("session_id", event.SessionID).
			Str("transaction_id", event.TransactionID).Msg("webhook references unknown payment")
		c.JSON(http.StatusOK, gin.H{"message": "Unknown payment reference."})
	default:
		h.Log.Error().Err(err).Str("event", event.RawKind).Msg("webhook processing failed")
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to process webhook.")
	}
}
