package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dimasprsty/tiketin/internal/gateway"
	"github.com/dimasprsty/tiketin/internal/helpers"
	"github.com/dimasprsty/tiketin/internal/models"
	"github.com/dimasprsty/tiketin/internal/services"
)

type PaymentHandler struct {
	Orders   *services.OrderService
	Payments *services.PaymentService
	Gateway  *gateway.Client
}

func NewPaymentHandler(orders *services.OrderService, payments *services.PaymentService, gw *gateway.Client) *PaymentHandler {
	return &PaymentHandler{Orders: orders, Payments: payments, Gateway: gw}
}

type CheckoutSessionRequest struct {
	OrderID     uuid.UUID `json:"order_id" binding:"required"`
	PaymentMode string    `json:"payment_mode"`
}

// CreateCheckoutSession asks the provider for a hosted checkout page for a
// pending order and records the session id on its payment row. Calling it
// again for the same order replaces the session; the provider invalidates the
// older one.
func (h *PaymentHandler) CreateCheckoutSession(c *gin.Context) {
	var req CheckoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	order, err := h.Orders.GetOrder(c.Request.Context(), req.OrderID, false)
	if err != nil {
		if errors.Is(err, services.ErrInvalidReference) {
			helpers.RespondWithError(c, http.StatusNotFound, "Order not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving order.")
		return
	}
	if order.Status != models.OrderStatusPending {
		helpers.RespondWithError(c, http.StatusConflict, "Order is no longer payable.")
		return
	}

	session, err := h.Gateway.CreateCheckoutSession(c.Request.Context(), order, req.PaymentMode)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadGateway, "Failed to create checkout session.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	updates := map[string]interface{}{"session_id": session.SessionID}
	if req.PaymentMode != "" {
		updates["payment_mode"] = req.PaymentMode
	}
	err = gormDB.Model(&models.Payment{}).
		Where("order_id = ? AND status = ?", order.ID, models.PaymentStatusPending).
		Updates(updates).Error
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to record checkout session.")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":     "Checkout session created.",
		"session_id":  session.SessionID,
		"payment_url": session.PaymentURL,
	})
}

type RefundRequest struct {
	Amount float64 `json:"amount" binding:"required"`
	Reason string  `json:"reason"`
}

// Refund is the operator-initiated refund for a paid payment.
func (h *PaymentHandler) Refund(c *gin.Context) {
	paymentID, err := helpers.ParseUUIDParam(c, "id")
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid payment id.")
		return
	}

	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}
	if req.Amount <= 0 {
		helpers.RespondWithError(c, http.StatusBadRequest, "Refund amount must be positive.")
		return
	}

	refund, err := h.Payments.RefundPayment(c.Request.Context(), paymentID, req.Amount, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidReference):
			helpers.RespondWithError(c, http.StatusNotFound, "Payment not found.")
		case errors.Is(err, services.ErrPaymentNotCompleted):
			helpers.RespondWithError(c, http.StatusConflict, "Payment is not in a refundable state.")
		default:
			helpers.RespondWithError(c, http.StatusBadGateway, "Failed to process refund.")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Refund processed successfully.",
		"refund":  refund,
	})
}
