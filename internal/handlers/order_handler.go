package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dimasprsty/tiketin/internal/helpers"
	"github.com/dimasprsty/tiketin/internal/inventory"
	"github.com/dimasprsty/tiketin/internal/services"
)

type OrderHandler struct {
	Orders *services.OrderService
}

func NewOrderHandler(orders *services.OrderService) *OrderHandler {
	return &OrderHandler{Orders: orders}
}

type OrderAddonRequest struct {
	AddonRefID string  `json:"addon_ref_id" binding:"required"`
	AddonName  string  `json:"addon_name" binding:"required"`
	Price      float64 `json:"price"`
	Quantity   int     `json:"quantity" binding:"required"`
}

type OrderTaxRequest struct {
	TaxRefID  string  `json:"tax_ref_id" binding:"required"`
	TaxName   string  `json:"tax_name" binding:"required"`
	TaxRate   float64 `json:"tax_rate"`
	TaxAmount float64 `json:"tax_amount"`
}

type OrderItemRequest struct {
	TicketID uuid.UUID           `json:"ticket_id" binding:"required"`
	Quantity int                 `json:"quantity" binding:"required"`
	Addons   []OrderAddonRequest `json:"addons"`
	Taxes    []OrderTaxRequest   `json:"taxes"`
}

type OrderRequest struct {
	EventID        *uuid.UUID         `json:"event_id"`
	PurchaserName  string             `json:"purchaser_name" binding:"required"`
	PurchaseEmail  string             `json:"purchase_email" binding:"required,email"`
	PurchaseMobile string             `json:"purchase_mobile"`
	BillingAddress *string            `json:"billing_address"`
	PromoCode      *string            `json:"promo_code"`
	Items          []OrderItemRequest `json:"items" binding:"required,min=1"`
}

// Create reserves stock and builds the order. If the purchaser already has a
// pending order it is returned as-is with a 200; a freshly built order gets a
// 201.
func (h *OrderHandler) Create(c *gin.Context) {
	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	in := services.CreateOrderInput{
		EventID:        req.EventID,
		PurchaserName:  req.PurchaserName,
		PurchaseEmail:  req.PurchaseEmail,
		PurchaseMobile: req.PurchaseMobile,
		BillingAddress: req.BillingAddress,
		PromoCode:      req.PromoCode,
	}
	for _, item := range req.Items {
		itemInput := services.ItemInput{
			TicketID: item.TicketID,
			Quantity: item.Quantity,
		}
		for _, addon := range item.Addons {
			itemInput.Addons = append(itemInput.Addons, services.AddonInput{
				AddonRefID: addon.AddonRefID,
				AddonName:  addon.AddonName,
				Price:      addon.Price,
				Quantity:   addon.Quantity,
			})
		}
		for _, tax := range item.Taxes {
			itemInput.Taxes = append(itemInput.Taxes, services.TaxInput{
				TaxRefID:  tax.TaxRefID,
				TaxName:   tax.TaxName,
				TaxRate:   tax.TaxRate,
				TaxAmount: tax.TaxAmount,
			})
		}
		in.Items = append(in.Items, itemInput)
	}

	order, created, err := h.Orders.CreateOrGetPendingOrder(c.Request.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, inventory.ErrInsufficientStock):
			helpers.RespondWithError(c, http.StatusConflict, "Not enough tickets available.")
		case errors.Is(err, services.ErrInvalidReference):
			helpers.RespondWithError(c, http.StatusNotFound, "Ticket not found.")
		case errors.Is(err, services.ErrQuantityOutOfRange):
			helpers.RespondWithError(c, http.StatusBadRequest, "Quantity outside the allowed purchase limits.")
		case errors.Is(err, services.ErrInvalidPromotion):
			helpers.RespondWithError(c, http.StatusBadRequest, "Promo code is not available.")
		default:
			helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create order.")
		}
		return
	}

	status := http.StatusOK
	message := "Pending order already exists."
	if created {
		status = http.StatusCreated
		message = "Order created successfully."
	}
	c.JSON(status, gin.H{
		"message": message,
		"order":   order,
	})
}

func (h *OrderHandler) Get(c *gin.Context) {
	orderID, err := helpers.ParseUUIDParam(c, "id")
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid order id.")
		return
	}

	order, err := h.Orders.GetOrder(c.Request.Context(), orderID, true)
	if err != nil {
		if errors.Is(err, services.ErrInvalidReference) {
			helpers.RespondWithError(c, http.StatusNotFound, "Order not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving order.")
		return
	}

	c.JSON(http.StatusOK, order)
}
