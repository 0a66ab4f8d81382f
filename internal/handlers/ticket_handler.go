package handlers

import (
	"net/http"
	"time"

	"github.com/dimasprsty/tiketin/internal/helpers"
	"github.com/dimasprsty/tiketin/internal/inventory"
	"github.com/dimasprsty/tiketin/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TicketHandler owns the ticket class endpoints. It carries the reservation
// manager because every quantity change must be mirrored into the fast
// availability counter.
type TicketHandler struct {
	Inventory *inventory.Manager
}

func NewTicketHandler(inv *inventory.Manager) *TicketHandler {
	return &TicketHandler{Inventory: inv}
}

type TicketRequest struct {
	Name             string     `json:"name" binding:"required"`
	Quantity         int        `json:"quantity" binding:"required"`
	Price            float64    `json:"price" binding:"required"`
	MinBuy           int        `json:"min_buy"`
	MaxBuy           int        `json:"max_buy"`
	EarlyBirdEnabled bool       `json:"early_bird_enabled"`
	EarlyBirdPrice   *float64   `json:"early_bird_price"`
	EarlyBirdStart   *time.Time `json:"early_bird_start"`
	EarlyBirdEnd     *time.Time `json:"early_bird_end"`
	EventID          uuid.UUID  `json:"event_id" binding:"required"`
}

func (h *TicketHandler) Create(c *gin.Context) {
	var req TicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}
	if req.Quantity < 1 {
		helpers.RespondWithError(c, http.StatusBadRequest, "Quantity must be positive.")
		return
	}
	if req.EarlyBirdEnabled && (req.EarlyBirdPrice == nil || req.EarlyBirdStart == nil || req.EarlyBirdEnd == nil) {
		helpers.RespondWithError(c, http.StatusBadRequest, "Early bird pricing requires price, start and end.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var event models.Event
	if err := gormDB.Where("id = ?", req.EventID).First(&event).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error verifying event.")
		return
	}

	ticket := models.Ticket{
		Name:             req.Name,
		Quantity:         req.Quantity,
		Price:            req.Price,
		MinBuy:           req.MinBuy,
		MaxBuy:           req.MaxBuy,
		EarlyBirdEnabled: req.EarlyBirdEnabled,
		EarlyBirdPrice:   req.EarlyBirdPrice,
		EarlyBirdStart:   req.EarlyBirdStart,
		EarlyBirdEnd:     req.EarlyBirdEnd,
		EventID:          req.EventID,
	}
	if ticket.MinBuy == 0 {
		ticket.MinBuy = 1
	}
	if ticket.MaxBuy == 0 {
		ticket.MaxBuy = 20
	}

	if err := gormDB.Create(&ticket).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create ticket.")
		return
	}

	if err := h.Inventory.InitCounter(c.Request.Context(), ticket.ID, ticket.Quantity); err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to seed availability counter.")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   "Ticket created successfully.",
		"ticket_id": ticket.ID,
	})
}

func (h *TicketHandler) Get(c *gin.Context) {
	ticketID, err := helpers.ParseUUIDParam(c, "id")
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid ticket id.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var ticket models.Ticket
	if err := gormDB.Where("id = ?", ticketID).First(&ticket).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusNotFound, "Ticket not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving ticket.")
		return
	}

	c.JSON(http.StatusOK, ticket)
}

func (h *TicketHandler) Update(c *gin.Context) {
	ticketID, err := helpers.ParseUUIDParam(c, "id")
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid ticket id.")
		return
	}

	var req TicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var ticket models.Ticket
	if err := gormDB.Where("id = ?", ticketID).First(&ticket).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusNotFound, "Ticket not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving ticket.")
		return
	}

	if req.Quantity < ticket.SoldCount {
		helpers.RespondWithError(c, http.StatusBadRequest, "Quantity cannot drop below tickets already sold.")
		return
	}

	ticket.Name = req.Name
	ticket.Quantity = req.Quantity
	ticket.Price = req.Price
	if req.MinBuy > 0 {
		ticket.MinBuy = req.MinBuy
	}
	if req.MaxBuy > 0 {
		ticket.MaxBuy = req.MaxBuy
	}
	ticket.EarlyBirdEnabled = req.EarlyBirdEnabled
	ticket.EarlyBirdPrice = req.EarlyBirdPrice
	ticket.EarlyBirdStart = req.EarlyBirdStart
	ticket.EarlyBirdEnd = req.EarlyBirdEnd

	if err := gormDB.Save(&ticket).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to update ticket.")
		return
	}

	// The fast counter holds quantity minus sold; quantity edits re-derive it.
	// Active holds on this class are not subtracted back, which briefly
	// overstates availability until they expire or resolve.
	if err := h.Inventory.SyncCounter(c.Request.Context(), ticket.ID, ticket.Quantity, ticket.SoldCount); err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to sync availability counter.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Ticket updated successfully.",
		"ticket":  ticket,
	})
}

// Availability reports the live counter alongside the durable remaining
// figure. The live counter is the one reservations race against.
func (h *TicketHandler) Availability(c *gin.Context) {
	ticketID, err := helpers.ParseUUIDParam(c, "id")
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid ticket id.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var ticket models.Ticket
	if err := gormDB.Where("id = ?", ticketID).First(&ticket).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusNotFound, "Ticket not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving ticket.")
		return
	}

	available, err := h.Inventory.Remaining(c.Request.Context(), ticket.ID)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error reading availability.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ticket_id":  ticket.ID,
		"available":  available,
		"quantity":   ticket.Quantity,
		"sold_count": ticket.SoldCount,
	})
}
