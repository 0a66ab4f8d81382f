package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Ticket is a sellable ticket class within an event, not an individual seat.
// Quantity is the total sellable amount; SoldCount is only mutated by the
// payment outcome transitions and the stale-hold reaper.
type Ticket struct {
	ID               uuid.UUID `gorm:"type:uuid;primary_key"`
	Name             string    `gorm:"not null"`
	Quantity         int       `gorm:"not null"`
	SoldCount        int       `gorm:"not null;default:0"`
	Price            float64   `gorm:"type:decimal(10,2);not null"`
	MinBuy           int       `gorm:"not null;default:1"`
	MaxBuy           int       `gorm:"not null;default:20"`
	EarlyBirdEnabled bool      `gorm:"not null;default:false"`
	EarlyBirdPrice   *float64  `gorm:"type:decimal(10,2)"`
	EarlyBirdStart   *time.Time
	EarlyBirdEnd     *time.Time
	EventID          uuid.UUID `gorm:"type:uuid;not null;index"`
	Event            *Event
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        gorm.DeletedAt `gorm:"index"`
}

func (ticket *Ticket) BeforeCreate(tx *gorm.DB) (err error) {
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}
	return
}

// EffectivePrice resolves the unit price at the given instant. The early-bird
// window is half-open: [start, end).
func (ticket *Ticket) EffectivePrice(now time.Time) float64 {
	if ticket.EarlyBirdEnabled &&
		ticket.EarlyBirdPrice != nil &&
		ticket.EarlyBirdStart != nil &&
		ticket.EarlyBirdEnd != nil &&
		!now.Before(*ticket.EarlyBirdStart) &&
		now.Before(*ticket.EarlyBirdEnd) {
		return *ticket.EarlyBirdPrice
	}
	return ticket.Price
}

// Remaining derives availability from the durable columns alone. The fast
// store's counter additionally subtracts active holds.
func (ticket *Ticket) Remaining() int {
	return ticket.Quantity - ticket.SoldCount
}
