package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusRefunded  OrderStatus = "refunded"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type ItemStatus string

const (
	ItemStatusActive    ItemStatus = "active"
	ItemStatusConfirmed ItemStatus = "confirmed"
	ItemStatusUsed      ItemStatus = "used"
	ItemStatusCancelled ItemStatus = "cancelled"
	ItemStatusRefunded  ItemStatus = "refunded"
)

// Order is the durable aggregate for one checkout attempt. At most one order
// per purchaser email may be pending at a time; a second checkout while one is
// pending returns the existing order instead of creating a duplicate.
type Order struct {
	ID               uuid.UUID `gorm:"type:uuid;primary_key"`
	EventID          *uuid.UUID `gorm:"type:uuid;index"`
	Event            *Event
	PurchaserName    string `gorm:"size:100;not null"`
	PurchaseEmail    string `gorm:"not null;index"`
	PurchaseMobile   string `gorm:"size:30"`
	BillingAddress   *string
	PromoCode        *string `gorm:"size:50"`
	Currency         string  `gorm:"size:10;not null"`
	TotalAmount      float64 `gorm:"type:decimal(12,2);not null;default:0"`
	DiscountedAmount float64 `gorm:"type:decimal(12,2);not null;default:0"`
	Status           OrderStatus `gorm:"size:20;not null;default:'pending';index"`
	Items            []OrderItem
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        gorm.DeletedAt `gorm:"index"`
}

func (order *Order) BeforeCreate(tx *gorm.DB) (err error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	return
}

// OrderItem is one line item per ticket class. Price is frozen at purchase
// time and never re-derived; status transitions are owned by the payment
// outcome state machine.
type OrderItem struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key"`
	OrderID     uuid.UUID `gorm:"type:uuid;not null;index"`
	TicketID    uuid.UUID `gorm:"type:uuid;not null;index"`
	TicketName  string    `gorm:"not null"`
	Quantity    int       `gorm:"not null"`
	Price       float64   `gorm:"type:decimal(10,2);not null"`
	TotalAmount float64   `gorm:"type:decimal(10,2);not null;default:0"`
	Status      ItemStatus `gorm:"size:20;not null;default:'active'"`
	Addons      []OrderItemAddon
	Taxes       []OrderItemTax
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (item *OrderItem) BeforeCreate(tx *gorm.DB) (err error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	return
}

type OrderItemAddon struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key"`
	OrderItemID uuid.UUID `gorm:"type:uuid;not null;index"`
	AddonRefID  string    `gorm:"not null"`
	AddonName   string    `gorm:"not null"`
	Price       float64   `gorm:"type:decimal(10,2);not null"`
	Quantity    int       `gorm:"not null"`
	TotalAmount float64   `gorm:"type:decimal(10,2);not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (addon *OrderItemAddon) BeforeCreate(tx *gorm.DB) (err error) {
	if addon.ID == uuid.Nil {
		addon.ID = uuid.New()
	}
	return
}

// OrderItemTax carries a pre-computed tax line; the amount is supplied by the
// caller and consumed as-is, never recomputed here.
type OrderItemTax struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key"`
	OrderItemID uuid.UUID `gorm:"type:uuid;not null;index"`
	TaxRefID    string    `gorm:"not null"`
	TaxName     string    `gorm:"not null"`
	TaxRate     float64   `gorm:"type:decimal(5,2);not null"`
	TaxAmount   float64   `gorm:"type:decimal(10,2);not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (tax *OrderItemTax) BeforeCreate(tx *gorm.DB) (err error) {
	if tax.ID == uuid.Nil {
		tax.ID = uuid.New()
	}
	return
}
