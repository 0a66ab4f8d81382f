package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Payment records one attempted charge against an order. An order may collect
// several attempts over time but at most one of them is non-terminal.
type Payment struct {
	ID                   uuid.UUID `gorm:"type:uuid;primary_key"`
	OrderID              uuid.UUID `gorm:"type:uuid;not null;index"`
	Order                *Order
	Gateway              string  `gorm:"size:30;not null"`
	PaymentMode          *string `gorm:"size:30"`
	Amount               float64 `gorm:"type:decimal(10,2);not null"`
	SessionID            string  `gorm:"size:100;index"`
	GatewayTransactionID string  `gorm:"size:100;index"`
	Status               PaymentStatus `gorm:"size:20;not null;default:'pending'"`
	ProcessedOn          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
	DeletedAt            gorm.DeletedAt `gorm:"index"`
}

func (payment *Payment) BeforeCreate(tx *gorm.DB) (err error) {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	return
}

type RefundStatus string

const (
	RefundStatusPending RefundStatus = "pending"
	RefundStatusSuccess RefundStatus = "success"
	RefundStatusFailed  RefundStatus = "failed"
)

// Refund is a compensating transfer against a paid payment, created either by
// an operator action or by a gateway-originated refund notification.
type Refund struct {
	ID                  uuid.UUID `gorm:"type:uuid;primary_key"`
	OrderID             uuid.UUID `gorm:"type:uuid;not null;index"`
	PaymentID           uuid.UUID `gorm:"type:uuid;not null;index"`
	Amount              float64   `gorm:"type:decimal(10,2);not null"`
	Gateway             string    `gorm:"size:30;not null"`
	RefundTransactionID string    `gorm:"size:100"`
	Status              RefundStatus `gorm:"size:20;not null;default:'pending'"`
	Reason              string
	ProcessedOn         *time.Time
	CreatedAt           time.Time
	DeletedAt           gorm.DeletedAt `gorm:"index"`
}

func (refund *Refund) BeforeCreate(tx *gorm.DB) (err error) {
	if refund.ID == uuid.Nil {
		refund.ID = uuid.New()
	}
	return
}
