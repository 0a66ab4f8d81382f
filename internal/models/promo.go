package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DiscountType string

const (
	DiscountFixed      DiscountType = "fixed"
	DiscountPercentage DiscountType = "percentage"
)

// PromoCode is consulted at order-build time; its usage counter is incremented
// exactly once per paid order, never at order creation, so abandoned carts do
// not count against the limit.
type PromoCode struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	Code          string    `gorm:"size:50;not null;unique"`
	DiscountType  DiscountType `gorm:"size:20;not null;default:'fixed'"`
	DiscountValue float64   `gorm:"type:decimal(10,2);not null"`
	ValidFrom     *time.Time
	ValidTo       *time.Time
	IsActive      bool `gorm:"not null;default:true"`
	UsageLimit    *int
	UsedCount     int        `gorm:"not null;default:0"`
	EventID       *uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`
}

func (promo *PromoCode) BeforeCreate(tx *gorm.DB) (err error) {
	if promo.ID == uuid.Nil {
		promo.ID = uuid.New()
	}
	return
}

// DiscountFor computes the discount amount against a running order total.
func (promo *PromoCode) DiscountFor(total float64) float64 {
	if promo.DiscountType == DiscountPercentage {
		return total * promo.DiscountValue / 100
	}
	return promo.DiscountValue
}
