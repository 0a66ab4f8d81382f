package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEffectivePriceWindow(t *testing.T) {
	ebPrice := 50.0
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	ticket := Ticket{
		Price:            80,
		EarlyBirdEnabled: true,
		EarlyBirdPrice:   &ebPrice,
		EarlyBirdStart:   &start,
		EarlyBirdEnd:     &end,
	}

	assert.Equal(t, 80.0, ticket.EffectivePrice(start.Add(-time.Second)))
	// Window start is inclusive, end is exclusive.
	assert.Equal(t, 50.0, ticket.EffectivePrice(start))
	assert.Equal(t, 50.0, ticket.EffectivePrice(end.Add(-time.Second)))
	assert.Equal(t, 80.0, ticket.EffectivePrice(end))
}

func TestEffectivePriceDisabledOrIncomplete(t *testing.T) {
	ebPrice := 50.0
	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)

	disabled := Ticket{Price: 80, EarlyBirdPrice: &ebPrice, EarlyBirdStart: &start, EarlyBirdEnd: &end}
	assert.Equal(t, 80.0, disabled.EffectivePrice(time.Now()))

	missingEnd := Ticket{Price: 80, EarlyBirdEnabled: true, EarlyBirdPrice: &ebPrice, EarlyBirdStart: &start}
	assert.Equal(t, 80.0, missingEnd.EffectivePrice(time.Now()))
}

func TestPromoDiscountFor(t *testing.T) {
	fixed := PromoCode{DiscountType: DiscountFixed, DiscountValue: 15}
	assert.Equal(t, 15.0, fixed.DiscountFor(200))

	percent := PromoCode{DiscountType: DiscountPercentage, DiscountValue: 25}
	assert.Equal(t, 50.0, percent.DiscountFor(200))
}

func TestTicketRemaining(t *testing.T) {
	ticket := Ticket{Quantity: 100, SoldCount: 37}
	assert.Equal(t, 63, ticket.Remaining())
}
