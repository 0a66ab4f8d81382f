package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/dimasprsty/tiketin/internal/models"
)

// Reaper cancels pending orders whose hold window elapsed with no payment
// outcome. It only ever applies the regular stale-cancel transition, so a
// webhook landing mid-sweep wins or loses the row lock cleanly.
type Reaper struct {
	db       *gorm.DB
	payments *PaymentService
	window   time.Duration
	interval time.Duration
	log      zerolog.Logger
}

func NewReaper(db *gorm.DB, payments *PaymentService, window, interval time.Duration, log zerolog.Logger) *Reaper {
	return &Reaper{
		db:       db,
		payments: payments,
		window:   window,
		interval: interval,
		log:      log.With().Str("component", "reaper").Logger(),
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.log.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// Sweep cancels every pending order older than the hold window and reports
// how many were cancelled. Orders finalized between the scan and the cancel
// are skipped, not errors.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-r.window)

	var stale []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.OrderStatusPending, cutoff).
		Find(&stale).Error
	if err != nil {
		return 0, fmt.Errorf("scan stale orders: %w", err)
	}

	cancelled := 0
	for _, order := range stale {
		err := r.payments.CancelStaleOrder(ctx, order.ID)
		if errors.Is(err, ErrAlreadyFinalized) {
			continue
		}
		if err != nil {
			r.log.Error().Err(err).Str("order_id", order.ID.String()).
				Msg("failed to cancel stale order")
			continue
		}
		cancelled++
	}

	if cancelled > 0 {
		r.log.Info().Int("cancelled", cancelled).Msg("stale order sweep complete")
	}
	return cancelled, nil
}
