// Package inventory owns the fast availability state for ticket classes: one
// "remaining" counter per class and one time-boxed hold per (order, class)
// pair. All mutation of these keys goes through the Manager's atomic
// primitives; no other component may read-modify-write a counter.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrInsufficientStock is returned by Reserve when the requested quantity
// exceeds what is currently available. Business-expected, not retryable.
var ErrInsufficientStock = errors.New("not enough tickets available")

// Fast-store key layout.
const (
	remainingKeyFmt = "remaining:%s"
	holdKeyFmt      = "hold:%s:%s"
)

func remainingKey(ticketID uuid.UUID) string {
	return fmt.Sprintf(remainingKeyFmt, ticketID)
}

func holdKey(orderID, ticketID uuid.UUID) string {
	return fmt.Sprintf(holdKeyFmt, orderID, ticketID)
}

type Manager struct {
	rdb     *redis.Client
	holdTTL time.Duration
	log     zerolog.Logger
}

func NewManager(rdb *redis.Client, holdTTL time.Duration, log zerolog.Logger) *Manager {
	return &Manager{
		rdb:     rdb,
		holdTTL: holdTTL,
		log:     log.With().Str("component", "inventory").Logger(),
	}
}

// HoldTTL reports the hold window applied to reservations.
func (m *Manager) HoldTTL() time.Duration {
	return m.holdTTL
}

// InitCounter seeds the remaining counter for a ticket class. Called when the
// class is created; the counter is a cache and can be re-seeded at any time
// via SyncCounter.
func (m *Manager) InitCounter(ctx context.Context, ticketID uuid.UUID, remaining int) error {
	if err := m.rdb.Set(ctx, remainingKey(ticketID), remaining, 0).Err(); err != nil {
		return fmt.Errorf("init counter for ticket %s: %w", ticketID, err)
	}
	return nil
}

// SyncCounter re-derives the remaining counter from the durable quantity and
// sold count. Active holds are intentionally not subtracted: they expire on
// their own and re-deriving is a reconciliation step, not a hot-path read.
func (m *Manager) SyncCounter(ctx context.Context, ticketID uuid.UUID, quantity, soldCount int) error {
	return m.InitCounter(ctx, ticketID, quantity-soldCount)
}

// Remaining reads the live availability for a ticket class. A missing counter
// reads as zero.
func (m *Manager) Remaining(ctx context.Context, ticketID uuid.UUID) (int64, error) {
	val, err := m.rdb.Get(ctx, remainingKey(ticketID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter for ticket %s: %w", ticketID, err)
	}
	return val, nil
}

// Reserve atomically moves quantity out of the remaining counter into a hold
// keyed by (order, ticket class). The decrement-and-check is a single store
// primitive, so concurrent callers are totally ordered: at most the counter's
// worth of reservations can ever succeed. If the post-decrement value is
// negative the counter is restored and ErrInsufficientStock is returned; the
// caller must not partially apply other line items of the same order.
func (m *Manager) Reserve(ctx context.Context, ticketID, orderID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("reserve ticket %s: quantity must be positive, got %d", ticketID, quantity)
	}

	rkey := remainingKey(ticketID)
	left, err := m.rdb.DecrBy(ctx, rkey, int64(quantity)).Result()
	if err != nil {
		return fmt.Errorf("decrement %s: %w", rkey, err)
	}
	if left < 0 {
		if err := m.rdb.IncrBy(ctx, rkey, int64(quantity)).Err(); err != nil {
			m.log.Error().Err(err).Str("ticket_id", ticketID.String()).
				Msg("failed to restore counter after rejected reserve")
			return fmt.Errorf("restore %s after rejected reserve: %w", rkey, err)
		}
		return ErrInsufficientStock
	}

	if err := m.rdb.Set(ctx, holdKey(orderID, ticketID), quantity, m.holdTTL).Err(); err != nil {
		// The decrement must not leak if the hold write fails. If even the
		// restore fails the capacity stays leaked until SyncCounter reconciles
		// it against the durable sold count.
		if rerr := m.rdb.IncrBy(ctx, rkey, int64(quantity)).Err(); rerr != nil {
			m.log.Error().Err(rerr).Str("ticket_id", ticketID.String()).Int("quantity", quantity).
				Msg("leaked capacity: hold write and counter restore both failed")
		}
		return fmt.Errorf("write hold for order %s ticket %s: %w", orderID, ticketID, err)
	}
	return nil
}

// Release drops the hold for (order, ticket class) and credits its recorded
// quantity back to the remaining counter. Idempotent: releasing a hold that
// was already released, expired, or finalized into a durable sold-increment
// is a no-op and never double-restores availability.
func (m *Manager) Release(ctx context.Context, ticketID, orderID uuid.UUID) error {
	val, err := m.rdb.GetDel(ctx, holdKey(orderID, ticketID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("take hold for order %s ticket %s: %w", orderID, ticketID, err)
	}
	quantity, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fmt.Errorf("corrupt hold for order %s ticket %s: %w", orderID, ticketID, err)
	}
	if err := m.rdb.IncrBy(ctx, remainingKey(ticketID), quantity).Err(); err != nil {
		return fmt.Errorf("credit counter for ticket %s: %w", ticketID, err)
	}
	return nil
}

// Restore unconditionally credits quantity back to the counter and drops any
// hold, regardless of whether the hold still exists. Only the terminal
// payment transitions (failure, stale-order cancellation) may call this: their
// exactly-once execution is guaranteed by the ledger's row locking, and the
// hold may have long since expired by the time the reaper runs.
func (m *Manager) Restore(ctx context.Context, ticketID, orderID uuid.UUID, quantity int) error {
	if err := m.rdb.IncrBy(ctx, remainingKey(ticketID), int64(quantity)).Err(); err != nil {
		return fmt.Errorf("credit counter for ticket %s: %w", ticketID, err)
	}
	if err := m.rdb.Del(ctx, holdKey(orderID, ticketID)).Err(); err != nil {
		return fmt.Errorf("drop hold for order %s ticket %s: %w", orderID, ticketID, err)
	}
	return nil
}

// Finalize drops the hold without crediting the counter: the reserved capacity
// has been superseded by a durable sold-count increment.
func (m *Manager) Finalize(ctx context.Context, ticketID, orderID uuid.UUID) error {
	if err := m.rdb.Del(ctx, holdKey(orderID, ticketID)).Err(); err != nil {
		return fmt.Errorf("drop hold for order %s ticket %s: %w", orderID, ticketID, err)
	}
	return nil
}

// HeldQuantity reports the quantity currently held for (order, ticket class),
// zero if no hold exists.
func (m *Manager) HeldQuantity(ctx context.Context, ticketID, orderID uuid.UUID) (int64, error) {
	val, err := m.rdb.Get(ctx, holdKey(orderID, ticketID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read hold for order %s ticket %s: %w", orderID, ticketID, err)
	}
	return val, nil
}
