package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dimasprsty/tiketin/internal/gateway"
	"github.com/dimasprsty/tiketin/internal/inventory"
	"github.com/dimasprsty/tiketin/internal/models"
	"github.com/dimasprsty/tiketin/internal/ticketqueue"
)

// PaymentService is the payment outcome state machine. Per order the legal
// transitions are pending -> {paid, cancelled} and paid -> refunded; handlers
// are serialized per order through the ledger's row locks, so concurrent
// webhooks and the stale-hold reaper can never both apply a transition. A
// handler that finds the order already terminal returns ErrAlreadyFinalized
// and applies no side effects.
type PaymentService struct {
	db    *gorm.DB
	inv   *inventory.Manager
	queue *ticketqueue.Queue
	gw    *gateway.Client
	log   zerolog.Logger
}

func NewPaymentService(db *gorm.DB, inv *inventory.Manager, queue *ticketqueue.Queue, gw *gateway.Client, log zerolog.Logger) *PaymentService {
	return &PaymentService{
		db:    db,
		inv:   inv,
		queue: queue,
		gw:    gw,
		log:   log.With().Str("component", "payments").Logger(),
	}
}

// withRowLock adds SELECT ... FOR UPDATE where the dialect supports it.
// SQLite has a single writer and no FOR UPDATE syntax; Postgres needs the row
// lock to serialize outcome transitions on the same order.
func withRowLock(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// HandleCheckoutCompleted applies the payment-success transition for the
// given gateway session: payment and order become paid, each line item's
// quantity is added to the durable sold count, items are confirmed, and the
// promo usage counter is incremented exactly once. Idempotent under
// at-least-once webhook delivery: a replay finds the payment already paid and
// returns ErrAlreadyFinalized without reapplying anything.
func (s *PaymentService) HandleCheckoutCompleted(ctx context.Context, sessionID, transactionID string) error {
	var order models.Order
	var confirmed []models.OrderItem

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.lockPaymentBySession(tx, sessionID)
		if err != nil {
			return err
		}
		if payment.Status != models.PaymentStatusPending {
			return ErrAlreadyFinalized
		}
		if err := withRowLock(tx).First(&order, "id = ?", payment.OrderID).Error; err != nil {
			return fmt.Errorf("load order %s: %w", payment.OrderID, err)
		}
		if order.Status != models.OrderStatusPending {
			return ErrAlreadyFinalized
		}

		now := time.Now().UTC()
		payment.Status = models.PaymentStatusPaid
		payment.GatewayTransactionID = transactionID
		payment.ProcessedOn = &now
		if err := tx.Save(payment).Error; err != nil {
			return fmt.Errorf("mark payment paid: %w", err)
		}
		order.Status = models.OrderStatusPaid
		if err := tx.Save(&order).Error; err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}

		items, err := s.transitionItems(tx, order.ID, models.ItemStatusConfirmed)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := tx.Model(&models.Ticket{}).Where("id = ?", item.TicketID).
				UpdateColumn("sold_count", gorm.Expr("sold_count + ?", item.Quantity)).Error; err != nil {
				return fmt.Errorf("increment sold count for ticket %s: %w", item.TicketID, err)
			}
		}

		if order.PromoCode != nil && *order.PromoCode != "" {
			if err := tx.Model(&models.PromoCode{}).Where("code = ?", *order.PromoCode).
				UpdateColumn("used_count", gorm.Expr("used_count + 1")).Error; err != nil {
				return fmt.Errorf("increment promo usage: %w", err)
			}
		}

		confirmed = items
		return nil
	})
	if err != nil {
		return err
	}

	// Fast-store and queue side effects run after the commit. Once the ledger
	// transition is durable the webhook must be acknowledged; failures here
	// are logged, never escalated, so inventory correctness is not traded for
	// downstream convenience.
	for _, item := range confirmed {
		if err := s.inv.Finalize(ctx, item.TicketID, order.ID); err != nil {
			s.log.Error().Err(err).Str("order_id", order.ID.String()).
				Str("ticket_id", item.TicketID.String()).Msg("failed to drop hold after payment")
		}
		job := ticketqueue.Job{
			OrderID:        order.ID,
			TicketID:       item.TicketID,
			Quantity:       item.Quantity,
			PurchaserEmail: order.PurchaseEmail,
		}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			s.log.Error().Err(err).Str("order_id", order.ID.String()).
				Str("ticket_id", item.TicketID.String()).Msg("failed to enqueue ticket job")
		}
	}

	s.log.Info().Str("order_id", order.ID.String()).Str("session_id", sessionID).
		Msg("payment completed, order confirmed")
	return nil
}

// HandlePaymentFailed applies the failure transition: payment failed, order
// cancelled, items cancelled, and every reserved quantity credited back to
// the availability counter (reserve removed it and no durable sold-increment
// ever happened).
func (s *PaymentService) HandlePaymentFailed(ctx context.Context, sessionID string) error {
	var order models.Order
	var cancelled []models.OrderItem

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.lockPaymentBySession(tx, sessionID)
		if err != nil {
			return err
		}
		if payment.Status != models.PaymentStatusPending {
			return ErrAlreadyFinalized
		}
		if err := withRowLock(tx).First(&order, "id = ?", payment.OrderID).Error; err != nil {
			return fmt.Errorf("load order %s: %w", payment.OrderID, err)
		}
		if order.Status != models.OrderStatusPending {
			return ErrAlreadyFinalized
		}

		payment.Status = models.PaymentStatusFailed
		if err := tx.Save(payment).Error; err != nil {
			return fmt.Errorf("mark payment failed: %w", err)
		}
		order.Status = models.OrderStatusCancelled
		if err := tx.Save(&order).Error; err != nil {
			return fmt.Errorf("mark order cancelled: %w", err)
		}

		cancelled, err = s.transitionItems(tx, order.ID, models.ItemStatusCancelled)
		return err
	})
	if err != nil {
		return err
	}

	s.restoreHolds(ctx, order.ID, cancelled)
	s.log.Info().Str("order_id", order.ID.String()).Str("session_id", sessionID).
		Msg("payment failed, order cancelled and holds released")
	return nil
}

// CancelStaleOrder runs the failure transition for a pending order whose hold
// window elapsed with no webhook. Used by the stale-hold reaper; a webhook
// racing the reaper loses cleanly because whichever transition commits first
// flips the order out of pending.
func (s *PaymentService) CancelStaleOrder(ctx context.Context, orderID uuid.UUID) error {
	var order models.Order
	var cancelled []models.OrderItem

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := withRowLock(tx).First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("order %s: %w", orderID, ErrInvalidReference)
			}
			return fmt.Errorf("load order %s: %w", orderID, err)
		}
		if order.Status != models.OrderStatusPending {
			return ErrAlreadyFinalized
		}

		order.Status = models.OrderStatusCancelled
		if err := tx.Save(&order).Error; err != nil {
			return fmt.Errorf("mark order cancelled: %w", err)
		}
		if err := tx.Model(&models.Payment{}).
			Where("order_id = ? AND status = ?", order.ID, models.PaymentStatusPending).
			Update("status", models.PaymentStatusCancelled).Error; err != nil {
			return fmt.Errorf("cancel pending payment: %w", err)
		}

		var err error
		cancelled, err = s.transitionItems(tx, order.ID, models.ItemStatusCancelled)
		return err
	})
	if err != nil {
		return err
	}

	s.restoreHolds(ctx, order.ID, cancelled)
	s.log.Warn().Str("order_id", order.ID.String()).Msg("stale pending order cancelled")
	return nil
}

// HandleRefundNotification applies a gateway-originated refund: payment and
// order become refunded, items become refunded, and each line's quantity is
// subtracted from the durable sold count. The fast counter is not credited;
// it is re-derivable from the durable row.
func (s *PaymentService) HandleRefundNotification(ctx context.Context, transactionID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment models.Payment
		err := withRowLock(tx).Where("gateway_transaction_id = ?", transactionID).First(&payment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("payment for transaction %s: %w", transactionID, ErrInvalidReference)
		}
		if err != nil {
			return fmt.Errorf("load payment for transaction %s: %w", transactionID, err)
		}
		if payment.Status == models.PaymentStatusRefunded {
			return ErrAlreadyFinalized
		}
		if payment.Status != models.PaymentStatusPaid {
			return fmt.Errorf("refund transaction %s: %w", transactionID, ErrPaymentNotCompleted)
		}
		return s.applyRefund(tx, &payment)
	})
}

// RefundPayment is the operator-initiated manual refund. It creates a Refund
// record, moves the money through the gateway, and applies the refund
// transition. The whole operation fails with no state changes if the payment
// is not in the paid state.
func (s *PaymentService) RefundPayment(ctx context.Context, paymentID uuid.UUID, amount float64, reason string) (*models.Refund, error) {
	var refund *models.Refund
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment models.Payment
		err := withRowLock(tx).First(&payment, "id = ?", paymentID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("payment %s: %w", paymentID, ErrInvalidReference)
		}
		if err != nil {
			return fmt.Errorf("load payment %s: %w", paymentID, err)
		}
		if payment.Status != models.PaymentStatusPaid {
			return fmt.Errorf("payment %s: %w", paymentID, ErrPaymentNotCompleted)
		}

		r := &models.Refund{
			OrderID:   payment.OrderID,
			PaymentID: payment.ID,
			Amount:    amount,
			Gateway:   payment.Gateway,
			Status:    models.RefundStatusPending,
			Reason:    reason,
		}
		if err := tx.Create(r).Error; err != nil {
			return fmt.Errorf("create refund record: %w", err)
		}

		refundTxnID, err := s.gw.CreateRefund(ctx, payment.GatewayTransactionID, amount, reason)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		r.RefundTransactionID = refundTxnID
		r.Status = models.RefundStatusSuccess
		r.ProcessedOn = &now
		if err := tx.Save(r).Error; err != nil {
			return fmt.Errorf("finalize refund record: %w", err)
		}

		if err := s.applyRefund(tx, &payment); err != nil {
			return err
		}
		refund = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("payment_id", paymentID.String()).Float64("amount", amount).
		Msg("manual refund processed")
	return refund, nil
}

// applyRefund flips payment, order and items to refunded and reverses the
// earlier sold-count increments. Runs inside the caller's transaction.
func (s *PaymentService) applyRefund(tx *gorm.DB, payment *models.Payment) error {
	payment.Status = models.PaymentStatusRefunded
	if err := tx.Save(payment).Error; err != nil {
		return fmt.Errorf("mark payment refunded: %w", err)
	}

	var order models.Order
	if err := withRowLock(tx).First(&order, "id = ?", payment.OrderID).Error; err != nil {
		return fmt.Errorf("load order %s: %w", payment.OrderID, err)
	}
	order.Status = models.OrderStatusRefunded
	if err := tx.Save(&order).Error; err != nil {
		return fmt.Errorf("mark order refunded: %w", err)
	}

	items, err := s.transitionItems(tx, order.ID, models.ItemStatusRefunded)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := tx.Model(&models.Ticket{}).Where("id = ?", item.TicketID).
			UpdateColumn("sold_count", gorm.Expr("sold_count - ?", item.Quantity)).Error; err != nil {
			return fmt.Errorf("decrement sold count for ticket %s: %w", item.TicketID, err)
		}
	}
	return nil
}

func (s *PaymentService) lockPaymentBySession(tx *gorm.DB, sessionID string) (*models.Payment, error) {
	var payment models.Payment
	err := withRowLock(tx).Where("session_id = ?", sessionID).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("payment session %s: %w", sessionID, ErrInvalidReference)
	}
	if err != nil {
		return nil, fmt.Errorf("load payment for session %s: %w", sessionID, err)
	}
	return &payment, nil
}

func (s *PaymentService) transitionItems(tx *gorm.DB, orderID uuid.UUID, status models.ItemStatus) ([]models.OrderItem, error) {
	var items []models.OrderItem
	if err := tx.Where("order_id = ?", orderID).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("load items for order %s: %w", orderID, err)
	}
	if err := tx.Model(&models.OrderItem{}).Where("order_id = ?", orderID).
		Update("status", status).Error; err != nil {
		return nil, fmt.Errorf("transition items for order %s: %w", orderID, err)
	}
	for i := range items {
		items[i].Status = status
	}
	return items, nil
}

func (s *PaymentService) restoreHolds(ctx context.Context, orderID uuid.UUID, items []models.OrderItem) {
	// Unconditional restore: the hold's TTL may have fired long before the
	// reaper got here, and this transition runs at most once per order.
	for _, item := range items {
		if err := s.inv.Restore(ctx, item.TicketID, orderID, item.Quantity); err != nil {
			s.log.Error().Err(err).Str("order_id", orderID.String()).
				Str("ticket_id", item.TicketID.String()).Msg("failed to restore availability")
		}
	}
}
