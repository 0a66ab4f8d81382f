package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dimasprsty/tiketin/internal/gateway"
	"github.com/dimasprsty/tiketin/internal/models"
)

func newPaymentService(e *testEnv, gw *gateway.Client) *PaymentService {
	if gw == nil {
		gw = gateway.NewClient(gateway.Config{BaseURL: "http://gateway.invalid"}, zerolog.Nop())
	}
	return NewPaymentService(e.db, e.inv, e.queue, gw, zerolog.Nop())
}

// buildPendingOrder creates an order with a checkout session attached, the
// state a webhook would normally find.
func buildPendingOrder(t *testing.T, e *testEnv, ticket *models.Ticket, quantity int, email string) (*models.Order, *models.Payment) {
	t.Helper()
	svc := newOrderService(e)

	in := basicOrderInput(ticket.ID, quantity)
	in.PurchaseEmail = email
	order, created, err := svc.CreateOrGetPendingOrder(context.Background(), in)
	require.NoError(t, err)
	require.True(t, created)

	var payment models.Payment
	require.NoError(t, e.db.Where("order_id = ?", order.ID).First(&payment).Error)
	payment.SessionID = "sess-" + order.ID.String()
	require.NoError(t, e.db.Save(&payment).Error)
	return order, &payment
}

func TestHandleCheckoutCompleted(t *testing.T) {
	e := newTestEnv(t)
	payments := newPaymentService(e, nil)
	ctx := context.Background()

	ticket := e.createTicket(t, e.createEvent(t), 100, 50000)
	order, payment := buildPendingOrder(t, e, ticket, 3, "buyer@example.com")

	require.NoError(t, payments.HandleCheckoutCompleted(ctx, payment.SessionID, "txn-1"))

	var gotOrder models.Order
	require.NoError(t, e.db.Preload("Items").First(&gotOrder, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderStatusPaid, gotOrder.Status)
	require.Len(t, gotOrder.Items, 1)
	assert.Equal(t, models.ItemStatusConfirmed, gotOrder.Items[0].Status)

	var gotPayment models.Payment
	require.NoError(t, e.db.First(&gotPayment, "id = ?", payment.ID).Error)
	assert.Equal(t, models.PaymentStatusPaid, gotPayment.Status)
	assert.Equal(t, "txn-1", gotPayment.GatewayTransactionID)
	require.NotNil(t, gotPayment.ProcessedOn)

	var gotTicket models.Ticket
	require.NoError(t, e.db.First(&gotTicket, "id = ?", ticket.ID).Error)
	assert.Equal(t, 3, gotTicket.SoldCount)

	// Hold consumed without crediting the counter back.
	held, err := e.inv.HeldQuantity(ctx, ticket.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), held)
	remaining, err := e.inv.Remaining(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(97), remaining)

	// One dispatch job per confirmed line item.
	job, err := e.queue.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, order.ID, job.OrderID)
	assert.Equal(t, ticket.ID, job.TicketID)
	assert.Equal(t, 3, job.Quantity)
	assert.Equal(t, "buyer@example.com", job.PurchaserEmail)
}

func TestHandleCheckoutCompletedReplay(t *testing.T) {
	e := newTestEnv(t)
	payments := newPaymentService(e, nil)
	ctx := context.Background()

	ticket := e.createTicket(t, e.createEvent(t), 100, 50000)
	_, payment := buildPendingOrder(t, e, ticket, 2, "buyer@example.com")

	require.NoError(t, payments.HandleCheckoutCompleted(ctx, payment.SessionID, "txn-1"))
	err := payments.HandleCheckoutCompleted(ctx, payment.SessionID, "txn-1")
	assert.ErrorIs(t, err, ErrAlreadyFinalized)

	// The replay applied nothing: sold count incremented once, one job only.
	var gotTicket models.Ticket
	require.NoError(t, e.db.First(&gotTicket, "id = ?", ticket.ID).Error)
	assert.Equal(t, 2, gotTicket.SoldCount)

	_, err = e.queue.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	second, err := e.queue.Dequeue(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestHandleCheckoutCompletedUnknownSession(t *testing.T) {
	e := newTestEnv(t)
	payments := newPaymentService(e, nil)

	err := payments.HandleCheckoutCompleted(context.Background(), "sess-nope", "txn-1")
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestHandleCheckoutCompletedIncrementsPromoOnce(t *testing.T) {
	e := newTestEnv(t)
	payments := newPaymentService(e, nil)
	ctx := context.Background()

	ticket := e.createTicket(t, e.createEvent(t), 100, 100000)
	promo := &models.PromoCode{Code: "FLAT10K", DiscountType: models.DiscountFixed, DiscountValue: 10000, IsActive: true}
	require.NoError(t, e.db.Create(promo).Error)

	svc := newOrderService(e)
	in := basicOrderInput(ticket.ID, 1)
	in.PromoCode = &promo.Code
	order, _, err := svc.CreateOrGetPendingOrder(ctx, in)
	require.NoError(t, err)

	var payment models.Payment
	require.NoError(t, e.db.Where("order_id = ?", order.ID).First(&payment).Error)
	payment.SessionID = "sess-promo"
	require.NoError(t, e.db.Save(&payment).Error)

	require.NoError(t, payments.HandleCheckoutCompleted(ctx, "sess-promo", "txn-1"))
	assert.ErrorIs(t, payments.HandleCheckoutCompleted(ctx, "sess-promo", "txn-1"), ErrAlreadyFinalized)

	var reloaded models.PromoCode
	require.NoError(t, e.db.First(&reloaded, "code = ?", promo.Code).Error)
	assert.Equal(t, 1, reloaded.UsedCount)
}

func TestHandlePaymentFailed(t *testing.T) {
	e := newTestEnv(t)
	payments := newPaymentService(e, nil)
	ctx := context.Background()

	ticket := e.createTicket(t, e.createEvent(t), 100, 50000)
	order, payment := buildPendingOrder(t, e, ticket, 4, "buyer@example.com")

	require.NoError(t, payments.HandlePaymentFailed(ctx, payment.SessionID))

	var gotOrder models.Order
	require.NoError(t, e.db.Preload("Items").First(&gotOrder, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderStatusCancelled, gotOrder.Status)
	assert.Equal(t, models.ItemStatusCancelled, gotOrder.Items[0].Status)

	var gotPayment models.Payment
	require.NoError(t, e.db.First(&gotPayment, "id = ?", payment.ID).Error)
	assert.Equal(t, models.PaymentStatusFailed, gotPayment.Status)

	// Reserved stock went back and no sale was recorded.
	remaining, err := e.inv.Remaining(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), remaining)
	var gotTicket models.Ticket
	require.NoError(t, e.db.First(&gotTicket, "id = ?", ticket.ID).Error)
	assert.Equal(t, 0, gotTicket.SoldCount)

	assert.ErrorIs(t, payments.HandlePaymentFailed(ctx, payment.SessionID), ErrAlreadyFinalized)
}

func TestHandleRefundNotification(t *testing.T) {
	e := newTestEnv(t)
	payments := newPaymentService(e, nil)
	ctx := context.Background()

	ticket := e.createTicket(t, e.createEvent(t), 100, 50000)
	order, payment := buildPendingOrder(t, e, ticket, 2, "buyer@example.com")
	require.NoError(t, payments.HandleCheckoutCompleted(ctx, payment.SessionID, "txn-9"))

	require.NoError(t, payments.HandleRefundNotification(ctx, "txn-9"))

	var gotOrder models.Order
	require.NoError(t, e.db.Preload("Items").First(&gotOrder, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderStatusRefunded, gotOrder.Status)
	assert.Equal(t, models.ItemStatusRefunded, gotOrder.Items[0].Status)

	var gotTicket models.Ticket
	require.NoError(t, e.db.First(&gotTicket, "id = ?", ticket.ID).Error)
	assert.Equal(t, 0, gotTicket.SoldCount)

	assert.ErrorIs(t, payments.HandleRefundNotification(ctx, "txn-9"), ErrAlreadyFinalized)
}

func TestHandleRefundNotificationRequiresPaid(t *testing.T) {
	e := newTestEnv(t)
	payments := newPaymentService(e, nil)
	ctx := context.Background()

	ticket := e.createTicket(t, e.createEvent(t), 100, 50000)
	_, payment := buildPendingOrder(t, e, ticket, 1, "buyer@example.com")
	payment.GatewayTransactionID = "txn-pending"
	require.NoError(t, e.db.Save(payment).Error)

	err := payments.HandleRefundNotification(ctx, "txn-pending")
	assert.ErrorIs(t, err, ErrPaymentNotCompleted)
}

func TestRefundPayment(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"response": map[string]interface{}{
				"refund": map[string]interface{}{"id": "rfd-1", "status": "success"},
			},
		})
	}))
	defer srv.Close()
	gw := gateway.NewClient(gateway.Config{BaseURL: srv.URL, ClientID: "c", SecretKey: "s"}, zerolog.Nop())
	payments := newPaymentService(e, gw)

	ticket := e.createTicket(t, e.createEvent(t), 100, 50000)
	order, payment := buildPendingOrder(t, e, ticket, 2, "buyer@example.com")
	require.NoError(t, payments.HandleCheckoutCompleted(ctx, payment.SessionID, "txn-1"))

	refund, err := payments.RefundPayment(ctx, payment.ID, 100000, "event cancelled")
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusSuccess, refund.Status)
	assert.Equal(t, "rfd-1", refund.RefundTransactionID)
	require.NotNil(t, refund.ProcessedOn)

	var gotOrder models.Order
	require.NoError(t, e.db.First(&gotOrder, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderStatusRefunded, gotOrder.Status)
}

func TestRefundPaymentRequiresPaid(t *testing.T) {
	e := newTestEnv(t)
	payments := newPaymentService(e, nil)
	ctx := context.Background()

	ticket := e.createTicket(t, e.createEvent(t), 100, 50000)
	_, payment := buildPendingOrder(t, e, ticket, 1, "buyer@example.com")

	_, err := payments.RefundPayment(ctx, payment.ID, 50000, "oops")
	assert.ErrorIs(t, err, ErrPaymentNotCompleted)

	_, err = payments.RefundPayment(ctx, uuid.New(), 50000, "oops")
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestCancelStaleOrder(t *testing.T) {
	e := newTestEnv(t)
	payments := newPaymentService(e, nil)
	ctx := context.Background()

	ticket := e.createTicket(t, e.createEvent(t), 100, 50000)
	order, payment := buildPendingOrder(t, e, ticket, 3, "buyer@example.com")

	// Simulate the hold TTL having fired before the sweep.
	e.mr.FastForward(16 * time.Minute)

	require.NoError(t, payments.CancelStaleOrder(ctx, order.ID))

	var gotOrder models.Order
	require.NoError(t, e.db.First(&gotOrder, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderStatusCancelled, gotOrder.Status)

	var gotPayment models.Payment
	require.NoError(t, e.db.First(&gotPayment, "id = ?", payment.ID).Error)
	assert.Equal(t, models.PaymentStatusCancelled, gotPayment.Status)

	// Restore credits capacity even though the hold had already expired.
	remaining, err := e.inv.Remaining(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), remaining)

	assert.ErrorIs(t, payments.CancelStaleOrder(ctx, order.ID), ErrAlreadyFinalized)
}

func TestReaperSweep(t *testing.T) {
	e := newTestEnv(t)
	payments := newPaymentService(e, nil)
	reaper := NewReaper(e.db, payments, 15*time.Minute, time.Hour, zerolog.Nop())
	ctx := context.Background()

	ticket := e.createTicket(t, e.createEvent(t), 100, 50000)
	stale, stalePayment := buildPendingOrder(t, e, ticket, 2, "stale@example.com")
	fresh, _ := buildPendingOrder(t, e, ticket, 1, "fresh@example.com")

	// Age the stale order past the hold window.
	old := time.Now().UTC().Add(-20 * time.Minute)
	require.NoError(t, e.db.Model(&models.Order{}).Where("id = ?", stale.ID).
		UpdateColumn("created_at", old).Error)

	cancelled, err := reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)

	var gotStale, gotFresh models.Order
	require.NoError(t, e.db.First(&gotStale, "id = ?", stale.ID).Error)
	require.NoError(t, e.db.First(&gotFresh, "id = ?", fresh.ID).Error)
	assert.Equal(t, models.OrderStatusCancelled, gotStale.Status)
	assert.Equal(t, models.OrderStatusPending, gotFresh.Status)

	// A webhook arriving after the sweep finds the order finalized.
	err = payments.HandleCheckoutCompleted(ctx, stalePayment.SessionID, "txn-late")
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
}
