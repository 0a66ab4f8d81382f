package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/dimasprsty/tiketin/internal/inventory"
	"github.com/dimasprsty/tiketin/internal/models"
)

// OrderService builds orders and their line items inside a single durable
// transaction. Reservations are the one exception: they run against the fast
// store before the transaction, with compensating releases if anything after
// them fails, so a partially reserved order is never persisted.
type OrderService struct {
	db          *gorm.DB
	inv         *inventory.Manager
	gatewayName string
	currency    string
	log         zerolog.Logger
}

func NewOrderService(db *gorm.DB, inv *inventory.Manager, gatewayName, currency string, log zerolog.Logger) *OrderService {
	return &OrderService{
		db:          db,
		inv:         inv,
		gatewayName: gatewayName,
		currency:    currency,
		log:         log.With().Str("component", "orders").Logger(),
	}
}

type AddonInput struct {
	AddonRefID string
	AddonName  string
	Price      float64
	Quantity   int
}

type TaxInput struct {
	TaxRefID  string
	TaxName   string
	TaxRate   float64
	TaxAmount float64
}

type ItemInput struct {
	TicketID uuid.UUID
	Quantity int
	Addons   []AddonInput
	Taxes    []TaxInput
}

type CreateOrderInput struct {
	EventID        *uuid.UUID
	PurchaserName  string
	PurchaseEmail  string
	PurchaseMobile string
	BillingAddress *string
	PromoCode      *string
	Items          []ItemInput
}

// CreateOrGetPendingOrder returns the purchaser's existing pending order
// unchanged if one exists (no new reservations, no new holds), otherwise
// builds a new one. The dedup key is the purchaser email alone, deliberately
// coarse. The second return value reports whether a new order was created.
func (s *OrderService) CreateOrGetPendingOrder(ctx context.Context, in CreateOrderInput) (*models.Order, bool, error) {
	existing, err := s.pendingOrderByEmail(ctx, in.PurchaseEmail)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	order, err := s.createOrder(ctx, in)
	if err != nil {
		return nil, false, err
	}
	return order, true, nil
}

func (s *OrderService) pendingOrderByEmail(ctx context.Context, email string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Where("purchase_email = ? AND status = ?", email, models.OrderStatusPending).
		Preload("Items.Addons").
		Preload("Items.Taxes").
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up pending order for %s: %w", email, err)
	}
	return &order, nil
}

func (s *OrderService) createOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("order must contain at least one item")
	}

	tickets, err := s.loadTickets(ctx, in.Items)
	if err != nil {
		return nil, err
	}

	// The order id is assigned up front so reservation holds can be keyed by
	// it before the row exists.
	orderID := uuid.New()
	now := time.Now().UTC()

	// Reserve every line before touching the ledger. Any failure rolls back
	// the holds already taken during this attempt.
	for i, item := range in.Items {
		if err := s.inv.Reserve(ctx, item.TicketID, orderID, item.Quantity); err != nil {
			s.releaseHolds(ctx, orderID, in.Items[:i])
			if errors.Is(err, inventory.ErrInsufficientStock) {
				return nil, fmt.Errorf("ticket class %s: %w", item.TicketID, err)
			}
			return nil, err
		}
	}

	order, err := s.persistOrder(ctx, orderID, in, tickets, now)
	if err != nil {
		s.releaseHolds(ctx, orderID, in.Items)
		return nil, err
	}

	s.log.Info().Str("order_id", order.ID.String()).Str("email", order.PurchaseEmail).
		Float64("total", order.TotalAmount).Msg("order created")
	return order, nil
}

func (s *OrderService) loadTickets(ctx context.Context, items []ItemInput) (map[uuid.UUID]models.Ticket, error) {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.TicketID)
	}

	var tickets []models.Ticket
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&tickets).Error; err != nil {
		return nil, fmt.Errorf("load ticket classes: %w", err)
	}
	byID := make(map[uuid.UUID]models.Ticket, len(tickets))
	for _, t := range tickets {
		byID[t.ID] = t
	}

	for _, item := range items {
		ticket, ok := byID[item.TicketID]
		if !ok {
			return nil, fmt.Errorf("ticket class %s: %w", item.TicketID, ErrInvalidReference)
		}
		if item.Quantity < ticket.MinBuy || item.Quantity > ticket.MaxBuy {
			return nil, fmt.Errorf("ticket class %s allows %d to %d per order: %w",
				ticket.ID, ticket.MinBuy, ticket.MaxBuy, ErrQuantityOutOfRange)
		}
	}
	return byID, nil
}

func (s *OrderService) persistOrder(ctx context.Context, orderID uuid.UUID, in CreateOrderInput, tickets map[uuid.UUID]models.Ticket, now time.Time) (*models.Order, error) {
	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o := &models.Order{
			ID:             orderID,
			EventID:        in.EventID,
			PurchaserName:  in.PurchaserName,
			PurchaseEmail:  in.PurchaseEmail,
			PurchaseMobile: in.PurchaseMobile,
			BillingAddress: in.BillingAddress,
			Currency:       s.currency,
			Status:         models.OrderStatusPending,
		}

		var total float64
		items := make([]models.OrderItem, 0, len(in.Items))
		for _, item := range in.Items {
			ticket := tickets[item.TicketID]
			price := ticket.EffectivePrice(now)
			lineTotal := price * float64(item.Quantity)
			total += lineTotal

			orderItem := models.OrderItem{
				TicketID:    ticket.ID,
				TicketName:  ticket.Name,
				Quantity:    item.Quantity,
				Price:       price,
				TotalAmount: lineTotal,
				Status:      models.ItemStatusActive,
			}
			for _, addon := range item.Addons {
				addonTotal := addon.Price * float64(addon.Quantity)
				total += addonTotal
				orderItem.Addons = append(orderItem.Addons, models.OrderItemAddon{
					AddonRefID:  addon.AddonRefID,
					AddonName:   addon.AddonName,
					Price:       addon.Price,
					Quantity:    addon.Quantity,
					TotalAmount: addonTotal,
				})
			}
			for _, taxLine := range item.Taxes {
				total += taxLine.TaxAmount
				orderItem.Taxes = append(orderItem.Taxes, models.OrderItemTax{
					TaxRefID:  taxLine.TaxRefID,
					TaxName:   taxLine.TaxName,
					TaxRate:   taxLine.TaxRate,
					TaxAmount: taxLine.TaxAmount,
				})
			}
			items = append(items, orderItem)
		}
		o.Items = items

		if in.PromoCode != nil && *in.PromoCode != "" {
			discount, err := s.applyPromo(tx, *in.PromoCode, total, now)
			if err != nil {
				return err
			}
			o.PromoCode = in.PromoCode
			o.DiscountedAmount = discount
			total -= discount
		}
		o.TotalAmount = total

		if err := tx.Create(o).Error; err != nil {
			return fmt.Errorf("persist order: %w", err)
		}

		payment := &models.Payment{
			OrderID: o.ID,
			Gateway: s.gatewayName,
			Amount:  o.TotalAmount,
			Status:  models.PaymentStatusPending,
		}
		if err := tx.Create(payment).Error; err != nil {
			return fmt.Errorf("persist pending payment: %w", err)
		}

		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) applyPromo(tx *gorm.DB, code string, total float64, now time.Time) (float64, error) {
	var promo models.PromoCode
	err := tx.Where("code = ? AND is_active = ?", code, true).First(&promo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("promo %q: %w", code, ErrInvalidPromotion)
	}
	if err != nil {
		return 0, fmt.Errorf("look up promo %q: %w", code, err)
	}

	if promo.ValidFrom != nil && now.Before(*promo.ValidFrom) {
		return 0, fmt.Errorf("promo %q not yet valid: %w", code, ErrInvalidPromotion)
	}
	if promo.ValidTo != nil && now.After(*promo.ValidTo) {
		return 0, fmt.Errorf("promo %q expired: %w", code, ErrInvalidPromotion)
	}
	if promo.UsageLimit != nil && promo.UsedCount >= *promo.UsageLimit {
		return 0, fmt.Errorf("promo %q exhausted: %w", code, ErrInvalidPromotion)
	}
	return promo.DiscountFor(total), nil
}

func (s *OrderService) releaseHolds(ctx context.Context, orderID uuid.UUID, items []ItemInput) {
	for _, item := range items {
		if err := s.inv.Release(ctx, item.TicketID, orderID); err != nil {
			s.log.Error().Err(err).Str("order_id", orderID.String()).
				Str("ticket_id", item.TicketID.String()).
				Msg("failed to release hold after aborted order build")
		}
	}
}

// GetOrder loads a fully populated order.
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID, includeEvent bool) (*models.Order, error) {
	query := s.db.WithContext(ctx).
		Preload("Items.Addons").
		Preload("Items.Taxes")
	if includeEvent {
		query = query.Preload("Event")
	}

	var order models.Order
	err := query.First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("order %s: %w", id, ErrInvalidReference)
	}
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	return &order, nil
}
