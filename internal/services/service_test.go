package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dimasprsty/tiketin/internal/inventory"
	"github.com/dimasprsty/tiketin/internal/models"
	"github.com/dimasprsty/tiketin/internal/ticketqueue"
)

type testEnv struct {
	db    *gorm.DB
	inv   *inventory.Manager
	queue *ticketqueue.Queue
	rdb   *redis.Client
	mr    *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Event{},
		&models.Ticket{},
		&models.PromoCode{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderItemAddon{},
		&models.OrderItemTax{},
		&models.Payment{},
		&models.Refund{},
	))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return &testEnv{
		db:    db,
		inv:   inventory.NewManager(rdb, 15*time.Minute, zerolog.Nop()),
		queue: ticketqueue.NewQueue(rdb, "test", 3, time.Second, zerolog.Nop()),
		rdb:   rdb,
		mr:    mr,
	}
}

func (e *testEnv) createEvent(t *testing.T) *models.Event {
	t.Helper()
	event := &models.Event{
		Title:     "Jakarta Music Festival",
		StartTime: time.Now().Add(30 * 24 * time.Hour),
		EndTime:   time.Now().Add(31 * 24 * time.Hour),
		Location:  "Jakarta",
	}
	require.NoError(t, e.db.Create(event).Error)
	return event
}

func (e *testEnv) createTicket(t *testing.T, event *models.Event, quantity int, price float64) *models.Ticket {
	t.Helper()
	ticket := &models.Ticket{
		Name:     "Regular",
		Quantity: quantity,
		Price:    price,
		MinBuy:   1,
		MaxBuy:   10,
		EventID:  event.ID,
	}
	require.NoError(t, e.db.Create(ticket).Error)
	require.NoError(t, e.inv.InitCounter(context.Background(), ticket.ID, quantity))
	return ticket
}
