package server

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/dimasprsty/tiketin/config"
	"github.com/dimasprsty/tiketin/internal/gateway"
	"github.com/dimasprsty/tiketin/internal/handlers"
	"github.com/dimasprsty/tiketin/internal/inventory"
	"github.com/dimasprsty/tiketin/internal/middleware"
	"github.com/dimasprsty/tiketin/internal/services"
	"github.com/dimasprsty/tiketin/internal/ticketqueue"
)

func Start() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	db, err := config.InitDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %v", err)
	}

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %v", err)
	}

	gwCfg, err := config.LoadGatewayConfig()
	if err != nil {
		return fmt.Errorf("failed to load gateway config: %v", err)
	}
	gw := gateway.NewClient(gwCfg, logger)

	inv := inventory.NewManager(rdb, cfg.HoldWindow, logger)
	queue := ticketqueue.NewQueue(rdb, "ticket-documents", cfg.QueueMaxAttempts, cfg.QueueBackoff, logger)

	orders := services.NewOrderService(db, inv, cfg.GatewayName, cfg.Currency, logger)
	payments := services.NewPaymentService(db, inv, queue, gw, logger)
	reaper := services.NewReaper(db, payments, cfg.HoldWindow, cfg.ReaperInterval, logger)

	worker := ticketqueue.NewWorker(
		queue,
		ticketqueue.TicketDocumentHandler(cfg.TicketOutputDir, cfg.TicketSecret, logger),
		cfg.QueueConcurrency,
		logger,
	)

	r := gin.Default()
	setupRoutes(r, db, cfg, inv, orders, payments, gw, logger)

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error { return worker.Run(ctx) })
	g.Go(func() error { return reaper.Run(ctx) })
	g.Go(func() error { return r.Run(":" + cfg.Port) })
	return g.Wait()
}

func setupRoutes(
	r *gin.Engine,
	db *gorm.DB,
	cfg *config.Config,
	inv *inventory.Manager,
	orders *services.OrderService,
	payments *services.PaymentService,
	gw *gateway.Client,
	logger zerolog.Logger,
) {
	r.Use(middleware.DatabaseMiddleware(db))

	orderHandler := handlers.NewOrderHandler(orders)
	paymentHandler := handlers.NewPaymentHandler(orders, payments, gw)
	webhookHandler := handlers.NewWebhookHandler(payments, gw, logger)
	ticketHandler := handlers.NewTicketHandler(inv)

	public := r.Group("/v1")
	{
		public.POST("/orders", orderHandler.Create)
		public.GET("/orders/:id", orderHandler.Get)

		public.POST("/payments/checkout-session", paymentHandler.CreateCheckoutSession)
		public.POST("/payments/webhook", webhookHandler.Handle)

		public.GET("/events", handlers.ListEvents)
		public.GET("/events/:id", handlers.GetEvent)
		public.GET("/tickets/:id", ticketHandler.Get)
		public.GET("/tickets/:id/availability", ticketHandler.Availability)
	}

	protected := r.Group("/v1")
	protected.Use(middleware.OperatorAuthMiddleware(cfg.OperatorJWTSecret))
	{
		protected.POST("/events", handlers.CreateEvent)
		protected.POST("/tickets", ticketHandler.Create)
		protected.PUT("/tickets/:id", ticketHandler.Update)
		protected.POST("/payments/:id/refund", paymentHandler.Refund)
	}
}
