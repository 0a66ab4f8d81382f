package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/dimasprsty/tiketin/internal/gateway"
	"github.com/dimasprsty/tiketin/internal/models"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Port string

	// HoldWindow bounds how long a pending order keeps stock reserved. It is
	// both the hold TTL in the fast store and the reaper's staleness cutoff.
	HoldWindow     time.Duration
	ReaperInterval time.Duration

	QueueMaxAttempts int
	QueueBackoff     time.Duration
	QueueConcurrency int
	TicketOutputDir  string
	TicketSecret     string

	OperatorJWTSecret string
	Currency          string
	GatewayName       string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		Port: getEnv("PORT", "8080"),

		HoldWindow:     getEnvDuration("HOLD_WINDOW", 15*time.Minute),
		ReaperInterval: getEnvDuration("REAPER_INTERVAL", time.Hour),

		QueueMaxAttempts: getEnvInt("QUEUE_MAX_ATTEMPTS", 5),
		QueueBackoff:     getEnvDuration("QUEUE_BACKOFF", 5*time.Second),
		QueueConcurrency: getEnvInt("QUEUE_CONCURRENCY", 4),
		TicketOutputDir:  getEnv("TICKET_OUTPUT_DIR", "./tickets"),
		TicketSecret:     os.Getenv("TICKET_SECRET"),

		OperatorJWTSecret: os.Getenv("OPERATOR_JWT_SECRET"),
		Currency:          getEnv("CURRENCY", "IDR"),
		GatewayName:       getEnv("PAYMENT_GATEWAY", "doku"),
	}

	if cfg.OperatorJWTSecret == "" {
		return nil, fmt.Errorf("OPERATOR_JWT_SECRET is required")
	}
	if cfg.TicketSecret == "" {
		return nil, fmt.Errorf("TICKET_SECRET is required")
	}
	return cfg, nil
}

func LoadGatewayConfig() (gateway.Config, error) {
	cfg := gateway.Config{
		BaseURL:       os.Getenv("GATEWAY_BASE_URL"),
		ClientID:      os.Getenv("GATEWAY_CLIENT_ID"),
		SecretKey:     os.Getenv("GATEWAY_SECRET_KEY"),
		WebhookSecret: os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		FrontendURL:   getEnv("FRONTEND_URL", "http://localhost:3000"),
	}
	if cfg.BaseURL == "" || cfg.ClientID == "" || cfg.SecretKey == "" || cfg.WebhookSecret == "" {
		return gateway.Config{}, fmt.Errorf("gateway configuration is incomplete")
	}
	return cfg, nil
}

func InitDatabase(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&models.Event{},
		&models.Ticket{},
		&models.PromoCode{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderItemAddon{},
		&models.OrderItemTax{},
		&models.Payment{},
		&models.Refund{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}

func NewRedisClient(cfg *Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	return rdb, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
