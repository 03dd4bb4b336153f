package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xIfe3/swipline/config"
	"github.com/xIfe3/swipline/internal/broker/kafka"
	"github.com/xIfe3/swipline/internal/cache/rediscache"
	"github.com/xIfe3/swipline/internal/integrations/processor/stripehttp"
	"github.com/xIfe3/swipline/internal/rates"
	"github.com/xIfe3/swipline/internal/services/parcels"
	"github.com/xIfe3/swipline/internal/services/payments"
	"github.com/xIfe3/swipline/internal/storage/pgparcels"
	"github.com/xIfe3/swipline/internal/trackid"
)

type apiApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   apiOpts

	parcelsSvc  *parcels.Service
	paymentsSvc *payments.Service
	db          *pgparcels.Storage

	closers []func()
}

func mustBootstrapAPI() *apiApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.Swipline.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	topic := cfg.Kafka.ParcelEventsTopicName
	if topic == "" {
		topic = "parcel.events"
	}
	publicTTL := time.Duration(cfg.Swipline.PublicTrackingTTLSeconds) * time.Second
	if publicTTL <= 0 {
		publicTTL = 5 * time.Minute
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)

	processorTimeout := time.Duration(cfg.Processor.TimeoutSeconds) * time.Second
	pc := stripehttp.New(cfg.Processor.BaseURL, cfg.Processor.SecretKey, processorTimeout)

	tolerance := time.Duration(cfg.Processor.WebhookToleranceSeconds) * time.Second

	parcelsSvc := parcels.New(
		st,
		rates.NewCalculator(rates.DefaultConfig()),
		trackid.NewGenerator(),
		rc,
		publicTTL,
		producer,
		topic,
		slog.Default(),
	)
	paymentsSvc := payments.New(
		st,
		pc,
		cfg.Processor.WebhookSecret,
		cfg.Processor.Currency,
		tolerance,
		producer,
		topic,
		slog.Default(),
	).WithPublicRefresh(parcelsSvc.RefreshPublicTracking)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &apiApp{
		ctx:    ctx,
		cancel: cancel,
		opts: apiOpts{
			httpAddr:    httpAddr,
			swaggerPath: swaggerPath,
		},
		parcelsSvc:  parcelsSvc,
		paymentsSvc: paymentsSvc,
		db:          st,
		closers: []func(){
			func() { _ = producer.Close() },
			func() { _ = rc.Close() },
			st.Close,
		},
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgparcels.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgparcels.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *apiApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for _, c := range a.closers {
		c()
	}
}

func (a *apiApp) Run() error {
	return runAPI(a.ctx, a.opts, a.parcelsSvc, a.paymentsSvc, a.db)
}
