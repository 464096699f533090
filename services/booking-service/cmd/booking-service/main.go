package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shafin-ahmed/bookrider/libs/auth"
	"github.com/shafin-ahmed/bookrider/libs/config"
	"github.com/shafin-ahmed/bookrider/libs/db"
	"github.com/shafin-ahmed/bookrider/libs/httpx"
	otelx "github.com/shafin-ahmed/bookrider/libs/otel"
	"github.com/shafin-ahmed/bookrider/libs/runtime"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/availability"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/consumer"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/earnings"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/engine"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/handlers"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/inbox"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/outbox"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/payments"
	"github.com/shafin-ahmed/bookrider/services/booking-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func parseCatalog(raw string, logger *slog.Logger) []string {
	var catalog []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, err := time.Parse("15:04", part); err != nil {
			logger.Warn("invalid slot catalog entry", "value", part)
			continue
		}
		catalog = append(catalog, part)
	}
	return catalog
}

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var (
		store       engine.Store
		idempotency handlers.Idempotency
		readyChecks []runtime.ReadyCheck
	)
	kafkaBrokers := config.String("KAFKA_BROKERS", "")

	dbURL := config.String("DATABASE_URL", "")
	if dbURL != "" {
		pool, err := db.Open(ctx, dbURL)
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()

		outboxRepo := outbox.NewRepository(pool)
		store = storage.NewPostgresStore(pool, outboxRepo)
		idempotency = storage.NewIdempotencyStore(pool)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   kafkaBrokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		go outboxPublisher.Run(ctx)

		startPaymentConsumer(ctx, logger, pool, store, kafkaBrokers)
	} else {
		logger.Warn("no DATABASE_URL configured; using in-memory store")
		store = storage.NewMemoryStore()
		idempotency = storage.NewMemoryIdempotency()
	}
	if kafkaBrokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: consumer.ReadyCheck(kafkaBrokers)})
	}

	catalog := parseCatalog(config.String("SLOT_CATALOG", ""), logger)
	eng := engine.New(store, logger, engine.Config{
		Catalog: catalog,
		Lead:    time.Duration(config.Int("SLOT_LEAD_MINUTES", int(availability.MinLeadTime/time.Minute))) * time.Minute,
	})

	earningsCfg := earnings.Config{
		BaseFee:        config.Float("EARNINGS_BASE_FEE", earnings.DefaultBaseFee),
		CommissionRate: config.Float("EARNINGS_COMMISSION_RATE", earnings.DefaultCommissionRate),
	}
	paymentReader := payments.NewStatusReader(config.String("STRIPE_SECRET_KEY", ""), logger)

	bookingHandler := handlers.NewBookingHandler(eng, idempotency, paymentReader, earningsCfg, logger)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/public/slots", bookingHandler.Slots)
	mux.HandleFunc("/api/v1/public/book", bookingHandler.Create)
	mux.HandleFunc("/api/v1/appointments", bookingHandler.List)
	mux.HandleFunc("/api/v1/appointments/get", bookingHandler.Get)
	mux.HandleFunc("/api/v1/appointments/confirm", bookingHandler.Confirm)
	mux.HandleFunc("/api/v1/appointments/claim", bookingHandler.Claim)
	mux.HandleFunc("/api/v1/appointments/start", bookingHandler.Start)
	mux.HandleFunc("/api/v1/appointments/complete", bookingHandler.Complete)
	mux.HandleFunc("/api/v1/appointments/cancel", bookingHandler.Cancel)
	mux.HandleFunc("/api/v1/appointments/no-show", bookingHandler.NoShow)
	mux.HandleFunc("/api/v1/appointments/reschedule", bookingHandler.Reschedule)
	mux.HandleFunc("/api/v1/appointments/rate", bookingHandler.Rate)
	mux.HandleFunc("/api/v1/appointments/calendar", bookingHandler.Calendar)
	mux.HandleFunc("/api/v1/riders/earnings", bookingHandler.EstimateEarnings)

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1 << 20),
	}
	if secret := config.String("JWT_SECRET", ""); secret != "" {
		middlewares = append(middlewares, auth.Middleware(secret, false))
	}
	if origins := config.String("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		middlewares = append(middlewares, httpx.WithCORS(strings.Split(origins, ",")))
	}
	middlewares = append(middlewares, rateLimitMiddleware(logger))

	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func rateLimitMiddleware(logger *slog.Logger) httpx.Middleware {
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if addr := config.String("RATE_LIMIT_REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		return httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "booking").Middleware(logger)
	}
	return httpx.NewRateLimiter(limit, time.Minute).Middleware()
}

// startPaymentConsumer applies payment status events to the display-only
// payment field. Settlement itself happens upstream; the engine only mirrors
// the outcome.
func startPaymentConsumer(ctx context.Context, logger *slog.Logger, pool *db.Pool, store engine.Store, brokers string) {
	topic := config.String("KAFKA_PAYMENTS_TOPIC", "payments.payment.updated.v1")
	if strings.TrimSpace(brokers) == "" || strings.TrimSpace(topic) == "" {
		return
	}
	inboxRepo := inbox.NewRepository(pool)
	eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "booking-service"),
		Topic:   topic,
	}, func(ctx context.Context, appointmentID, status string) error {
		err := store.SetPaymentStatus(ctx, appointmentID, status)
		if errors.Is(err, engine.ErrNotFound) {
			logger.Warn("payment event for unknown appointment", "appointment_id", appointmentID)
			return nil
		}
		return err
	})
	go eventConsumer.Run(ctx)
}
