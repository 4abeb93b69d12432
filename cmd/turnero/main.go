package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/turnero-app/turnero/internal/booking"
	"github.com/turnero-app/turnero/internal/handlers"
	"github.com/turnero-app/turnero/internal/outbox"
	"github.com/turnero-app/turnero/internal/person"
	"github.com/turnero-app/turnero/internal/schedule"
	"github.com/turnero-app/turnero/internal/storage"
	"github.com/turnero-app/turnero/libs/config"
	"github.com/turnero-app/turnero/libs/db"
	"github.com/turnero-app/turnero/libs/httpx"
	"github.com/turnero-app/turnero/libs/kafkax"
	"github.com/turnero-app/turnero/libs/otelx"
	"github.com/turnero-app/turnero/libs/runtime"
)

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loadGrid(logger *slog.Logger) *schedule.Grid {
	path := config.String("SCHEDULE_FILE", "")
	if path == "" {
		logger.Info("no SCHEDULE_FILE set; using built-in grid")
		return schedule.Default()
	}
	grid, err := schedule.Load(path)
	if err != nil {
		logger.Error("schedule load failed", "path", path, "err", err)
		panic(err)
	}
	logger.Info("schedule loaded", "path", path, "slots", grid.Len())
	return grid
}

func main() {
	service := config.String("SERVICE_NAME", "turnero")
	port, err := config.Port("PORT", "8080")
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

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	grid := loadGrid(logger)
	store := storage.NewPostgres(pool)
	persons := person.NewService(store)
	bookings := booking.NewService(store, grid)

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	publisher := outbox.NewPublisher(outbox.NewRepository(pool), logger, outbox.PublisherConfig{
		Brokers:   kafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if kafkaBrokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	handlers.New(persons, bookings, logger).Register(mux)

	limit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	var rateLimit httpx.Middleware
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer rdb.Close()
		rateLimit = httpx.NewRedisRateLimiter(rdb, limit, time.Minute, service).Middleware(logger, true)
	} else {
		rateLimit = httpx.NewRateLimiter(limit, time.Minute).Middleware()
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: splitList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			AllowedHeaders: []string{"Content-Type", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}),
		rateLimit,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, service)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
