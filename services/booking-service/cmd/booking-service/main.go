package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/bizdash/libs/config"
	"github.com/md-rashed-zaman/bizdash/libs/db"
	"github.com/md-rashed-zaman/bizdash/libs/events"
	"github.com/md-rashed-zaman/bizdash/libs/grpcx"
	"github.com/md-rashed-zaman/bizdash/libs/httpx"
	"github.com/md-rashed-zaman/bizdash/libs/inbox"
	"github.com/md-rashed-zaman/bizdash/libs/kafkax"
	otelx "github.com/md-rashed-zaman/bizdash/libs/otel"
	"github.com/md-rashed-zaman/bizdash/libs/outbox"
	"github.com/md-rashed-zaman/bizdash/libs/redisx"
	"github.com/md-rashed-zaman/bizdash/libs/runtime"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/assignment"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/coupons"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/orders"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/storage"
)

func main() {
	_ = config.LoadDotEnv()
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

	brokers := config.String("KAFKA_BROKERS", "")
	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers, events.PaymentSucceeded)},
	}

	var cursor handlers.Cursor
	if rdb := redisx.FromEnv(); rdb != nil {
		defer func() { _ = rdb.Close() }()
		cursor = assignment.NewRedisCursor(rdb)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
		logger.Info("round robin cursor in redis")
	} else {
		logger.Info("round robin cursor in database only (REDIS_ADDR unset)")
	}

	bookingRepo := storage.NewBookingRepository()
	catalogRepo := storage.NewCatalogRepository()
	couponRepo := coupons.NewRepository()
	orderRepo := orders.NewRepository()
	outboxRepo := outbox.NewRepository()

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	if brokers != "" {
		payments := handlers.NewPaymentsConsumer(pool, bookingRepo, orderRepo, logger)
		groupID := config.String("KAFKA_GROUP_ID", service)
		consumer := kafkax.NewConsumer(logger, inbox.NewRepository(pool, groupID), kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: groupID,
			Topics:  []string{events.PaymentSucceeded},
		}, payments.Handle)
		go consumer.Run(ctx)
	}

	grpcSrv, healthSrv := grpcx.NewServer(service, logger)
	go func() {
		if err := grpcx.Serve(ctx, grpcSrv, healthSrv, ":"+config.String("GRPC_PORT", "9083"), logger); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.NewBookingHandler(pool, bookingRepo, catalogRepo, couponRepo, outboxRepo, cursor, logger).Register(mux)
	coupons.NewHandler(pool, couponRepo, logger).Register(mux)
	orders.NewHandler(pool, orderRepo, catalogRepo, couponRepo, outboxRepo, logger).Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(config.Int("BODY_LIMIT_BYTES", 1<<20))),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runtime.ServeHTTP(ctx, srv, logger, config.Duration("SHUTDOWN_GRACE", 10*time.Second))
}
