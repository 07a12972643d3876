package main

import (
	"context"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/bizdash/libs/config"
	"github.com/md-rashed-zaman/bizdash/libs/db"
	"github.com/md-rashed-zaman/bizdash/libs/grpcx"
	"github.com/md-rashed-zaman/bizdash/libs/httpx"
	"github.com/md-rashed-zaman/bizdash/libs/kafkax"
	otelx "github.com/md-rashed-zaman/bizdash/libs/otel"
	"github.com/md-rashed-zaman/bizdash/libs/outbox"
	"github.com/md-rashed-zaman/bizdash/libs/runtime"
	"github.com/md-rashed-zaman/bizdash/services/billing-service/internal/handlers"
	"github.com/md-rashed-zaman/bizdash/services/billing-service/internal/payments"
	"github.com/md-rashed-zaman/bizdash/services/billing-service/internal/reconcile"
	"github.com/md-rashed-zaman/bizdash/services/billing-service/internal/storage"
)

func main() {
	_ = config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "billing-service")
	port, err := config.Port("PORT", "8084")
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
	repo := storage.NewRepository()
	outboxRepo := outbox.NewRepository()
	settle := payments.NewSettlement(repo, outboxRepo, logger)

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	// A per-client backend keeps the key off the stripe package global.
	var sessions payments.Sessions
	if key := config.String("STRIPE_SECRET_KEY", ""); key != "" {
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			HTTPClient: &http.Client{
				Timeout:   config.Duration("STRIPE_TIMEOUT", 20*time.Second),
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			},
		})
		sessions = &checkoutsession.Client{B: backend, Key: key}
	} else {
		logger.Warn("stripe checkout disabled (STRIPE_SECRET_KEY unset)")
	}

	if config.Bool("BILLING_STRIPE_RECONCILE_ENABLED", false) {
		interval := config.Duration("BILLING_STRIPE_RECONCILE_INTERVAL", 5*time.Minute)
		rec := reconcile.NewStripeReconciler(pool, repo, settle, sessions, logger, reconcile.StripeReconcilerConfig{
			BatchSize:       config.Int("BILLING_STRIPE_RECONCILE_BATCH_SIZE", 50),
			StaleAfter:      config.Duration("BILLING_STRIPE_RECONCILE_STALE_AFTER", 15*time.Minute),
			AdvisoryLockKey: config.Int64("BILLING_STRIPE_RECONCILE_LOCK_KEY", 4242001),
		})
		go rec.Run(ctx, interval)
	}

	grpcSrv, healthSrv := grpcx.NewServer(service, logger)
	go func() {
		if err := grpcx.Serve(ctx, grpcSrv, healthSrv, ":"+config.String("GRPC_PORT", "9084"), logger); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handlers.New(pool, repo, settle, sessions, logger, handlers.Config{
		WebhookSecret:    config.String("STRIPE_WEBHOOK_SECRET", ""),
		WebhookTolerance: config.Duration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute),
		SuccessURL:       config.String("CHECKOUT_SUCCESS_URL", ""),
		CancelURL:        config.String("CHECKOUT_CANCEL_URL", ""),
		Currency:         config.String("BILLING_CURRENCY", "usd"),
	}).Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(config.Int("BODY_LIMIT_BYTES", 1<<20))),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "billing")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runtime.ServeHTTP(ctx, srv, logger, config.Duration("SHUTDOWN_GRACE", 10*time.Second))
}
