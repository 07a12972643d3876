package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/bizdash/libs/config"
	"github.com/md-rashed-zaman/bizdash/libs/db"
	"github.com/md-rashed-zaman/bizdash/libs/grpcx"
	"github.com/md-rashed-zaman/bizdash/libs/httpx"
	"github.com/md-rashed-zaman/bizdash/libs/inbox"
	"github.com/md-rashed-zaman/bizdash/libs/kafkax"
	otelx "github.com/md-rashed-zaman/bizdash/libs/otel"
	"github.com/md-rashed-zaman/bizdash/libs/outbox"
	"github.com/md-rashed-zaman/bizdash/libs/runtime"
	"github.com/md-rashed-zaman/bizdash/services/notification-service/internal/consumer"
	"github.com/md-rashed-zaman/bizdash/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/bizdash/services/notification-service/internal/jobs"
	"github.com/md-rashed-zaman/bizdash/services/notification-service/internal/sms"
	"github.com/md-rashed-zaman/bizdash/services/notification-service/internal/storage"
	"github.com/md-rashed-zaman/bizdash/services/notification-service/internal/worker"
)

func main() {
	_ = config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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
	jobsRepo := jobs.NewRepository()
	outboxRepo := outbox.NewRepository()

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	if brokers != "" {
		groupID := config.String("KAFKA_GROUP_ID", service)
		planner := consumer.NewPlanner(pool, jobsRepo, logger)
		eventConsumer := kafkax.NewConsumer(logger, inbox.NewRepository(pool, groupID), kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: groupID,
			Topics:  consumer.Topics,
		}, planner.Handle)
		go eventConsumer.Run(ctx)
	}

	emailSender := email.NewSMTPSender(email.Config{
		Host:     config.String("SMTP_HOST", "mailpit"),
		Port:     config.String("SMTP_PORT", "1025"),
		From:     config.String("SMTP_FROM", "no-reply@bizdash.local"),
		Username: config.String("SMTP_USERNAME", ""),
		Password: config.String("SMTP_PASSWORD", ""),
	})

	var smsSender sms.Sender
	switch provider := strings.ToLower(config.String("SMS_PROVIDER", "noop")); provider {
	case "twilio":
		smsSender = sms.NewTwilioSender(sms.TwilioConfig{
			BaseURL:    config.String("TWILIO_BASE_URL", sms.DefaultTwilioURL),
			AccountSID: config.String("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  config.String("TWILIO_AUTH_TOKEN", ""),
			From:       config.String("TWILIO_FROM", ""),
			Timeout:    config.Duration("TWILIO_TIMEOUT", 10*time.Second),
		})
	default:
		if provider != "noop" {
			logger.Warn("unknown SMS_PROVIDER, using noop", "provider", provider)
		}
		smsSender = sms.NewNoopSender()
	}

	if config.Bool("NOTIFICATION_WORKER_ENABLED", true) {
		w := worker.New(pool, jobsRepo, storage.NewRepository(), outboxRepo, emailSender, smsSender, logger, worker.Config{
			Interval:   config.Duration("NOTIFICATION_POLL_INTERVAL", 2*time.Second),
			BatchSize:  config.Int("NOTIFICATION_BATCH_SIZE", 50),
			Lease:      config.Duration("NOTIFICATION_LEASE", 2*time.Minute),
			Backoff:    config.Duration("NOTIFICATION_BACKOFF", time.Minute),
			MaxBackoff: config.Duration("NOTIFICATION_MAX_BACKOFF", time.Hour),
		})
		go w.Run(ctx)
	}

	grpcSrv, healthSrv := grpcx.NewServer(service, logger)
	go func() {
		if err := grpcx.Serve(ctx, grpcSrv, healthSrv, ":"+config.String("GRPC_PORT", "9085"), logger); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers, consumer.Topics...)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runtime.ServeHTTP(ctx, srv, logger, config.Duration("SHUTDOWN_GRACE", 10*time.Second))
}
