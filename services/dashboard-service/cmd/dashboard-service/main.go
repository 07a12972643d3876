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
	"github.com/md-rashed-zaman/bizdash/libs/redisx"
	"github.com/md-rashed-zaman/bizdash/libs/runtime"
	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/assistant"
	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/configs"
	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/consumer"
	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/crud"
	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/imports"
	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/media"
	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/metrics"
	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/portal"
	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/search"
	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/social"
)

func main() {
	_ = config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "dashboard-service")
	port, err := config.Port("PORT", "8082")
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
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}
	// API routes go on their own mux; ready checks are collected while wiring.
	mux := http.NewServeMux()

	// search: Meilisearch when configured, Postgres otherwise
	var meili *search.Meili
	var indexer crud.Indexer
	if url := config.String("MEILI_URL", ""); url != "" {
		meili = search.NewMeili(url, config.String("MEILI_API_KEY", ""), logger)
		indexer = meili
		go meili.Watch(ctx, config.Duration("MEILI_HEALTH_INTERVAL", 30*time.Second))
	} else {
		logger.Info("search uses postgres only (MEILI_URL unset)")
	}
	searchSvc := search.NewService(meili, search.NewPostgres(pool), logger)

	resources := crud.Resources()
	records, err := crud.Lookup(resources, "records")
	if err != nil {
		panic(err)
	}
	configRepo := configs.NewRepository()

	search.NewHandler(searchSvc, meili, logger).Register(mux)
	imports.NewHandler(pool, records, indexer, logger).Register(mux)
	crud.NewHandler(pool, crud.NewStore(), resources, indexer, logger).Register(mux)
	configs.NewHandler(pool, configRepo, logger).Register(mux)
	metricsRepo := metrics.NewRepository()
	metrics.NewHandler(pool, metricsRepo, logger).Register(mux)

	apiKey := config.String("ASSISTANT_API_KEY", "")
	llm := assistant.NewClient(assistant.ClientConfig{
		BaseURL: config.String("ASSISTANT_BASE_URL", ""),
		APIKey:  apiKey,
		Model:   config.String("ASSISTANT_MODEL", ""),
		Timeout: config.Duration("ASSISTANT_TIMEOUT", 45*time.Second),
	})
	assistant.NewHandler(pool, configRepo, assistant.NewStore(), llm, apiKey != "", logger).Register(mux)

	mediaCfg := media.Config{
		Endpoint:      config.String("MINIO_ENDPOINT", ""),
		AccessKey:     config.String("MINIO_ACCESS_KEY", ""),
		SecretKey:     config.String("MINIO_SECRET_KEY", ""),
		Bucket:        config.String("MINIO_BUCKET", "bizdash-media"),
		Region:        config.String("MINIO_REGION", "us-east-1"),
		UseSSL:        config.Bool("MINIO_USE_SSL", false),
		PublicBaseURL: config.String("MEDIA_PUBLIC_BASE_URL", ""),
		MaxBytes:      config.Int64("MEDIA_MAX_BYTES", 100<<20),
	}
	if mediaCfg.Endpoint != "" {
		store, err := media.NewClient(mediaCfg)
		if err != nil {
			panic(err)
		}
		if err := media.EnsureBucket(ctx, store, mediaCfg.Bucket, mediaCfg.Region); err != nil {
			logger.Warn("media bucket check failed", "bucket", mediaCfg.Bucket, "err", err)
		}
		checks = append(checks, runtime.ReadyCheck{Name: "media", Check: media.ReadyCheck(store, mediaCfg.Bucket)})
		media.NewHandler(store, mediaCfg, logger).Register(mux)
	} else {
		logger.Info("media uploads disabled (MINIO_ENDPOINT unset)")
		media.NewHandler(nil, mediaCfg, logger).Register(mux)
	}

	socialRepo := social.NewRepository()
	socialPublisher := social.NewPublisher(pool, socialRepo,
		social.NewGraph(config.String("SOCIAL_GRAPH_URL", social.DefaultGraphURL), config.Duration("SOCIAL_GRAPH_TIMEOUT", 20*time.Second)),
		logger, social.PublisherConfig{
			Interval:  config.Duration("SOCIAL_POLL_INTERVAL", 30*time.Second),
			BatchSize: config.Int("SOCIAL_BATCH_SIZE", 20),
		})
	social.NewHandler(pool, socialRepo, socialPublisher, logger).Register(mux)
	if config.Bool("SOCIAL_WORKER_ENABLED", true) {
		go socialPublisher.Run(ctx)
	}

	if rdb := redisx.FromEnv(); rdb != nil {
		defer func() { _ = rdb.Close() }()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
		attempts := httpx.NewRedisRateLimiter(rdb,
			config.Int("PORTAL_LOGIN_ATTEMPTS", 5),
			config.Duration("PORTAL_LOGIN_WINDOW", 15*time.Minute),
			"portal_login")
		sessions := portal.NewSessionStore(rdb, config.Duration("PORTAL_SESSION_TTL", 24*time.Hour))
		portal.NewHandler(pool, portal.NewRepository(), sessions, attempts, logger).Register(mux)
	} else {
		logger.Warn("client portal disabled (REDIS_ADDR unset)")
	}

	if brokers != "" {
		groupID := config.String("KAFKA_GROUP_ID", service)
		bookings := consumer.NewBookings(pool, indexer, logger)
		c := kafkax.NewConsumer(logger, inbox.NewRepository(pool, groupID), kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: groupID,
			Topics:  []string{events.AppointmentBooked, events.OrderPlaced},
		}, bookings.Handle)
		go c.Run(ctx)

		// Daily counters read the same events under their own group.
		metricsGroup := groupID + "-metrics"
		mc := kafkax.NewConsumer(logger, inbox.NewRepository(pool, metricsGroup), kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: metricsGroup,
			Topics:  metrics.Topics,
		}, metrics.NewConsumer(pool, metricsRepo, logger).Handle)
		go mc.Run(ctx)
	}

	grpcSrv, healthSrv := grpcx.NewServer(service, logger)
	go func() {
		if err := grpcx.Serve(ctx, grpcSrv, healthSrv, ":"+config.String("GRPC_PORT", "9082"), logger); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	base := runtime.NewBaseMuxWithReady(checks...)
	base.Handle("/api/", mux)

	httpHandler := httpx.Chain(base,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(config.Int("BODY_LIMIT_BYTES", 12<<20))),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "dashboard")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runtime.ServeHTTP(ctx, srv, logger, config.Duration("SHUTDOWN_GRACE", 10*time.Second))
}
