package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/bizdash/libs/auth"
	"github.com/md-rashed-zaman/bizdash/libs/config"
	"github.com/md-rashed-zaman/bizdash/libs/grpcx"
	"github.com/md-rashed-zaman/bizdash/libs/httpx"
	otelx "github.com/md-rashed-zaman/bizdash/libs/otel"
	"github.com/md-rashed-zaman/bizdash/libs/redisx"
	"github.com/md-rashed-zaman/bizdash/libs/runtime"
)

func main() {
	_ = config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "gateway-service")
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

	verifierCfg := auth.VerifierConfig{
		HS256Secret: config.String("JWT_SECRET", ""),
		Issuer:      config.String("JWT_ISSUER", ""),
		Audience:    config.String("JWT_AUDIENCE", ""),
		Leeway:      config.Duration("JWT_LEEWAY", 30*time.Second),
	}
	if jwksURL := config.String("JWKS_URL", ""); jwksURL != "" {
		verifierCfg.JWKS = auth.NewJWKSClient(jwksURL, config.Duration("JWKS_CACHE_TTL", 5*time.Minute), nil)
	}
	if verifierCfg.HS256Secret == "" && verifierCfg.JWKS == nil {
		logger.Warn("neither JWT_SECRET nor JWKS_URL set; every authenticated route will return 401")
	}
	verifier := auth.NewVerifier(verifierCfg)

	// Readiness follows the downstream gRPC health endpoints.
	var checks []runtime.ReadyCheck
	for _, target := range []struct{ name, env, addr string }{
		{"dashboard-service", "DASHBOARD_GRPC_ADDR", "dashboard-service:9082"},
		{"booking-service", "BOOKING_GRPC_ADDR", "booking-service:9083"},
		{"billing-service", "BILLING_GRPC_ADDR", "billing-service:9084"},
	} {
		addr := config.String(target.env, target.addr)
		if addr == "" {
			continue
		}
		conn, err := grpcx.Dial(addr, grpcx.DialOptions{KeepaliveTime: config.Duration("GRPC_KEEPALIVE", 30*time.Second)})
		if err != nil {
			logger.Error("grpc dial failed", "err", err, "target", target.name)
			continue
		}
		defer func() { _ = conn.Close() }()
		checks = append(checks, runtime.ReadyCheck{Name: target.name, Check: grpcx.HealthReadyCheck(conn, target.name)})
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	registerRoutes(mux, upstreams{
		Dashboard: mustParseURL(config.String("DASHBOARD_URL", "http://dashboard-service:8082")),
		Booking:   mustParseURL(config.String("BOOKING_URL", "http://booking-service:8083")),
		Billing:   mustParseURL(config.String("BILLING_URL", "http://billing-service:8084")),
	}, verifier)

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if limitPerMinute <= 0 {
		limitPerMinute = 120
	}
	var rateLimitMW httpx.Middleware
	if rdb := redisx.FromEnv(); rdb != nil {
		defer func() { _ = rdb.Close() }()
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute)
	} else {
		rateLimitMW = httpx.NewRateLimiter(limitPerMinute, time.Minute).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	allowedHeaders := config.List("CORS_ALLOWED_HEADERS")
	if len(allowedHeaders) == 0 {
		allowedHeaders = []string{"Authorization", "Content-Type", "X-Request-Id", "Idempotency-Key"}
	}
	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS"),
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   allowedHeaders,
			ExposedHeaders:   []string{"X-Request-Id", "Idempotent-Replayed", "Retry-After"},
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(config.Int("BODY_LIMIT_BYTES", 12<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 30*time.Second)),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runtime.ServeHTTP(ctx, srv, logger, config.Duration("SHUTDOWN_GRACE", 10*time.Second))
}
