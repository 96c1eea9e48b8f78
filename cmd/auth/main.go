package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/anonymouswhite07/bulkwala-backend/internal/config"
	"github.com/anonymouswhite07/bulkwala-backend/internal/events"
	"github.com/anonymouswhite07/bulkwala-backend/internal/handlers"
	"github.com/anonymouswhite07/bulkwala-backend/internal/health"
	"github.com/anonymouswhite07/bulkwala-backend/internal/httpmiddleware"
	"github.com/anonymouswhite07/bulkwala-backend/internal/logging"
	"github.com/anonymouswhite07/bulkwala-backend/internal/metrics"
	"github.com/anonymouswhite07/bulkwala-backend/internal/otp"
	"github.com/anonymouswhite07/bulkwala-backend/internal/rate"
	"github.com/anonymouswhite07/bulkwala-backend/internal/storage"
	"github.com/anonymouswhite07/bulkwala-backend/internal/trace"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.App.LogLevel, cfg.App.ServiceName, cfg.App.Env)
	shutdownTracer, err := trace.InitTracer(cfg.App.ServiceName, cfg.App.Env)
	if err != nil {
		logger.Error("tracer init failed", "error", err)
	} else {
		defer func() {
			_ = shutdownTracer(context.Background())
		}()
	}

	if cfg.App.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	ready := health.NewManager()

	pool, err := connectDB(cfg)
	if err != nil {
		logger.Error("db connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	ready.SetComponent("postgres", true)

	redisClient, err := connectRedis(cfg, logger)
	if err != nil {
		logger.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		ready.SetComponent("redis", true)
	}

	var limiter rate.Limiter
	var otpStore handlers.OTPStore
	if redisClient != nil {
		limiter = rate.NewRedisLimiter(redisClient, cfg.RateLimit.LoginLimit, cfg.RateLimit.Window, cfg.Redis.Prefix+"rl:")
		otpStore = otp.NewStore(redisClient, cfg.Redis.Prefix+"otp:", cfg.OTPTTL)
	} else {
		limiter = rate.NewMemory(cfg.RateLimit.LoginLimit, cfg.RateLimit.Window)
		otpStore = otp.NewMemoryStore(cfg.OTPTTL)
	}

	emitter, err := buildEmitter(cfg, logger, registry)
	if err != nil {
		logger.Error("kafka producer init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = emitter.Close()
	}()

	store := storage.New(pool)
	authHandler := handlers.NewAuthHandler(store, otpStore, logger, cfg, limiter, emitter)

	router := gin.New()
	router.Use(httpmiddleware.RequestID())
	router.Use(httpmiddleware.Logger(logger))
	router.Use(httpmiddleware.Recovery(logger))
	router.Use(trace.Middleware(cfg.App.ServiceName))

	router.GET("/healthz", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(ready))
	router.GET(cfg.App.MetricsPath, gin.WrapH(metrics.Handler(registry)))

	authHandler.RegisterRoutes(router)

	addr := fmt.Sprintf("%s:%d", cfg.App.HTTP.Host, cfg.App.HTTP.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
		IdleTimeout:  cfg.App.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("auth service starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(server, logger)
}

func connectDB(cfg *config.Config) (*pgxpool.Pool, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.DB.User,
		cfg.DB.Password,
		cfg.DB.Host,
		cfg.DB.Port,
		cfg.DB.Name,
		cfg.DB.SSLMode,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// connectRedis returns nil without error when Redis is unreachable in
// dev or test: the service falls back to in-memory rate limiting and
// OTP storage. In prod an unreachable Redis is fatal.
func connectRedis(cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if cfg.App.Env == "dev" || cfg.App.Env == "test" {
			logger.Warn("redis unavailable, falling back to memory stores", "error", err)
			return nil, nil
		}
		return nil, err
	}
	return client, nil
}

// buildEmitter returns a nil emitter when no brokers are configured;
// all emits become no-ops.
func buildEmitter(cfg *config.Config, logger *slog.Logger, registry *prometheus.Registry) (*events.Emitter, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Warn("kafka brokers not configured, auth events disabled")
		return nil, nil
	}

	producerMetrics := events.NewProducerMetrics(registry)
	producer, err := events.NewSyncProducer(cfg.Kafka.Brokers, logger, producerMetrics)
	if err != nil {
		return nil, err
	}

	publisher := events.NewDLQPublisher(producer, producer, cfg.Kafka.DLQTopic, logger)
	return events.NewEmitter(publisher, cfg.Kafka.EventsTopic, cfg.Kafka.NotificationsTopic, logger), nil
}

func waitForShutdown(server *http.Server, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutdown started")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		return
	}
	logger.Info("shutdown complete")
}
