// Package main wires the gateway binary: admission middleware, file routes,
// background telemetry, and the HTTP server lifecycle. Business logic lives
// in internal packages; main only composes them.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"filegate/internal/audit"
	"filegate/internal/files"
	"filegate/internal/platform/config"
	"filegate/internal/platform/database"
	"filegate/internal/platform/health"
	"filegate/internal/platform/logger"
	"filegate/internal/platform/middleware"
	platformredis "filegate/internal/platform/redis"
	ratelimitconfig "filegate/internal/ratelimit/config"
	"filegate/internal/ratelimit/guard"
	ratelimitmetrics "filegate/internal/ratelimit/metrics"
	"filegate/internal/ratelimit/store/memory"
	redisstore "filegate/internal/ratelimit/store/redis"
	"filegate/internal/ratelimit/workers/quotareset"
	"filegate/internal/signature"
	httptransport "filegate/internal/transport/http"
	"filegate/internal/usage"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing filegate gateway",
		"addr", cfg.Gateway.Addr,
		"environment", cfg.Gateway.Environment,
		"fail_open", cfg.Gateway.FailOpen,
	)

	if cfg.Gateway.GatewayTokenKey == "" {
		log.Error("FILEGATE_GATEWAY_TOKEN_KEY is required")
		os.Exit(1)
	}
	if cfg.Gateway.OperatorTokenHash == "" {
		log.Error("FILEGATE_OPERATOR_TOKEN_HASH is required")
		os.Exit(1)
	}

	rdb, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if rdb == nil {
		log.Error("FILEGATE_REDIS_URL is required")
		os.Exit(1)
	}
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shared := redisstore.New(rdb.Client)

	guardCfg := ratelimitconfig.DefaultConfig()
	guardCfg.FailOpen = cfg.Gateway.FailOpen
	g, err := guard.New(guardCfg, memory.New(), shared,
		guard.WithLogger(log),
		guard.WithMetrics(ratelimitmetrics.New()),
	)
	if err != nil {
		log.Error("guard init failed", "error", err)
		os.Exit(1)
	}

	aggregator := usage.NewAggregator(usage.NewRedisStore(rdb.Client), usage.WithLogger(log))
	go func() {
		if err := aggregator.Start(ctx); err != nil {
			log.Error("usage aggregator stopped", "error", err)
		}
	}()

	queue := audit.NewRedisQueue(rdb.Client)
	publisher := audit.NewPublisher(queue, audit.WithPublisherLogger(log))
	defer publisher.Close()

	store, err := files.NewLocal(cfg.Gateway.DataDir, log)
	if err != nil {
		log.Error("file storage init failed", "error", err)
		os.Exit(1)
	}

	healthHandler := health.New(cfg.Gateway.Environment)
	healthHandler.RegisterCheck("redis", func() error {
		checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return rdb.Health(checkCtx)
	})

	// Without a database the reset worker still serves the admin endpoint,
	// it just sees no tenants.
	var tenants quotareset.TenantSource = quotareset.StaticTenantSource{}
	if cfg.Database.URL != "" {
		dbCfg := database.DefaultConfig()
		dbCfg.URL = cfg.Database.URL
		pool, err := database.New(dbCfg)
		if err != nil {
			log.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		tenants = quotareset.NewPostgresTenantSource(pool.DB())
		healthHandler.RegisterCheck("database", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(checkCtx)
		})
	}

	reset := quotareset.New(tenants, shared, publisher, quotareset.WithLogger(log))
	go func() {
		if err := reset.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("quota reset worker stopped", "error", err)
		}
	}()

	go recordPoolStats(ctx, rdb)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:            log,
		Handler:           httptransport.NewHandler(store, log),
		Admin:             httptransport.NewAdminHandler(reset),
		Admission:         middleware.NewAdmission(signature.New(), g, aggregator, publisher, middleware.WithAdmissionLogger(log)),
		IdentityKey:       []byte(cfg.Gateway.GatewayTokenKey),
		OperatorTokenHash: cfg.Gateway.OperatorTokenHash,
		Health:            healthHandler,
	})

	srv := &http.Server{
		Addr:              cfg.Gateway.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("starting http server", "addr", cfg.Gateway.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("gateway stopped", "dropped_audit_events", publisher.Dropped())
}

// recordPoolStats publishes Redis pool gauges once a minute.
func recordPoolStats(ctx context.Context, rdb *platformredis.Client) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rdb.RecordPoolStats()
		}
	}
}
