// Package main runs the audit pipeline worker: it drains the shared event
// queue into PostgreSQL, optionally re-queues dead-lettered events, and
// reports pipeline health once a minute.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"filegate/internal/audit"
	"filegate/internal/audit/consumer"
	auditmetrics "filegate/internal/audit/metrics"
	"filegate/internal/platform/config"
	"filegate/internal/platform/database"
	"filegate/internal/platform/health"
	"filegate/internal/platform/logger"
	platformredis "filegate/internal/platform/redis"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing audit worker",
		"addr", cfg.Worker.Addr,
		"dead_letter_enabled", cfg.Worker.DeadLetterEnabled,
	)

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

	if cfg.Database.URL == "" {
		log.Error("FILEGATE_DATABASE_URL is required")
		os.Exit(1)
	}
	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.Database.URL
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	log.Info("running database migrations")
	if err := pool.Migrate(); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	queue := audit.NewRedisQueue(rdb.Client,
		audit.WithFailedQueueCap(int64(cfg.Worker.FailedQueueCap)),
	)
	store := audit.NewPostgres(pool.DB())
	m := auditmetrics.New()

	consumerCfg := consumer.DefaultConfig()
	consumerCfg.PopTimeout = cfg.Worker.QueuePopTimeout
	consumerCfg.FlushBudget = cfg.Worker.FlushInterval
	c := consumer.New(queue, store, consumerCfg,
		consumer.WithLogger(log),
		consumer.WithMetrics(m),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.Run(ctx)
	})

	// One designated instance retries dead-lettered events; running it on
	// every replica would only shuffle the same entries around.
	if cfg.Worker.DeadLetterEnabled {
		dlq := consumer.NewDeadLetterLoop(queue, cfg.Worker.DeadLetterInterval, cfg.Worker.DeadLetterBatch,
			consumer.WithDeadLetterLogger(log),
			consumer.WithDeadLetterMetrics(m),
			consumer.WithSharedStats(c.Stats()),
		)
		g.Go(func() error {
			return dlq.Run(ctx)
		})
	}

	reporter := consumer.NewReporter(rdb.Client, queue, c, cfg.Worker.ReportInterval,
		consumer.WithReporterLogger(log),
		consumer.WithReporterMetrics(m),
	)
	g.Go(func() error {
		return reporter.Run(ctx)
	})

	healthHandler := health.New("worker")
	healthHandler.RegisterCheck("redis", func() error {
		checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return rdb.Health(checkCtx)
	})
	healthHandler.RegisterCheck("database", func() error {
		checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return pool.Health(checkCtx)
	})

	srv := newOpsServer(cfg.Worker.Addr, healthHandler)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker stopped with error", "error", err)
		os.Exit(1)
	}

	stats := c.Stats()
	log.Info("audit worker stopped",
		"inserted", stats.Inserted.Load(),
		"insert_failures", stats.InsertFailures.Load(),
		"dropped", stats.Dropped.Load(),
		"requeued", stats.Requeued.Load(),
	)
}

// newOpsServer exposes health probes and Prometheus metrics for the worker.
func newOpsServer(addr string, h *health.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.HandleStatus)
	mux.HandleFunc("/health/live", h.HandleLiveness)
	mux.HandleFunc("/health/ready", h.HandleReadiness)
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
