package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	hmhttp "github.com/Strob0t/HomeMonitor/internal/adapter/http"
	"github.com/Strob0t/HomeMonitor/internal/adapter/mqtt"
	hmnats "github.com/Strob0t/HomeMonitor/internal/adapter/nats"
	"github.com/Strob0t/HomeMonitor/internal/adapter/natskv"
	hmotel "github.com/Strob0t/HomeMonitor/internal/adapter/otel"
	"github.com/Strob0t/HomeMonitor/internal/adapter/postgres"
	"github.com/Strob0t/HomeMonitor/internal/adapter/redis"
	"github.com/Strob0t/HomeMonitor/internal/adapter/ristretto"
	"github.com/Strob0t/HomeMonitor/internal/adapter/tiered"
	"github.com/Strob0t/HomeMonitor/internal/adapter/ws"
	"github.com/Strob0t/HomeMonitor/internal/config"
	"github.com/Strob0t/HomeMonitor/internal/logger"
	"github.com/Strob0t/HomeMonitor/internal/middleware"
	"github.com/Strob0t/HomeMonitor/internal/port/cache"
	"github.com/Strob0t/HomeMonitor/internal/port/messagequeue"
	"github.com/Strob0t/HomeMonitor/internal/service"
)

const rateLimitCleanup = time.Minute

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigFile, "YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closer := logger.New(cfg.Logging)
	defer closer.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
		"nats", cfg.NATS.URL != "",
		"mqtt", cfg.MQTT.Broker != "",
		"l2_cache", cfg.Cache.L2Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---

	shutdownOTEL, err := hmotel.Setup(ctx, cfg.Logging.Service, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	metrics, err := hmotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS (optional)
	var queue *hmnats.Queue
	if cfg.NATS.URL != "" {
		queue, err = hmnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() {
			if err := queue.Drain(); err != nil {
				slog.Warn("nats drain", "error", err)
			}
		}()
	}

	// Stats cache: in-process L1, optional shared L2.
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("ristretto: %w", err)
	}
	defer l1.Close()

	statsCache, closeCache, err := buildStatsCache(ctx, cfg, l1, queue)
	if err != nil {
		return err
	}
	defer closeCache()

	// --- Services ---

	hub := ws.NewHub(
		ws.WithSendTimeout(cfg.Broadcast.SendTimeout),
		ws.WithMaxParallel(cfg.Broadcast.MaxParallel),
		ws.WithMetrics(metrics),
	)
	store := postgres.NewStore(pool)

	statsSvc := service.NewStatsService(store, hub, statsCache, cfg.Cache.StatsTTL)
	alertSvc := service.NewAlertService(store, hub)
	alertSvc.SetStats(statsSvc)
	alertSvc.SetMetrics(metrics)
	if queue != nil {
		alertSvc.SetQueue(queue)
	}

	httpLimiter := middleware.NewRateLimiter(cfg.Ingest.Rate, cfg.Ingest.Burst)
	sensorLimiter := middleware.NewRateLimiter(cfg.Ingest.Rate, cfg.Ingest.Burst)
	httpLimiter.StartCleanup(ctx, rateLimitCleanup)
	sensorLimiter.StartCleanup(ctx, rateLimitCleanup)

	ingestSvc := service.NewIngestService(alertSvc, sensorLimiter)

	// --- Ingest ---

	if queue != nil {
		cancelSub, err := queue.Subscribe(ctx, messagequeue.SubjectMotionDetected, ingestSvc.HandleQueue)
		if err != nil {
			return fmt.Errorf("queue subscriber: %w", err)
		}
		defer cancelSub()
	}

	if cfg.MQTT.Broker != "" {
		// Start waits only briefly; a down broker must not hold up the API.
		sub := mqtt.NewSubscriber(cfg.MQTT, ingestSvc.HandleMQTT)
		defer sub.Stop()
		if err := sub.Start(ctx); err != nil {
			return err
		}
	}

	// --- HTTP ---

	handlers := &hmhttp.Handlers{
		Alerts:  alertSvc,
		Stats:   statsSvc,
		Clients: hub,
		Checks:  healthChecks(pool, queue),
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(hmhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(hmhttp.SecurityHeaders)
	r.Use(hmhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(hmotel.HTTPMiddleware(cfg.Logging.Service))

	hmhttp.MountRoutes(r, handlers, hub.HandleWS, hmhttp.RouteOptions{
		RequestTimeout: cfg.Server.RequestTimeout,
		IngestLimit:    httpLimiter.Handler,
	})

	addr := ":" + cfg.Server.Port

	// No WriteTimeout: /ws responses live as long as the subscriber.
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// buildStatsCache returns the L1 cache alone, or L1 in front of the
// configured L2 backend.
func buildStatsCache(ctx context.Context, cfg *config.Config, l1 *ristretto.Cache, queue *hmnats.Queue) (cache.Cache, func(), error) {
	noop := func() {}

	switch cfg.Cache.L2Backend {
	case "nats":
		if queue == nil {
			return nil, noop, errors.New("cache: nats l2 backend requires a nats connection")
		}
		l2, err := natskv.Open(ctx, queue.JetStream(), cfg.NATS.KVBucket, cfg.Cache.StatsTTL)
		if err != nil {
			return nil, noop, fmt.Errorf("cache: %w", err)
		}
		slog.Info("stats cache", "l2", "nats", "bucket", cfg.NATS.KVBucket)
		return tiered.New(l1, l2, cfg.Cache.StatsTTL), noop, nil
	case "redis":
		rc, err := redis.Connect(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return nil, noop, fmt.Errorf("cache: %w", err)
		}
		slog.Info("stats cache", "l2", "redis")
		return tiered.New(l1, rc, cfg.Cache.StatsTTL), func() { _ = rc.Close() }, nil
	default:
		return l1, noop, nil
	}
}

// healthChecks builds the /health dependency probes.
func healthChecks(pool *pgxpool.Pool, queue *hmnats.Queue) map[string]hmhttp.HealthCheck {
	checks := map[string]hmhttp.HealthCheck{
		"postgres": pool.Ping,
	}
	if queue != nil {
		checks["nats"] = func(context.Context) error {
			if !queue.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}
	}
	return checks
}
