package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	cfhttp "github.com/komodo-run/core/internal/adapter/http"
	cfotel "github.com/komodo-run/core/internal/adapter/otel"
	"github.com/komodo-run/core/internal/adapter/periphery"
	"github.com/komodo-run/core/internal/adapter/postgres"
	"github.com/komodo-run/core/internal/adapter/ristretto"
	"github.com/komodo-run/core/internal/adapter/ws"
	"github.com/komodo-run/core/internal/config"
	"github.com/komodo-run/core/internal/git"
	"github.com/komodo-run/core/internal/logger"
	"github.com/komodo-run/core/internal/middleware"
	"github.com/komodo-run/core/internal/resilience"
	"github.com/komodo-run/core/internal/secrets"
	"github.com/komodo-run/core/internal/service"
	"github.com/komodo-run/core/internal/service/actionstate"
)

func main() {
	// Temporary bootstrap logger until config is loaded.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// secretEnvKeys are the environment variables the vault watches: every
// value that must never come from checked-in YAML. A SIGHUP reloads them
// without a restart.
var secretEnvKeys = []string{
	"KOMODO_AUTH_JWT_SECRET",
	"KOMODO_AUTH_ADMIN_PASS",
	"KOMODO_WEBHOOK_GITHUB_SECRET",
	"KOMODO_WEBHOOK_GITLAB_TOKEN",
	"KOMODO_NOTIFICATION_SLACK_WEBHOOK_URL",
	"KOMODO_NOTIFICATION_DISCORD_WEBHOOK_URL",
}

// applySecrets copies the vault's current values onto the config's
// env-only fields. Services hold pointers into cfg, so a reload takes
// effect on their next read.
func applySecrets(cfg *config.Config, vault *secrets.Vault) {
	if v := vault.Get("KOMODO_AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := vault.Get("KOMODO_AUTH_ADMIN_PASS"); v != "" {
		cfg.Auth.DefaultAdminPass = v
	}
	if v := vault.Get("KOMODO_WEBHOOK_GITHUB_SECRET"); v != "" {
		cfg.Webhook.GitHubSecret = v
	}
	if v := vault.Get("KOMODO_WEBHOOK_GITLAB_TOKEN"); v != "" {
		cfg.Webhook.GitLabToken = v
	}
	if v := vault.Get("KOMODO_NOTIFICATION_SLACK_WEBHOOK_URL"); v != "" {
		cfg.Notification.SlackWebhookURL = v
	}
	if v := vault.Get("KOMODO_NOTIFICATION_DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Notification.DiscordWebhookURL = v
	}
}

func run() error {
	flags, err := config.ParseFlags(nil)
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	cfg, _, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// Replace bootstrap logger with configured one.
	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	vault, err := secrets.NewVault(secrets.EnvLoader(secretEnvKeys...))
	if err != nil {
		return fmt.Errorf("secret vault: %w", err)
	}
	applySecrets(cfg, vault)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
		"poll_interval", cfg.Monitoring.PollInterval,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- Observability ---
	otelShutdown, err := cfotel.InitTracer(cfotel.OTELConfig{
		Enabled:     cfg.OTEL.Enabled,
		Endpoint:    cfg.OTEL.Endpoint,
		ServiceName: cfg.OTEL.ServiceName,
		Insecure:    cfg.OTEL.Insecure,
		SampleRate:  cfg.OTEL.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	statusCache, err := ristretto.New(cfg.Cache.StatusMaxEntries * 1024)
	if err != nil {
		return fmt.Errorf("status cache: %w", err)
	}
	defer statusCache.Close()

	// One circuit breaker per Periphery address, so a dead host trips
	// alone while the rest keep flowing.
	breakers := newBreakerSet(cfg.Breaker)
	peripheryClient := periphery.NewFactory(cfg.Periphery.RequestTimeout, cfg.Periphery.DisableTLSVerify, breakers.forAddress)

	// --- Services ---
	store := postgres.NewStore(pool)
	perm := service.NewPermissionService(store, cfg.Auth.TransparentMode)
	resources := service.NewResources(store, perm)
	auth := service.NewAuthService(store, &cfg.Auth)

	hub := ws.NewHub(auth, perm, resources, cfg.Server.CORSOrigin)

	updates := service.NewUpdateService(store, hub)
	updates.SetMetrics(metrics)
	alerts := service.NewAlertService(store, hub, log)
	alerts.SetMetrics(metrics)

	registry := actionstate.NewRegistry()
	execute := service.NewExecuteService(store, resources, perm, registry, updates, peripheryClient, log)
	syncs := service.NewSyncService(store, resources, perm, updates, registry, git.NewPool(4), cfg.Sync, log)
	syncs.SetExecute(execute)
	syncs.SetAlerts(alerts)
	syncs.SetMetrics(metrics)
	execute.SetSyncs(syncs)
	execute.SetAlerts(alerts)

	webhooks := service.NewWebhookService(resources, execute, syncs, cfg.Webhook, log)

	monitor := service.NewMonitorService(store, statusCache, alerts, peripheryClient, cfg.Monitoring, log)
	monitor.SetMetrics(metrics)

	if err := auth.BootstrapAdmin(ctx); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	// --- Background loops ---
	go monitor.Run(ctx)
	auth.StartTokenCleanup(ctx, time.Hour)

	// SIGHUP reloads the secret vault in place.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := vault.Reload(); err != nil {
				slog.Error("secret reload failed", "error", err)
				continue
			}
			applySecrets(cfg, vault)
			slog.Info("secrets reloaded")
		}
	}()

	// --- HTTP ---
	handlers := &cfhttp.Handlers{
		Resources: resources,
		Execute:   execute,
		Sync:      syncs,
		Webhook:   webhooks,
		Auth:      auth,
		Perm:      perm,
		Updates:   updates,
		Alerts:    alerts,
		Store:     store,
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	r := chi.NewRouter()
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cfhttp.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(cfhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	if cfg.OTEL.Enabled {
		r.Use(cfotel.HTTPMiddleware(cfg.OTEL.ServiceName))
	}
	r.Use(limiter.Handler)
	r.Use(middleware.Auth(auth, cfg.Auth.Enabled))

	cfhttp.MountRoutes(r, handlers, hub)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done

	// --- Ordered Graceful Shutdown ---
	// Phase 1: stop accepting new HTTP requests (open websockets close
	// with the server).
	slog.Info("shutdown phase 1: stopping HTTP server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	// Phase 2: cancel background loops (monitor poll, token cleanup).
	slog.Info("shutdown phase 2: cancelling background loops")
	stop()

	// Phase 3: flush telemetry.
	slog.Info("shutdown phase 3: flushing telemetry")
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Error("otel shutdown error", "error", err)
	}

	// Phase 4: close database (last, so in-flight queries can complete).
	slog.Info("shutdown phase 4: closing database pool")
	pool.Close()

	slog.Info("shutdown complete")
	return nil
}

// breakerSet lazily builds one circuit breaker per Periphery address.
type breakerSet struct {
	cfg      config.Breaker
	mu       sync.Mutex
	breakers map[string]*resilience.Breaker
}

func newBreakerSet(cfg config.Breaker) *breakerSet {
	return &breakerSet{cfg: cfg, breakers: make(map[string]*resilience.Breaker)}
}

func (s *breakerSet) forAddress(address string) *resilience.Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[address]
	if !ok {
		b = resilience.NewBreaker(s.cfg.MaxFailures, s.cfg.Timeout)
		s.breakers[address] = b
	}
	return b
}
