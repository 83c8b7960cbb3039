package cmd

import (
	"context"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	inhttp "github.com/mcpwatch/gateway/internal/adapter/inbound/http"
	inquery "github.com/mcpwatch/gateway/internal/adapter/inbound/query"
	"github.com/mcpwatch/gateway/internal/adapter/outbound/memory"
	"github.com/mcpwatch/gateway/internal/adapter/outbound/sqlite"
	"github.com/mcpwatch/gateway/internal/adapter/outbound/state"
	"github.com/mcpwatch/gateway/internal/config"
	"github.com/mcpwatch/gateway/internal/domain/session"
	"github.com/mcpwatch/gateway/internal/domain/upstream"
	"github.com/mcpwatch/gateway/internal/service"
	"github.com/mcpwatch/gateway/internal/telemetry"
)

var devMode bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	Long: `Start the mcpwatch observability gateway.

Every registered upstream becomes reachable at /servers/<name>/mcp; the
gateway forwards traffic unmodified while recording each exchange for the
query API.

Examples:
  # Start with config file settings
  mcpwatch serve

  # Start with a specific config file
  mcpwatch --config /path/to/mcpwatch.yaml serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging, permissive origins)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// stop() restores default signal handling so a second Ctrl+C does a
	// hard kill instead of waiting on graceful shutdown again.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logger := telemetry.NewLogger(cfg.Server.LogLevel, cfg.DevMode)
	logger.Debug("log level configured", "level", cfg.Server.LogLevel)
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	providers, err := telemetry.Setup(ctx, "mcpwatch-gateway", Version, os.Stderr, cfg.DevMode)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}
	logger.Info("mcpwatch stopped")
	return nil
}

// run wires every component (C1-C9) together and serves until ctx is
// cancelled, mirroring the teacher's BOOT-01..BOOT-09 staged startup.
func run(ctx context.Context, cfg *config.GatewayConfig, logger *slog.Logger) error {
	// ===== BOOT-01: registry persistence =====
	stateStore := state.NewFileStateStore(cfg.Registry.Path, logger)
	registryState, err := stateStore.Load()
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	upstreamStore := memory.NewUpstreamStore()
	if !stateStore.Exists() && len(cfg.Registry.Upstreams) > 0 {
		seedRegistry(ctx, upstreamStore, cfg.Registry.Upstreams, logger)
		seeded, _ := upstreamStore.List(ctx)
		for _, s := range seeded {
			registryState.Upstreams = append(registryState.Upstreams, state.UpstreamEntry{
				Name: s.Name, URL: s.URL, Headers: s.Headers, LastActivity: s.LastActivity,
				ExchangeCount: s.ExchangeCount, Health: string(s.Health), LastHealthCheck: s.LastHealthCheck,
				CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt,
			})
		}
	} else {
		restoreRegistry(ctx, upstreamStore, registryState.Upstreams, logger)
	}
	if err := stateStore.Save(registryState); err != nil {
		return fmt.Errorf("failed to save registry: %w", err)
	}

	// ===== BOOT-02: capture store (C1) =====
	db, err := sqlite.Open(ctx, cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer db.Close()
	writer := sqlite.NewWriter(db, logger)
	defer writer.Close()

	// ===== BOOT-03: session-state store (C2) =====
	requestTTL, err := time.ParseDuration(cfg.Session.RequestTTL)
	if err != nil {
		return fmt.Errorf("invalid session.request_ttl: %w", err)
	}
	cleanupInterval, err := time.ParseDuration(cfg.Session.CleanupInterval)
	if err != nil {
		return fmt.Errorf("invalid session.cleanup_interval: %w", err)
	}
	sessionStore := session.New(requestTTL, cleanupInterval)
	defer sessionStore.Close()

	// ===== BOOT-04: health checker (C7) =====
	healthInterval, err := time.ParseDuration(cfg.HealthCheck.Interval)
	if err != nil {
		return fmt.Errorf("invalid health_check.interval: %w", err)
	}
	healthChecker := service.NewHealthChecker(upstreamStore, db, healthInterval, logger)
	healthChecker.SetConcurrency(cfg.HealthCheck.Concurrency)
	if probeTimeout, err := time.ParseDuration(cfg.HealthCheck.ProbeTimeout); err == nil {
		healthChecker.SetProbeTimeout(probeTimeout)
	}
	healthChecker.Start(ctx)
	defer healthChecker.Stop()

	// ===== BOOT-05: metrics and transport =====
	reg := prometheus.NewRegistry()
	metrics := inhttp.NewMetrics(reg)
	metrics.RegisteredUpstreams.Set(float64(len(registryState.Upstreams)))

	proxyHandler := inhttp.NewProxyHandler(upstreamStore, sessionStore, writer, metrics, logger)
	if proxyTimeout, err := time.ParseDuration(cfg.Server.ProxyTimeout); err == nil {
		proxyHandler.SetTimeout(proxyTimeout)
	}
	queryHandler := inquery.NewHandler(db, sessionStore, logger)
	liveness := inhttp.NewHealthChecker(Version)

	mux := stdhttp.NewServeMux()
	queryHandler.Routes(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("GET /health", liveness.Handler())
	mux.Handle("/", proxyHandler)

	handler := stdhttp.Handler(mux)
	handler = inhttp.MetricsMiddleware(metrics)(handler)
	handler = inhttp.DNSRebindingProtection(cfg.Server.AllowedOrigins)(handler)
	handler = inhttp.RealIPMiddleware(handler)
	handler = inhttp.RequestIDMiddleware(logger)(handler)

	server := &stdhttp.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: handler,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.Server.HTTPAddr, "dev_mode", cfg.DevMode)
		if err := server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownGrace, err := time.ParseDuration(cfg.Server.ShutdownGracePeriod)
	if err != nil {
		shutdownGrace = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	logger.Info("shutting down", "grace_period", shutdownGrace)
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed, forcing close", "error", err)
		return server.Close()
	}
	return nil
}

// seedRegistry populates an empty registry from config.registry.upstreams,
// used only on first boot (§4.1: the registry file is authoritative once it
// exists).
func seedRegistry(ctx context.Context, store *memory.UpstreamStore, seeds []config.UpstreamSeed, logger *slog.Logger) {
	for _, seed := range seeds {
		srv := &upstream.McpServer{Name: seed.Name, URL: seed.URL, Headers: seed.Headers}
		if err := store.Add(ctx, srv); err != nil {
			logger.Warn("failed to seed upstream", "name", seed.Name, "error", err)
			continue
		}
		logger.Info("seeded upstream from config", "name", seed.Name, "url", seed.URL)
		if dupes, err := store.DuplicateHeaderSets(ctx, seed.Name); err == nil && len(dupes) > 0 {
			logger.Warn("upstream shares its static header set with another registered upstream", "name", seed.Name, "duplicates", dupes)
		}
	}
}

// restoreRegistry replays a previously persisted registry snapshot into the
// in-memory store at boot.
func restoreRegistry(ctx context.Context, store *memory.UpstreamStore, entries []state.UpstreamEntry, logger *slog.Logger) {
	for _, e := range entries {
		srv := &upstream.McpServer{
			Name:            e.Name,
			URL:             e.URL,
			Headers:         e.Headers,
			LastActivity:    e.LastActivity,
			ExchangeCount:   e.ExchangeCount,
			Health:          upstream.Health(e.Health),
			LastHealthCheck: e.LastHealthCheck,
			CreatedAt:       e.CreatedAt,
			UpdatedAt:       e.UpdatedAt,
		}
		if srv.Health == "" {
			srv.Health = upstream.HealthUnknown
		}
		if err := store.Add(ctx, srv); err != nil {
			logger.Warn("failed to restore upstream", "name", e.Name, "error", err)
		}
	}
	logger.Info("registry restored", "upstreams", len(entries))
}
