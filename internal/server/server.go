// Package server wires all statevault components and creates the MCP
// server instance.
//
// This is the composition root: it opens the configured backing store,
// builds the persistence manager and migration runner, boots the live state
// and injects it into the tools and resources that depend on it. No
// business logic lives here, only wiring.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/HendryAvila/statevault/internal/config"
	"github.com/HendryAvila/statevault/internal/lifecycle"
	"github.com/HendryAvila/statevault/internal/migrations"
	"github.com/HendryAvila/statevault/internal/persistence"
	"github.com/HendryAvila/statevault/internal/prompts"
	"github.com/HendryAvila/statevault/internal/resources"
	"github.com/HendryAvila/statevault/internal/statetools"
	"github.com/HendryAvila/statevault/internal/storage"
	"github.com/HendryAvila/statevault/internal/telemetry"
)

// Version is set at build time via ldflags.
var Version = "dev"

// openStore is replaceable in tests.
var openStore = storage.Open

// App holds the components built from a Config.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Vault    *lifecycle.Vault
	Recorder *telemetry.Recorder

	// Registry is nil unless metrics are enabled.
	Registry *prometheus.Registry

	// TracerProvider is nil unless a trace exporter is configured.
	TracerProvider *sdktrace.TracerProvider

	// Boot is the result of loading persisted state at startup.
	Boot *lifecycle.Result
}

// Build opens storage and boots the live state. The returned cleanup
// function closes the store; it is always non-nil and safe to call even if
// Build failed.
//
// A migration failure is not fatal: the app starts on the last fully
// applied version and the error is logged.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, func(), error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := cfg.Validate(); err != nil {
		return nil, noop, err
	}

	app := &App{Config: cfg, Logger: logger, Recorder: &telemetry.Recorder{}}

	// --- Error tracking ---

	reporters := []telemetry.ErrorReporter{
		app.Recorder,
		telemetry.LogReporter{Logger: logger.With("component", "telemetry")},
		telemetry.SpanReporter{},
	}
	if cfg.Metrics {
		app.Registry = prometheus.NewRegistry()
		app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		reporters = append(reporters, telemetry.NewPrometheusReporter(app.Registry))
	}
	reporter := telemetry.Multi(reporters...)

	// --- Tracing ---

	tp, err := telemetry.NewTracerProvider(cfg.TracingConfig(Version))
	if err != nil {
		return nil, noop, err
	}
	shutdownTracing := noop
	if tp != nil {
		otel.SetTracerProvider(tp)
		app.TracerProvider = tp
		shutdownTracing = func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("flushing spans", "error", err)
			}
		}
	}

	// --- Storage ---

	opts := cfg.StorageOptions()
	opts.Logger = logger.With("component", "storage")
	store, closeStore, err := openStore(opts)
	if err != nil {
		shutdownTracing()
		return nil, noop, fmt.Errorf("opening %s store: %w", cfg.Backend, err)
	}
	cleanup := func() {
		if err := closeStore(); err != nil {
			logger.Warn("closing store", "error", err)
		}
		shutdownTracing()
	}

	// --- Persistence + migrations ---

	manager := persistence.New(store,
		persistence.WithReporter(reporter),
		persistence.WithLogger(logger.With("component", "persistence")),
	)
	runner, err := migrations.NewDefaultRunner(
		migrations.WithReporter(reporter),
		migrations.WithLogger(logger.With("component", "migrations")),
		migrations.WithTracerProvider(otel.GetTracerProvider()),
	)
	if err != nil {
		cleanup()
		return nil, noop, fmt.Errorf("building migration runner: %w", err)
	}

	app.Vault = lifecycle.NewVault(manager, runner, logger.With("component", "lifecycle"))

	res, err := app.Vault.Boot(ctx, nil)
	if err != nil {
		if res == nil {
			cleanup()
			return nil, noop, fmt.Errorf("loading state: %w", err)
		}
		logger.Error("migration failed, continuing on last applied version",
			"version", res.Envelope.Version(), "error", err)
	}
	app.Boot = res

	return app, cleanup, nil
}

// New builds the app and an MCP server with every tool and resource
// registered. The returned cleanup function must be called on shutdown.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*server.MCPServer, *App, func(), error) {
	app, cleanup, err := Build(ctx, cfg, logger)
	if err != nil {
		return nil, nil, cleanup, err
	}

	s := server.NewMCPServer(
		"statevault",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	registerStateTools(s, app)

	// --- Register prompts ---

	healthPrompt := prompts.NewHealthPrompt()
	s.AddPrompt(healthPrompt.Definition(), healthPrompt.Handle)

	inspectPrompt := prompts.NewInspectPrompt()
	s.AddPrompt(inspectPrompt.Definition(), inspectPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(app.Vault)
	s.AddResource(resourceHandler.SnapshotResource(), resourceHandler.HandleSnapshot)
	s.AddResource(resourceHandler.StateResource(), resourceHandler.HandleState)

	return s, app, cleanup, nil
}

// registerStateTools registers the state MCP tools with the server.
func registerStateTools(s *server.MCPServer, app *App) {
	getTool := statetools.NewGetTool(app.Vault)
	s.AddTool(getTool.Definition(), getTool.Handle)

	versionTool := statetools.NewVersionTool(app.Vault)
	s.AddTool(versionTool.Definition(), versionTool.Handle)

	migrateTool := statetools.NewMigrateTool(app.Vault)
	s.AddTool(migrateTool.Definition(), migrateTool.Handle)

	setTool := statetools.NewSetControllerTool(app.Vault)
	s.AddTool(setTool.Definition(), setTool.Handle)

	diagTool := statetools.NewDiagnosticsTool(app.Vault, app.Recorder)
	s.AddTool(diagTool.Definition(), diagTool.Handle)
}

// ServeMetrics serves app.Registry on cfg.MetricsAddr until ctx is done.
// It returns immediately when metrics are disabled.
func ServeMetrics(ctx context.Context, app *App) error {
	if app.Registry == nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              app.Config.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.Logger.Info("serving metrics", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// noop is the cleanup returned when nothing was opened.
func noop() {}

// serverInstructions returns the system instructions that tell the AI
// how to use statevault.
func serverInstructions() string {
	return `You have access to statevault, a developer tool over a wallet's persisted state.

## What it holds
The state is a versioned envelope: {"meta": {"version": N}, "data": {"<ControllerName>": ...}}.
meta.version is the highest schema migration applied to data.

## Tools
- state_get: read the whole envelope or one controller.
- state_version: current version, latest known migration, pending migrations.
- state_migrate: re-read storage and apply pending migrations, persisting after each step.
- state_set_controller: replace one controller's state (value is JSON) and persist.
- state_diagnostics: persistence health and captured exceptions.

## Prompts
- state-health: version and persistence health summary.
- state-inspect: explain one controller's state.

## Resources
- statevault://state/current: the live envelope.
- statevault://diagnostics/snapshot: the envelope read before the first write of this session.

## Notes
- Write failures never fail a tool call. Check state_diagnostics after writes if durability matters.
- A migration that finds unexpected state leaves it unchanged and reports a diagnostic
  instead of failing.`
}
