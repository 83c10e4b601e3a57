// Package app provides the main application struct for centralized dependency
// management and lifecycle control of the agentgate server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"agentgate/config"
	"agentgate/internal/agent"
	"agentgate/internal/auditlog"
	"agentgate/internal/functions"
	"agentgate/internal/providers"
	"agentgate/internal/server"
	"agentgate/internal/telemetry"
	"agentgate/internal/version"
)

// App represents the main application with all its dependencies.
type App struct {
	config     *config.Config
	registry   *functions.Registry
	providers  *providers.InitResult
	dispatcher *agent.Dispatcher
	calllog    *auditlog.Result
	server     *server.Server
	tracing    telemetry.ShutdownFunc

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the options for creating an App.
type Config struct {
	// AppConfig is the loaded application configuration.
	AppConfig *config.Config

	// Factory constructs the upstream provider.
	Factory *providers.ProviderFactory

	// Registry holds the callable functions. When nil, a registry with
	// the built-in functions is created.
	Registry *functions.Registry
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	if cfg.Factory == nil {
		return nil, fmt.Errorf("factory is required")
	}

	appCfg := cfg.AppConfig
	app := &App{config: appCfg}

	tracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        appCfg.Tracing.Enabled,
		ServiceName:    appCfg.Tracing.ServiceName,
		ServiceVersion: version.Version,
		Environment:    appCfg.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	app.tracing = tracing

	registry := cfg.Registry
	if registry == nil {
		registry, err = NewRegistry()
		if err != nil {
			return nil, errors.Join(err, app.Shutdown(ctx))
		}
	}
	app.registry = registry

	providerResult, err := providers.Init(appCfg, cfg.Factory)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to initialize provider: %w", err), app.Shutdown(ctx))
	}
	app.providers = providerResult
	app.dispatcher = agent.New(providerResult.Provider, registry)

	calllog, err := auditlog.New(ctx, appCfg)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to initialize call log: %w", err), app.Shutdown(ctx))
	}
	app.calllog = calllog

	app.logStartupInfo()

	app.server = server.New(app.dispatcher, &server.Config{
		APIPrefix:       appCfg.Server.APIPrefix,
		MasterKey:       appCfg.Server.MasterKey,
		BodyLimit:       appCfg.Server.BodyLimit,
		MetricsEnabled:  appCfg.Metrics.Enabled,
		MetricsEndpoint: appCfg.Metrics.Endpoint,
		DocsEnabled:     appCfg.Server.DocsEnabled,
		CallLog:         calllog.Logger,
	})

	return app, nil
}

// NewRegistry returns a registry holding the built-in functions.
func NewRegistry() (*functions.Registry, error) {
	registry := functions.NewRegistry()
	if err := functions.LoadBuiltins(registry); err != nil {
		return nil, fmt.Errorf("failed to load built-in functions: %w", err)
	}
	return registry, nil
}

// Dispatcher returns the agent dispatcher.
func (a *App) Dispatcher() *agent.Dispatcher {
	return a.dispatcher
}

// Registry returns the function registry.
func (a *App) Registry() *functions.Registry {
	return a.registry
}

// Handler returns the HTTP handler, for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.server
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown tears down components in dependency order: the HTTP server
// first, then the provider cache, the call log (flushing pending entries)
// and finally the tracer. It attempts every step and is idempotent.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	if a.providers != nil {
		if err := a.providers.Close(); err != nil {
			slog.Error("providers close error", "error", err)
			errs = append(errs, fmt.Errorf("providers close: %w", err))
		}
	}

	if a.calllog != nil {
		if err := a.calllog.Close(); err != nil {
			slog.Error("call log close error", "error", err)
			errs = append(errs, fmt.Errorf("call log close: %w", err))
		}
	}

	if a.tracing != nil {
		if err := a.tracing(ctx); err != nil {
			slog.Error("tracing shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo() {
	cfg := a.config

	slog.Info("upstream configured",
		"provider", cfg.LLM.Provider,
		"model", cfg.ActiveProvider().Model,
		"functions", a.registry.Len(),
	)

	if cfg.Server.MasterKey == "" {
		slog.Warn("SECURITY WARNING: GATEWAY_MASTER_KEY not set - server running in UNSAFE MODE",
			"security_risk", "unauthenticated access allowed",
			"recommendation", "set GATEWAY_MASTER_KEY environment variable to secure this gateway")
	} else {
		slog.Info("authentication enabled", "mode", "master_key")
	}

	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	if cfg.Cache.Type == "" || cfg.Cache.Type == "none" {
		slog.Info("generation cache disabled")
	} else {
		slog.Info("generation cache enabled", "type", cfg.Cache.Type, "ttl", cfg.Cache.TTL)
	}

	if cfg.CallLog.Enabled {
		slog.Info("call log enabled",
			"storage_type", cfg.Storage.Type,
			"log_bodies", cfg.CallLog.LogBodies,
			"retention_days", cfg.CallLog.RetentionDays,
		)
	} else {
		slog.Info("call log disabled")
	}

	if cfg.Server.DocsEnabled {
		slog.Info("API docs enabled", "path", cfg.Server.APIPrefix+"/docs/index.html")
	}
}
