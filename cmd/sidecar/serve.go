package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/emanuelteklu/cc-sidecar/pkg/agent"
	"github.com/emanuelteklu/cc-sidecar/pkg/api"
	"github.com/emanuelteklu/cc-sidecar/pkg/auth"
	"github.com/emanuelteklu/cc-sidecar/pkg/config"
	"github.com/emanuelteklu/cc-sidecar/pkg/diag"
	"github.com/emanuelteklu/cc-sidecar/pkg/filestore"
	"github.com/emanuelteklu/cc-sidecar/pkg/model"
	"github.com/emanuelteklu/cc-sidecar/pkg/observability"
	"github.com/emanuelteklu/cc-sidecar/pkg/ops"
	"github.com/emanuelteklu/cc-sidecar/pkg/pathguard"
	"github.com/emanuelteklu/cc-sidecar/pkg/paths"
)

const serviceName = "cc-sidecar"

var serveLoadConfigFn = config.Load

func runServeCommand(args []string, stderr io.Writer) error {
	cfg, err := serveLoadConfigFn()
	if err != nil {
		return withExitCode(err, 2)
	}

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bind := fs.String("bind", cfg.Server.Bind, "address to bind the HTTP server")
	publicMetrics := fs.Bool("public-metrics", cfg.Telemetry.PublicMetrics, "expose /metrics without authentication")
	tracing := fs.Bool("tracing", cfg.Telemetry.Tracing, "export trace spans to stderr")
	logLevel := fs.String("log-level", cfg.Logging.Level, "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return withExitCode(err, 2)
	}
	cfg.Server.Bind = *bind
	cfg.Telemetry.PublicMetrics = *publicMetrics
	cfg.Telemetry.Tracing = *tracing
	cfg.Logging.Level = *logLevel
	if err := cfg.Validate(); err != nil {
		return withExitCode(err, 2)
	}

	logger := observability.NewLogger("sidecar", observability.LogOptions{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: stderr,
	})
	for _, warning := range cfg.ValidationWarnings() {
		logger.Warn(warning)
	}

	if cfg.Telemetry.Tracing {
		tp, err := observability.NewTracerProvider(serviceName, version, stderr)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			_ = tp.Shutdown(ctx)
		}()
	}

	srv, cleanup, err := buildServer(cfg, logger)
	if err != nil {
		return withExitCode(err, 2)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	select {
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// buildServer wires the components described by cfg. cleanup releases the
// network log file, if one was opened.
func buildServer(cfg *config.Config, logger *observability.Logger) (*api.Server, func(), error) {
	cleanup := func() {}

	guard, err := pathguard.New(cfg.Paths.AllowedRoots...)
	if err != nil {
		return nil, cleanup, err
	}
	workspace := ops.NewWorkspace(filestore.New(guard), cfg.Paths)

	var transport http.RoundTripper
	if cfg.Provider.NetworkLogs {
		lt := model.NewLoggingTransport(http.DefaultTransport, paths.LogsBaseDir())
		transport = lt
		cleanup = func() { _ = lt.Close() }
	}
	client := model.NewAnthropicClient(model.AnthropicOptions{
		APIKey:    cfg.Provider.APIKey,
		BaseURL:   cfg.Provider.BaseURL,
		RateLimit: cfg.Provider.RateLimit,
		Burst:     cfg.Provider.Burst,
		Transport: transport,
	})

	var tools agent.ToolSet
	if cfg.Agent.ToolsEnabled {
		tools = agent.NewWorkspaceTools(workspace)
	}
	bridge := agent.NewBridge(client, agent.Options{
		Model:        cfg.Provider.Model,
		MaxTokens:    cfg.Provider.MaxTokens,
		Timeout:      cfg.Provider.Timeout,
		Tools:        tools,
		MaxToolTurns: cfg.Agent.MaxToolTurns,
		Logger:       logger.Component("agent"),
	})

	verifier := auth.NewVerifier(auth.Options{
		Secret:       cfg.Auth.JWTSecret,
		AdminSubject: cfg.Auth.AdminUserID,
		Issuer:       cfg.Auth.Issuer(),
		Logger:       logger.Component("auth").Logger,
	})

	d := cfg.Diagnostics
	health := diag.NewHealthChecker(diag.NewRunner(d.CommandTimeout), d.ProcessCommand, d.ProjectRepo)
	signals := diag.NewSignalScanner(diag.SignalOptions{
		DevDir:      d.DevDir,
		Window:      d.SignalsWindow,
		Limit:       d.SignalsLimit,
		RepoTimeout: d.RepoTimeout,
		Logger:      logger.Component("signals"),
	})

	srv := api.NewServer(api.ServerConfig{
		Config:    cfg,
		Verifier:  verifier,
		Agent:     bridge,
		Workspace: workspace,
		Health:    health,
		Signals:   signals,
		Logger:    logger,
	})
	return srv, cleanup, nil
}
