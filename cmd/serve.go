package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/mailcontract/internal/config"
	"github.com/teemow/mailcontract/internal/instrumentation"
	"github.com/teemow/mailcontract/internal/logging"
	"github.com/teemow/mailcontract/internal/server"
	"github.com/teemow/mailcontract/internal/tools/contract_tools"
)

func newServeCmd() *cobra.Command {
	var (
		disableStreaming bool
		metricsAddr      string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP (Model Context Protocol) server.

Every MCP client gets its own pipeline session: mail_connect, mail_list,
mail_select, contract_generate, contract_download and mail_disconnect.

Transports:
  stdio            Standard input/output (default)
  streamable-http  HTTP with /mcp, /healthz, /readyz and /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, disableStreaming, metricsAddr)
		},
	}

	flags := cmd.Flags()
	flags.String("transport", config.TransportStdio, "Transport type: stdio or streamable-http")
	flags.String("http-addr", ":8080", "HTTP server address (for streamable-http transport)")
	flags.BoolVar(&disableStreaming, "disable-streaming", false, "Disable streaming for HTTP transport (for compatibility with certain clients)")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics on a dedicated address as well, e.g. :9090")
	bindConfigFlag(flags, "transport", "server.transport")
	bindConfigFlag(flags, "http-addr", "server.http_addr")

	return cmd
}

func runServe(cmd *cobra.Command, disableStreaming bool, metricsAddr string) error {
	shutdownCtx, cancel := commandContext(cmd)
	defer cancel()

	transport := cfg.Server.Transport
	logger := slog.Default()

	instrConfig := cfg.InstrumentationConfig(version)

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	opts := []server.Option{server.WithLogger(logger)}
	if provider.Enabled() {
		opts = append(opts,
			server.WithMetrics(provider.Metrics()),
			server.WithAuditLogger(instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging)),
		)
	}
	serverContext, err := server.NewServerContext(shutdownCtx, cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("server context shutdown failed", logging.Err(err))
		}
	}()

	if metricsAddr != "" && transport != config.TransportStdio {
		metricsServer, err := startMetricsServer(metricsAddr, provider)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Warn("metrics server shutdown failed", logging.Err(err))
			}
		}()
	}

	mcpSrv := mcpserver.NewMCPServer("mailcontract", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithHooks(contract_tools.SessionHooks(serverContext)),
	)
	if err := registerAllTools(mcpSrv, serverContext); err != nil {
		return err
	}

	switch transport {
	case config.TransportStdio:
		return runStdioServer(mcpSrv)
	case config.TransportStreamableHTTP:
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, serverContext, disableStreaming, provider)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", transport)
	}
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// registerAllTools registers all MCP tools.
func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext) error {
	if err := contract_tools.RegisterContractTools(mcpSrv, sc); err != nil {
		return fmt.Errorf("failed to register contract tools: %w", err)
	}
	return nil
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, disableStreaming bool, provider *instrumentation.Provider) error {
	health := server.NewHealthChecker(sc)
	httpServer, err := server.NewHTTPServer(mcpSrv, server.HTTPServerConfig{
		Addr:             sc.Config().Server.HTTPAddr,
		DisableStreaming: disableStreaming,
		Health:           health,
		Provider:         provider,
	})
	if err != nil {
		return err
	}

	ready := make(chan struct{})
	serverErr := make(chan error, 1)
	go func() {
		if err := httpServer.Start(ready); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ready:
		health.SetReady(true)
		slog.Info("mcp server listening",
			slog.String("addr", httpServer.Addr()),
			slog.String("endpoint", server.DefaultEndpointPath))
	case err := <-serverErr:
		return fmt.Errorf("http server failed to start: %w", err)
	}

	select {
	case <-ctx.Done():
		slog.Info("shutting down http server")
	case err, ok := <-serverErr:
		if ok && err != nil {
			return fmt.Errorf("http server stopped: %w", err)
		}
		return nil
	}

	health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}

func startMetricsServer(addr string, provider *instrumentation.Provider) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    addr,
		InstrumentationProvider: provider,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	metricsReady := make(chan struct{})
	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	select {
	case <-metricsReady:
		slog.Info("metrics server started", slog.String("addr", metricsServer.Addr()))
		return metricsServer, nil
	case err := <-metricsErr:
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(5 * time.Second):
		return nil, errors.New("metrics server startup timed out")
	}
}
