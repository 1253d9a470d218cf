package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teemow/mailcontract/internal/instrumentation"
)

const (
	DefaultMetricsReadTimeout  = 10 * time.Second
	DefaultMetricsWriteTimeout = 10 * time.Second
	DefaultMetricsIdleTimeout  = 60 * time.Second

	// DefaultShutdownTimeout bounds graceful shutdown of every HTTP server.
	DefaultShutdownTimeout = 30 * time.Second
)

// MetricsHandler returns the Prometheus scrape handler. The OpenTelemetry
// Prometheus exporter registers with the default registry, which promhttp
// exposes.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RegisterMetricsEndpoint mounts /metrics on mux when provider exports to
// Prometheus. It reports whether the endpoint was mounted.
func RegisterMetricsEndpoint(mux *http.ServeMux, provider *instrumentation.Provider) bool {
	if provider == nil || !provider.Enabled() || !provider.PrometheusEnabled() {
		return false
	}
	mux.Handle("/metrics", MetricsHandler())
	return true
}

// MetricsServerConfig holds configuration for a dedicated metrics server.
type MetricsServerConfig struct {
	// Addr is the listen address, for example ":9090".
	Addr string

	InstrumentationProvider *instrumentation.Provider
}

// MetricsServer serves Prometheus metrics on their own port, away from the
// MCP endpoint.
type MetricsServer struct {
	httpServer *http.Server
	addr       string
}

// NewMetricsServer validates config and returns an unstarted server.
func NewMetricsServer(config MetricsServerConfig) (*MetricsServer, error) {
	if config.Addr == "" {
		return nil, errors.New("metrics address is required")
	}
	if config.InstrumentationProvider == nil {
		return nil, errors.New("instrumentation provider is required for metrics server")
	}
	if !config.InstrumentationProvider.Enabled() {
		return nil, errors.New("instrumentation provider is not enabled")
	}
	if !config.InstrumentationProvider.PrometheusEnabled() {
		return nil, errors.New("metrics server needs the prometheus exporter")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &MetricsServer{
		addr: config.Addr,
		httpServer: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: DefaultMetricsReadTimeout,
			WriteTimeout:      DefaultMetricsWriteTimeout,
			IdleTimeout:       DefaultMetricsIdleTimeout,
		},
	}, nil
}

// Start serves until Shutdown. It blocks.
func (s *MetricsServer) Start() error {
	return s.StartWithReadySignal(nil)
}

// StartWithReadySignal listens, closes ready once the listener is bound and
// then serves until Shutdown.
func (s *MetricsServer) StartWithReadySignal(ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.addr = ln.Addr().String()
	if ready != nil {
		close(ready)
	}

	slog.Info("starting metrics server", slog.String("addr", s.addr))
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the metrics server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	slog.Info("shutting down metrics server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the listen address. After the ready signal it is the bound
// address.
func (s *MetricsServer) Addr() string {
	return s.addr
}
