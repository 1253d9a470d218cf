package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mailcontract/internal/instrumentation"
)

// DefaultEndpointPath is where the streamable HTTP transport listens.
const DefaultEndpointPath = "/mcp"

// HTTPServerConfig configures NewHTTPServer.
type HTTPServerConfig struct {
	Addr             string
	DisableStreaming bool

	// Health is mounted under /healthz and /readyz when set.
	Health *HealthChecker

	// Provider mounts /metrics when it exports to Prometheus.
	Provider *instrumentation.Provider
}

// HTTPServer serves an MCP server over the streamable HTTP transport next
// to the health and metrics endpoints.
type HTTPServer struct {
	mcpServer  *mcpserver.MCPServer
	httpServer *http.Server
	handler    http.Handler
	addr       string
}

// NewHTTPServer builds the mux. The server is not started.
func NewHTTPServer(mcpSrv *mcpserver.MCPServer, config HTTPServerConfig) (*HTTPServer, error) {
	if mcpSrv == nil {
		return nil, errors.New("mcp server is required")
	}
	if config.Addr == "" {
		return nil, errors.New("listen address is required")
	}

	opts := []mcpserver.StreamableHTTPOption{mcpserver.WithEndpointPath(DefaultEndpointPath)}
	if config.DisableStreaming {
		opts = append(opts, mcpserver.WithDisableStreaming(true))
	}
	streamable := mcpserver.NewStreamableHTTPServer(mcpSrv, opts...)

	mux := http.NewServeMux()
	mux.Handle(DefaultEndpointPath, streamable)
	if config.Health != nil {
		config.Health.RegisterHealthEndpoints(mux)
	}
	if RegisterMetricsEndpoint(mux, config.Provider) {
		slog.Debug("metrics endpoint mounted", slog.String("path", "/metrics"))
	}

	handler := instrumentHTTP(mux, config.Provider)
	return &HTTPServer{
		mcpServer: mcpSrv,
		handler:   handler,
		addr:      config.Addr,
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}, nil
}

// Handler returns the root handler, mostly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

// Addr returns the listen address, or the bound address once started.
func (s *HTTPServer) Addr() string {
	return s.addr
}

// Start listens and serves until Shutdown. ready, if not nil, is closed
// once the listener is bound.
func (s *HTTPServer) Start(ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.addr = ln.Addr().String()
	if ready != nil {
		close(ready)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// instrumentHTTP records one http_requests_total sample per request.
func instrumentHTTP(next http.Handler, provider *instrumentation.Provider) http.Handler {
	if provider == nil || !provider.Enabled() {
		return next
	}
	metrics := provider.Metrics()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
