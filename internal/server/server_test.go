package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mailcontract/internal/config"
	"github.com/teemow/mailcontract/internal/instrumentation"
	"github.com/teemow/mailcontract/internal/session"
)

func newTestServerContext(t *testing.T) *ServerContext {
	t.Helper()
	sc, err := NewServerContext(context.Background(), &config.Config{},
		WithSessionOptions(session.Options{}),
	)
	if err != nil {
		t.Fatalf("NewServerContext() error = %v", err)
	}
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func createTestProvider(t *testing.T) *instrumentation.Provider {
	t.Helper()
	ctx := context.Background()
	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: instrumentation.ExporterPrometheus,
		TracingExporter: instrumentation.ExporterNone,
	})
	if err != nil {
		t.Fatalf("failed to create test provider: %v", err)
	}
	t.Cleanup(func() {
		_ = provider.Shutdown(ctx)
	})
	return provider
}

func createDisabledProvider(t *testing.T) *instrumentation.Provider {
	t.Helper()
	provider, err := instrumentation.NewProvider(context.Background(), instrumentation.Config{
		ServiceName: "test-service",
		Enabled:     false,
	})
	if err != nil {
		t.Fatalf("failed to create disabled provider: %v", err)
	}
	return provider
}

func TestServerContext_SessionPerKey(t *testing.T) {
	sc := newTestServerContext(t)

	a := sc.Session("client-a")
	b := sc.Session("client-b")
	if a == b {
		t.Fatal("different keys must get different sessions")
	}
	if again := sc.Session("client-a"); again != a {
		t.Error("the same key must return the same session")
	}
	if def := sc.Session(""); def != sc.Session(DefaultSessionKey) {
		t.Error("an empty key must map to the default session")
	}
	if got := sc.Sessions().Len(); got != 3 {
		t.Errorf("Sessions().Len() = %d, want 3", got)
	}
}

func TestServerContext_Shutdown(t *testing.T) {
	sc := newTestServerContext(t)
	sc.Session("client-a")

	if sc.IsShutdown() {
		t.Fatal("new context reports shutdown")
	}
	if err := sc.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !sc.IsShutdown() {
		t.Error("IsShutdown() = false after Shutdown()")
	}
	if err := sc.Context().Err(); err == nil {
		t.Error("context not cancelled after Shutdown()")
	}
	if got := sc.Sessions().Len(); got != 0 {
		t.Errorf("sessions left after Shutdown(): %d", got)
	}
	if err := sc.Shutdown(); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestHealthChecker(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		ready      bool
		shutdown   bool
		wantStatus int
		wantBody   string
	}{
		{"liveness", "/healthz", true, false, http.StatusOK, `"status":"ok"`},
		{"liveness while not ready", "/healthz", false, false, http.StatusOK, `"status":"ok"`},
		{"readiness", "/readyz", true, false, http.StatusOK, `"ready":"ok"`},
		{"not ready", "/readyz", false, false, http.StatusServiceUnavailable, `"ready":"not ready"`},
		{"shutting down", "/readyz", true, true, http.StatusServiceUnavailable, `"shutdown":"shutting down"`},
		{"detailed", "/healthz/detailed", true, false, http.StatusOK, `"sessions":1`},
		{"detailed shutting down", "/healthz/detailed", true, true, http.StatusServiceUnavailable, `"status":"shutting down"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := newTestServerContext(t)
			sc.Session("client")
			h := NewHealthChecker(sc)
			h.SetReady(tt.ready)
			if tt.shutdown {
				if err := sc.Shutdown(); err != nil {
					t.Fatalf("Shutdown() error = %v", err)
				}
			}

			mux := http.NewServeMux()
			h.RegisterHealthEndpoints(mux)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want it to contain %s", rec.Body.String(), tt.wantBody)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

func TestHealthChecker_NilContext(t *testing.T) {
	h := NewHealthChecker(nil)
	rec := httptest.NewRecorder()
	h.DetailedHealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/detailed", nil))

	var resp DetailedHealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != healthStatusOK || resp.Sessions != 0 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestNewMetricsServer(t *testing.T) {
	tests := []struct {
		name        string
		config      MetricsServerConfig
		errContains string
	}{
		{
			name:   "valid config",
			config: MetricsServerConfig{Addr: "127.0.0.1:0", InstrumentationProvider: createTestProvider(t)},
		},
		{
			name:        "missing addr",
			config:      MetricsServerConfig{InstrumentationProvider: createTestProvider(t)},
			errContains: "metrics address is required",
		},
		{
			name:        "nil provider",
			config:      MetricsServerConfig{Addr: ":9090"},
			errContains: "instrumentation provider is required",
		},
		{
			name:        "disabled provider",
			config:      MetricsServerConfig{Addr: ":9090", InstrumentationProvider: createDisabledProvider(t)},
			errContains: "instrumentation provider is not enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, err := NewMetricsServer(tt.config)
			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("NewMetricsServer() error = %v, want %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewMetricsServer() unexpected error: %v", err)
			}
			if srv == nil {
				t.Fatal("NewMetricsServer() returned nil server")
			}
		})
	}
}

func TestMetricsServer_StartAndShutdown(t *testing.T) {
	srv, err := NewMetricsServer(MetricsServerConfig{
		Addr:                    "127.0.0.1:0",
		InstrumentationProvider: createTestProvider(t),
	})
	if err != nil {
		t.Fatalf("NewMetricsServer() error = %v", err)
	}

	ready := make(chan struct{})
	serverErr := make(chan error, 1)
	go func() {
		if err := srv.StartWithReadySignal(ready); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ready:
	case err := <-serverErr:
		t.Fatalf("metrics server failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not start")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /healthz status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if err := <-serverErr; err != nil {
		t.Errorf("server error: %v", err)
	}
}

func TestMetricsServer_ShutdownWithoutStart(t *testing.T) {
	srv, err := NewMetricsServer(MetricsServerConfig{
		Addr:                    ":9091",
		InstrumentationProvider: createTestProvider(t),
	})
	if err != nil {
		t.Fatalf("NewMetricsServer() error = %v", err)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() without Start() error = %v", err)
	}
	if srv.Addr() != ":9091" {
		t.Errorf("Addr() = %q, want %q", srv.Addr(), ":9091")
	}
}

func TestNewHTTPServer_Validation(t *testing.T) {
	if _, err := NewHTTPServer(nil, HTTPServerConfig{Addr: ":0"}); err == nil {
		t.Error("expected error for nil mcp server")
	}
	mcpSrv := mcpserver.NewMCPServer("test", "1.0.0")
	if _, err := NewHTTPServer(mcpSrv, HTTPServerConfig{}); err == nil {
		t.Error("expected error for missing address")
	}
}

func TestHTTPServer_Routes(t *testing.T) {
	tests := []struct {
		name       string
		provider   *instrumentation.Provider
		path       string
		wantStatus int
	}{
		{"health", nil, "/healthz", http.StatusOK},
		{"metrics without provider", nil, "/metrics", http.StatusNotFound},
		{"metrics with prometheus", createTestProvider(t), "/metrics", http.StatusOK},
		{"metrics disabled", createDisabledProvider(t), "/metrics", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mcpSrv := mcpserver.NewMCPServer("test", "1.0.0", mcpserver.WithToolCapabilities(true))
			srv, err := NewHTTPServer(mcpSrv, HTTPServerConfig{
				Addr:     "127.0.0.1:0",
				Health:   NewHealthChecker(nil),
				Provider: tt.provider,
			})
			if err != nil {
				t.Fatalf("NewHTTPServer() error = %v", err)
			}

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("GET %s status = %d, want %d", tt.path, rec.Code, tt.wantStatus)
			}
		})
	}
}
