package common

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/teemow/mailcontract/internal/config"
	"github.com/teemow/mailcontract/internal/instrumentation"
	"github.com/teemow/mailcontract/internal/server"
	"github.com/teemow/mailcontract/internal/session"
)

func newServerContext(t *testing.T, opts ...server.Option) *server.ServerContext {
	t.Helper()
	opts = append(opts, server.WithSessionOptions(session.Options{}))
	sc, err := server.NewServerContext(context.Background(), &config.Config{}, opts...)
	if err != nil {
		t.Fatalf("failed to create server context: %v", err)
	}
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func noopMetrics(t *testing.T) *instrumentation.Metrics {
	t.Helper()
	metrics, err := instrumentation.NewMetrics(noop.NewMeterProvider().Meter("test"), false)
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return metrics
}

func TestInstrumentedToolHandler_NoInstrumentation(t *testing.T) {
	sc := newServerContext(t)

	called := false
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("success"), nil
	}

	result, err := InstrumentedToolHandler("test_tool", sc, handler)(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
	if ResultText(result) != "success" {
		t.Errorf("ResultText() = %q", ResultText(result))
	}
}

func TestInstrumentedToolHandler_RegistersWithServer(t *testing.T) {
	sc := newServerContext(t, server.WithMetrics(noopMetrics(t)))
	srv := mcpserver.NewMCPServer("test", "0.0.0")

	srv.AddTool(mcp.NewTool("echo"), InstrumentedToolHandler("echo", sc,
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("echo"), nil
		}))

	tool, ok := srv.ListTools()["echo"]
	if !ok {
		t.Fatal("tool echo was not registered")
	}
	result, err := tool.Handler(context.Background(), mcp.CallToolRequest{})
	if err != nil || ResultText(result) != "echo" {
		t.Errorf("handler returned %q, %v", ResultText(result), err)
	}
}

func TestInstrumentedToolHandler_Audit(t *testing.T) {
	tests := []struct {
		name       string
		handler    func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
		wantErr    bool
		wantLog    string
		wantDetail string
	}{
		{
			name: "success",
			handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultText("ok"), nil
			},
			wantLog: "tool_executed",
		},
		{
			name: "error result",
			handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultError("message id is required"), nil
			},
			wantLog:    "tool_failed",
			wantDetail: "message id is required",
		},
		{
			name: "handler error",
			handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return nil, errors.New("boom")
			},
			wantErr:    true,
			wantLog:    "tool_failed",
			wantDetail: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			sc := newServerContext(t,
				server.WithMetrics(noopMetrics(t)),
				server.WithAuditLogger(instrumentation.NewAuditLogger(logger, instrumentation.AuditLoggingConfig{Enabled: true})),
			)
			// Creates the default session so the record carries its id.
			sess := sc.Session(server.DefaultSessionKey)

			_, err := InstrumentedToolHandler("mail_select", sc, tt.handler)(context.Background(), mcp.CallToolRequest{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}

			out := buf.String()
			if !strings.Contains(out, tt.wantLog) {
				t.Errorf("audit log %q does not contain %q", out, tt.wantLog)
			}
			if !strings.Contains(out, `"tool":"mail_select"`) {
				t.Errorf("audit log %q does not name the tool", out)
			}
			if !strings.Contains(out, sess.ID()) {
				t.Errorf("audit log %q does not carry the session id", out)
			}
			if tt.wantDetail != "" && !strings.Contains(out, tt.wantDetail) {
				t.Errorf("audit log %q does not contain %q", out, tt.wantDetail)
			}
		})
	}
}

func TestSessionKey_Default(t *testing.T) {
	if got := SessionKey(context.Background()); got != server.DefaultSessionKey {
		t.Errorf("SessionKey() = %q, want %q", got, server.DefaultSessionKey)
	}
}

func TestArgs(t *testing.T) {
	args := map[string]interface{}{
		"email": "someone@example.com",
		"limit": float64(20),
		"bad":   "7",
	}

	if got := StringArg(args, "email"); got != "someone@example.com" {
		t.Errorf("StringArg(email) = %q", got)
	}
	if got := StringArg(args, "limit"); got != "" {
		t.Errorf("StringArg(limit) = %q, want empty", got)
	}
	if got := IntArg(args, "limit", 10); got != 20 {
		t.Errorf("IntArg(limit) = %d, want 20", got)
	}
	if got := IntArg(args, "bad", 10); got != 10 {
		t.Errorf("IntArg(bad) = %d, want default", got)
	}
	if got := IntArg(args, "missing", 10); got != 10 {
		t.Errorf("IntArg(missing) = %d, want default", got)
	}
}

func TestResultText(t *testing.T) {
	if got := ResultText(nil); got != "" {
		t.Errorf("ResultText(nil) = %q", got)
	}
	result := &mcp.CallToolResult{Content: []mcp.Content{
		mcp.NewTextContent("first"),
		mcp.NewTextContent("second"),
	}}
	if got := ResultText(result); got != "first\nsecond" {
		t.Errorf("ResultText() = %q", got)
	}
}
