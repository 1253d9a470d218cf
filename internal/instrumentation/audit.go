package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/mailcontract/internal/logging"
)

// ToolInvocation captures one MCP tool call for the audit log.
//
// Address is the mailbox address of the session and counts as PII. It is
// only written in clear text when the audit logger includes PII; otherwise
// it is reduced to a hash and a domain.
type ToolInvocation struct {
	Tool string

	Address    string
	MailMethod string
	SessionID  string
	MessageID  string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewToolInvocation creates a new ToolInvocation with timing started.
// Call Complete() when the tool operation finishes.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		StartTime: time.Now(),
	}
}

// WithMailbox sets the mailbox address and connection method.
func (ti *ToolInvocation) WithMailbox(address, method string) *ToolInvocation {
	ti.Address = address
	ti.MailMethod = method
	return ti
}

// WithSession sets the pipeline session id.
func (ti *ToolInvocation) WithSession(id string) *ToolInvocation {
	ti.SessionID = id
	return ti
}

// WithMessage sets the selected message id.
func (ti *ToolInvocation) WithMessage(id string) *ToolInvocation {
	ti.MessageID = id
	return ti
}

// WithSpanContext extracts trace context from the current span.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		ti.TraceID = span.SpanContext().TraceID().String()
		ti.SpanID = span.SpanContext().SpanID().String()
	}
	return ti
}

// Complete marks the invocation as completed and calculates duration.
func (ti *ToolInvocation) Complete(err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = err == nil
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// Status returns "success" or "error" based on the Success field.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns the audit attributes. With includePII the full mailbox
// address is logged, otherwise only its hash and domain.
func (ti *ToolInvocation) LogAttrs(includePII bool) []slog.Attr {
	attrs := []slog.Attr{
		logging.Tool(ti.Tool),
		slog.Duration(logging.KeyDuration, ti.Duration),
		slog.Bool("success", ti.Success),
	}

	if ti.Address != "" {
		if includePII {
			attrs = append(attrs, slog.String("user", ti.Address))
		} else {
			attrs = append(attrs, logging.UserHash(ti.Address), logging.Domain(ti.Address))
		}
	}
	if ti.MailMethod != "" {
		attrs = append(attrs, logging.Method(ti.MailMethod))
	}
	if ti.SessionID != "" {
		attrs = append(attrs, logging.Session(ti.SessionID))
	}
	if ti.MessageID != "" {
		attrs = append(attrs, logging.MessageID(ti.MessageID))
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	if includePII && ti.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ti.SpanID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String(logging.KeyError, ti.Error))
	}

	return attrs
}

// AuditLogger writes one structured record per tool invocation.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an AuditLogger from config.
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogToolInvocation logs ti at info level on success and warn level on
// failure. A nil or disabled logger does nothing.
func (al *AuditLogger) LogToolInvocation(ti *ToolInvocation) {
	if al == nil || !al.enabled {
		return
	}

	attrs := ti.LogAttrs(al.includePII)
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if ti.Success {
		al.logger.Info("tool_executed", args...)
	} else {
		al.logger.Warn("tool_failed", args...)
	}
}
