// Package instrumentation provides OpenTelemetry metrics and tracing for
// mailcontract.
//
// # Metrics
//
// Server/HTTP:
//   - http_requests_total, http_request_duration_seconds
//   - active_sessions: open pipeline sessions
//
// Mail source:
//   - mail_operations_total, mail_operation_duration_seconds by mail_method
//     (imap, gmail), operation (connect, list, fetch) and status
//
// Pipeline:
//   - attachment_extractions_total by kind and result
//   - summarizations_total, summarization_duration_seconds by mode and result
//     (a model failure answered by truncation counts as "fallback")
//   - contract_renders_total by format and status
//
// MCP:
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds by tool and status
//
// # Tracing
//
// Spans are created for MCP tool calls (tool.<name>), mailbox operations
// (mail.<method>.<operation>) and pipeline steps (pipeline.<step>).
//
// # Configuration
//
// Config is decoded from the "instrumentation" block of the mailcontract
// configuration, so every field can also be set from the environment
// (MAILCONTRACT_INSTRUMENTATION_TRACING_EXPORTER=otlp). DefaultConfig
// exports Prometheus metrics and no traces.
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, cfg.InstrumentationConfig(version))
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordMailOperation(ctx, "imap", instrumentation.OperationList,
//		instrumentation.StatusSuccess, address, time.Since(start))
//
// A nil *Metrics is valid and records nothing.
package instrumentation
