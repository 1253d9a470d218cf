// Package server holds the state shared by the MCP tools and the HTTP
// plumbing of the streamable HTTP transport.
//
// ServerContext owns the configuration and a session.Manager that keeps
// one pipeline session per MCP client. HTTPServer mounts the MCP endpoint
// at /mcp together with the health endpoints and, when the Prometheus
// exporter is active, /metrics. MetricsServer serves /metrics on a
// separate address instead.
package server
