// Package common provides the helpers shared by the MCP tool packages:
// resolving which pipeline session a call belongs to, wrapping handlers
// with metrics and audit logging, and reading typed arguments.
package common
