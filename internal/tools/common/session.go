package common

import (
	"context"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mailcontract/internal/server"
	"github.com/teemow/mailcontract/internal/session"
)

// SessionKey returns the MCP client session id of ctx. Calls without a
// client session, such as direct handler invocations in tests, share
// server.DefaultSessionKey.
func SessionKey(ctx context.Context) string {
	if cs := mcpserver.ClientSessionFromContext(ctx); cs != nil && cs.SessionID() != "" {
		return cs.SessionID()
	}
	return server.DefaultSessionKey
}

// SessionFor returns the pipeline session of the calling client.
func SessionFor(ctx context.Context, sc *server.ServerContext) *session.Session {
	return sc.Session(SessionKey(ctx))
}

// StringArg returns the string argument name, or "".
func StringArg(args map[string]interface{}, name string) string {
	if v, ok := args[name].(string); ok {
		return v
	}
	return ""
}

// IntArg returns the numeric argument name. JSON numbers arrive as
// float64; numeric strings are not accepted.
func IntArg(args map[string]interface{}, name string, def int) int {
	switch v := args[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}
