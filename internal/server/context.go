package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teemow/mailcontract/internal/config"
	"github.com/teemow/mailcontract/internal/instrumentation"
	"github.com/teemow/mailcontract/internal/session"
)

// DefaultSessionKey is used when a request carries no client session.
const DefaultSessionKey = "default"

// ServerContext holds what every MCP tool shares: the configuration, one
// pipeline session per client and the instrumentation hooks.
type ServerContext struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *config.Config
	sessions *session.Manager
	metrics  *instrumentation.Metrics
	audit    *instrumentation.AuditLogger
	logger   *slog.Logger

	sessionOpts *session.Options

	mu       sync.RWMutex
	shutdown bool
}

// Option customizes NewServerContext.
type Option func(*ServerContext)

// WithMetrics records pipeline and tool metrics.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(sc *ServerContext) {
		sc.metrics = m
	}
}

// WithAuditLogger logs every tool invocation.
func WithAuditLogger(a *instrumentation.AuditLogger) Option {
	return func(sc *ServerContext) {
		sc.audit = a
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(sc *ServerContext) {
		if logger != nil {
			sc.logger = logger
		}
	}
}

// WithSessionOptions replaces the pipeline options derived from the
// configuration. Tests use it to plug in fake mail sources.
func WithSessionOptions(opts session.Options) Option {
	return func(sc *ServerContext) {
		sc.sessionOpts = &opts
	}
}

// NewServerContext creates a new server context. cfg may be nil, in which
// case the defaults are used.
func NewServerContext(ctx context.Context, cfg *config.Config, opts ...Option) (*ServerContext, error) {
	if cfg == nil {
		var err error
		cfg, err = config.Load(config.NewViper(), "")
		if err != nil {
			return nil, err
		}
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	sc := &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(sc)
	}

	var sessionOpts session.Options
	if sc.sessionOpts != nil {
		sessionOpts = *sc.sessionOpts
		if sessionOpts.Metrics == nil {
			sessionOpts.Metrics = sc.metrics
		}
		if sessionOpts.Logger == nil {
			sessionOpts.Logger = sc.logger
		}
	} else {
		var err error
		sessionOpts, err = cfg.SessionOptions(sc.logger, sc.metrics)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to build pipeline: %w", err)
		}
	}
	sc.sessions = session.NewManager(sessionOpts, cfg.Server.SessionTimeout)

	return sc, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Config returns the loaded configuration.
func (sc *ServerContext) Config() *config.Config {
	return sc.cfg
}

func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Sessions returns the session manager.
func (sc *ServerContext) Sessions() *session.Manager {
	return sc.sessions
}

// Session returns the pipeline session of key, creating it on first use.
func (sc *ServerContext) Session(key string) *session.Session {
	if key == "" {
		key = DefaultSessionKey
	}
	return sc.sessions.Get(key)
}

// Metrics returns the metrics recorder, or nil when disabled.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// AuditLogger returns the audit logger, or nil when disabled.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.audit
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown closes every session and cancels the context.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	if err := sc.sessions.Close(); err != nil {
		return fmt.Errorf("closing sessions: %w", err)
	}
	return nil
}
