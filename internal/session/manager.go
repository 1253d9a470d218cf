package session

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/teemow/mailcontract/internal/logging"
)

// DefaultIdleTimeout is how long an unused session stays open.
const DefaultIdleTimeout = 30 * time.Minute

// Manager keeps one Session per client key, for example one per MCP
// client connection. Idle sessions are disconnected and removed.
type Manager struct {
	opts    Options
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	cleanupTicker *time.Ticker
	cleanupDone   chan struct{}
	closeOnce     sync.Once
}

// NewManager creates a manager whose sessions are built from opts. A
// timeout of zero uses DefaultIdleTimeout.
func NewManager(opts Options, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultIdleTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := timeout / 3
	if interval > 10*time.Minute {
		interval = 10 * time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}

	m := &Manager{
		opts:          opts,
		timeout:       timeout,
		logger:        logger,
		sessions:      make(map[string]*Session),
		cleanupTicker: time.NewTicker(interval),
		cleanupDone:   make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// Get returns the session for key, creating it when needed.
func (m *Manager) Get(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[key]; ok {
		return s
	}
	s := New(m.opts)
	m.sessions[key] = s
	m.logger.Debug("session created", logging.Session(s.ID()))
	return s
}

// Lookup returns the session for key if one exists.
func (m *Manager) Lookup(key string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	return s, ok
}

// Remove disconnects and forgets the session for key.
func (m *Manager) Remove(key string) error {
	m.mu.Lock()
	s, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return s.Disconnect()
}

// Keys returns the keys of all sessions in sorted order.
func (m *Manager) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.sessions))
	for k := range m.sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) cleanupLoop() {
	for {
		select {
		case <-m.cleanupTicker.C:
			m.Expire(time.Now())
		case <-m.cleanupDone:
			return
		}
	}
}

// Expire removes sessions idle for longer than the timeout at now and
// returns how many were removed.
func (m *Manager) Expire(now time.Time) int {
	m.mu.Lock()
	snapshot := make(map[string]*Session, len(m.sessions))
	for key, s := range m.sessions {
		snapshot[key] = s
	}
	m.mu.Unlock()

	var expired []*Session
	for key, s := range snapshot {
		if now.Sub(s.LastUsed()) <= m.timeout {
			continue
		}
		m.mu.Lock()
		if m.sessions[key] == s {
			delete(m.sessions, key)
			expired = append(expired, s)
		}
		m.mu.Unlock()
	}

	for _, s := range expired {
		if err := s.Disconnect(); err != nil {
			m.logger.Warn("failed to disconnect expired session", logging.Session(s.ID()), logging.Err(err))
		}
	}
	if len(expired) > 0 {
		m.logger.Info("cleaned up expired sessions", slog.Int("count", len(expired)))
	}
	return len(expired)
}

// Close stops the cleanup loop and disconnects every session.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.cleanupTicker.Stop()
		close(m.cleanupDone)
	})

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Disconnect(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
