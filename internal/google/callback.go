package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/mailcontract/internal/logging"
)

// Callback completes the authorization code flow on the redirect URL. It
// only accepts state values it issued through AuthURL.
type Callback struct {
	Config  *oauth2.Config
	Store   TokenStore
	Account string
	Logger  *slog.Logger

	mu     sync.Mutex
	states map[string]struct{}
	done   chan error
}

// NewCallback returns a Callback saving tokens for account into store.
func NewCallback(conf *oauth2.Config, store TokenStore, account string, logger *slog.Logger) *Callback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Callback{
		Config:  conf,
		Store:   store,
		Account: account,
		Logger:  logger,
		states:  make(map[string]struct{}),
		done:    make(chan error, 1),
	}
}

// AuthURL issues a new state and returns the consent page URL for it.
func (c *Callback) AuthURL() string {
	state := NewState()
	c.mu.Lock()
	c.states[state] = struct{}{}
	c.mu.Unlock()
	return AuthURL(c.Config, state)
}

// Done receives the outcome of the first completed callback.
func (c *Callback) Done() <-chan error {
	return c.done
}

func (c *Callback) consumeState(state string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.states[state]; !ok {
		return false
	}
	delete(c.states, state)
	return true
}

func (c *Callback) finish(err error) {
	select {
	case c.done <- err:
	default:
	}
}

func (c *Callback) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if !c.consumeState(q.Get("state")) {
		http.Error(w, "Invalid or expired state parameter", http.StatusBadRequest)
		return
	}
	if e := q.Get("error"); e != "" {
		err := fmt.Errorf("authorization denied: %s", e)
		c.finish(err)
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	code := q.Get("code")
	if code == "" {
		http.Error(w, "Missing 'code' parameter", http.StatusBadRequest)
		return
	}

	if _, err := Exchange(r.Context(), c.Config, c.Store, c.Account, code); err != nil {
		c.Logger.Error("oauth callback failed", logging.Operation("oauth_callback"), logging.Err(err))
		c.finish(err)
		http.Error(w, "Token exchange failed", http.StatusBadGateway)
		return
	}

	c.Logger.Info("oauth token stored", logging.Operation("oauth_callback"), logging.Account(c.Account))
	c.finish(nil)
	fmt.Fprintln(w, "Authentication complete. You can close this window.")
}

// ListenAndWait serves the callback on the host and path of the configured
// redirect URL until one authorization completes or ctx ends. onListen is
// called with the consent URL once the listener is ready.
func (c *Callback) ListenAndWait(ctx context.Context, onListen func(authURL string)) error {
	u, err := url.Parse(c.Config.RedirectURL)
	if err != nil {
		return fmt.Errorf("invalid redirect URL: %w", err)
	}
	if u.Scheme != "http" {
		return errors.New("a local callback listener needs an http:// redirect URL")
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", u.Host, err)
	}

	mux := http.NewServeMux()
	mux.Handle(path, c)
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if onListen != nil {
		onListen(c.AuthURL())
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-c.done:
		return err
	}
}
