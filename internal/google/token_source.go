package google

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"

	"github.com/teemow/mailcontract/internal/logging"
)

// HasToken reports whether a token is stored for account.
func HasToken(store TokenStore, account string) bool {
	_, err := store.Load(account)
	return err == nil
}

// TokenSource returns a refreshing token source for the stored token of
// account. Refreshed tokens are saved back to the store.
func TokenSource(ctx context.Context, conf *oauth2.Config, store TokenStore, account string) (oauth2.TokenSource, error) {
	tok, err := store.Load(account)
	if err != nil {
		return nil, err
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w: stored token for account %s is empty", ErrNoToken, account)
	}

	return &persistingTokenSource{
		base:    oauth2.ReuseTokenSource(tok, conf.TokenSource(ctx, tok)),
		store:   store,
		account: account,
		last:    tok.AccessToken,
	}, nil
}

type persistingTokenSource struct {
	base    oauth2.TokenSource
	store   TokenStore
	account string

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.store.Save(s.account, tok); err != nil {
			slog.Warn("failed to persist refreshed token", logging.Account(s.account), logging.Err(err))
		}
	}
	return tok, nil
}
