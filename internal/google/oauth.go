package google

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrRedirectURLRequired is returned when no redirect URL is configured.
var ErrRedirectURLRequired = errors.New("oauth redirect URL is not configured")

// OAuthConfig describes the OAuth client. Either CredentialsFile (a client
// secret JSON downloaded from the Google console) or ClientID and
// ClientSecret must be set.
type OAuthConfig struct {
	ClientID        string
	ClientSecret    string
	CredentialsFile string
	RedirectURL     string
	Scopes          []string
}

// Config builds the oauth2 configuration. A RedirectURL set here overrides
// the one found in the credentials file.
func (c OAuthConfig) Config() (*oauth2.Config, error) {
	scopes := c.Scopes
	if len(scopes) == 0 {
		scopes = DefaultOAuthScopes
	}

	var conf *oauth2.Config
	if c.CredentialsFile != "" {
		b, err := os.ReadFile(c.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials at %s: %w", c.CredentialsFile, err)
		}
		conf, err = google.ConfigFromJSON(b, scopes...)
		if err != nil {
			return nil, fmt.Errorf("parse oauth config: %w", err)
		}
	} else {
		if c.ClientID == "" || c.ClientSecret == "" {
			return nil, errors.New("oauth client id and secret (or a credentials file) are required")
		}
		conf = &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       scopes,
		}
	}

	if c.RedirectURL != "" {
		conf.RedirectURL = c.RedirectURL
	}
	if conf.RedirectURL == "" {
		return nil, ErrRedirectURLRequired
	}
	if _, err := url.Parse(conf.RedirectURL); err != nil {
		return nil, fmt.Errorf("invalid redirect URL: %w", err)
	}
	return conf, nil
}

// NewState returns a random value for the OAuth state parameter.
func NewState() string {
	return uuid.NewString()
}

// AuthURL returns the consent page URL. Offline access is requested so a
// refresh token is issued.
func AuthURL(conf *oauth2.Config, state string) string {
	return conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ParseCode accepts either a bare authorization code or the full redirect
// URL pasted from the browser.
func ParseCode(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty authorization code")
	}
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse redirect URL: %w", err)
	}
	if e := u.Query().Get("error"); e != "" {
		return "", fmt.Errorf("authorization denied: %s", e)
	}
	code := u.Query().Get("code")
	if code == "" {
		return "", errors.New("no 'code' parameter found in pasted URL")
	}
	return code, nil
}

// Exchange trades an authorization code (or pasted redirect URL) for a
// token and saves it for account.
func Exchange(ctx context.Context, conf *oauth2.Config, store TokenStore, account, input string) (*oauth2.Token, error) {
	code, err := ParseCode(input)
	if err != nil {
		return nil, err
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}

	if err := store.Save(account, tok); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}
	return tok, nil
}

// DefaultTokenDir is the directory used by the file token store.
func DefaultTokenDir() string {
	return filepath.Join(userCacheDir(), "mailcontract")
}

func userCacheDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Caches")
	case "windows":
		for _, ev := range []string{"TEMP", "TMP"} {
			if v := os.Getenv(ev); v != "" {
				return v
			}
		}
		return os.TempDir()
	}
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return xdg
	}
	return filepath.Join(homeDir(), ".cache")
}

func homeDir() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH")
	}
	return os.Getenv("HOME")
}
