package imap

import (
	"crypto/tls"
	"mime"
	"net"
	"time"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"
)

// client is the subset of *imapclient.Client used by Source.
type client interface {
	Login(username, password string) commandWaiter
	Logout() commandWaiter
	Close() error
	Select(mailbox string, options *goimap.SelectOptions) selectWaiter
	UIDSearch(criteria *goimap.SearchCriteria, options *goimap.SearchOptions) searchWaiter
	Fetch(numSet goimap.NumSet, options *goimap.FetchOptions) fetchWaiter
}

type commandWaiter interface{ Wait() error }

type selectWaiter interface {
	Wait() (*goimap.SelectData, error)
}

type searchWaiter interface {
	Wait() (*goimap.SearchData, error)
}

type fetchWaiter interface {
	Collect() ([]*imapclient.FetchMessageBuffer, error)
	Close() error
}

// Dialer opens a client connection to addr.
type Dialer func(addr string, opts *imapclient.Options) (*imapclient.Client, error)

func dialTLS(timeout time.Duration, tlsConfig *tls.Config, dial Dialer) func(addr string) (client, error) {
	return func(addr string) (client, error) {
		opts := &imapclient.Options{
			Dialer:      &net.Dialer{Timeout: timeout},
			TLSConfig:   tlsConfig,
			WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
		}
		c, err := dial(addr, opts)
		if err != nil {
			return nil, err
		}
		return &clientWrapper{Client: c}, nil
	}
}

type clientWrapper struct{ *imapclient.Client }

func (w *clientWrapper) Login(username, password string) commandWaiter {
	return w.Client.Login(username, password)
}

func (w *clientWrapper) Logout() commandWaiter { return w.Client.Logout() }

func (w *clientWrapper) Select(mailbox string, options *goimap.SelectOptions) selectWaiter {
	return w.Client.Select(mailbox, options)
}

func (w *clientWrapper) UIDSearch(criteria *goimap.SearchCriteria, options *goimap.SearchOptions) searchWaiter {
	return w.Client.UIDSearch(criteria, options)
}

func (w *clientWrapper) Fetch(numSet goimap.NumSet, options *goimap.FetchOptions) fetchWaiter {
	return w.Client.Fetch(numSet, options)
}
