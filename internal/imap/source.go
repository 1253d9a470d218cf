// Package imap reads a mailbox over IMAP with an address and app password.
package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/teemow/mailcontract/internal/logging"
	"github.com/teemow/mailcontract/internal/mailbox"
)

// Defaults for Gmail.
const (
	DefaultAddr          = "imap.gmail.com:993"
	DefaultMailbox       = "INBOX"
	DefaultAllMailFolder = "[Gmail]/All Mail"
	DefaultDialTimeout   = 30 * time.Second

	// AllMailboxes is the mailbox name that selects AllMailFolder.
	AllMailboxes = "ALL"
)

// Options configure Connect.
type Options struct {
	Addr          string
	Mailbox       string
	AllMailFolder string
	DialTimeout   time.Duration
	TLSConfig     *tls.Config
	Dial          Dialer
	Logger        *slog.Logger

	newClient func(addr string) (client, error)
}

func (o *Options) setDefaults() {
	if o.Addr == "" {
		o.Addr = DefaultAddr
	}
	if o.AllMailFolder == "" {
		o.AllMailFolder = DefaultAllMailFolder
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.Dial == nil {
		o.Dial = imapclient.DialTLS
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.newClient == nil {
		o.newClient = dialTLS(o.DialTimeout, o.TLSConfig, o.Dial)
	}
}

// ResolveMailbox maps the configured mailbox name to the folder to select.
// An empty name selects INBOX and "ALL" selects allMailFolder.
func ResolveMailbox(name, allMailFolder string) string {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return DefaultMailbox
	case strings.EqualFold(name, AllMailboxes):
		if allMailFolder == "" {
			return DefaultAllMailFolder
		}
		return allMailFolder
	}
	return name
}

// Source is a logged in IMAP connection with one mailbox selected.
type Source struct {
	mu      sync.Mutex
	client  client
	mailbox string
	logger  *slog.Logger
}

var _ mailbox.Source = (*Source)(nil)

// Connect dials the server, logs in and selects the mailbox. The connection
// is released on every failure path.
func Connect(ctx context.Context, creds mailbox.Credentials, opts Options) (*Source, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if creds.Method != mailbox.MethodIMAP {
		return nil, &mailbox.ConnectionError{Op: mailbox.OpValidate, Err: fmt.Errorf("imap source cannot use method %q", creds.Method)}
	}
	if err := ctx.Err(); err != nil {
		return nil, mailbox.Wrap(mailbox.OpDial, err)
	}

	opts.setDefaults()
	folder := ResolveMailbox(opts.Mailbox, opts.AllMailFolder)
	logger := opts.Logger.With(logging.Method(string(mailbox.MethodIMAP)), logging.Domain(creds.Address))

	c, err := opts.newClient(opts.Addr)
	if err != nil {
		return nil, mailbox.Wrap(mailbox.OpDial, fmt.Errorf("connecting to %s: %w", opts.Addr, err))
	}

	if err := c.Login(creds.Address, creds.Secret).Wait(); err != nil {
		_ = c.Close()
		return nil, mailbox.Wrap(mailbox.OpLogin, fmt.Errorf("authentication failed for %s: %w", logging.AnonymizeEmail(creds.Address), err))
	}

	if _, err := c.Select(folder, &goimap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		_ = c.Logout().Wait()
		_ = c.Close()
		return nil, mailbox.Wrap(mailbox.OpSelect, fmt.Errorf("selecting %s: %w", folder, err))
	}

	logger.Info("imap mailbox selected", logging.Mailbox(folder))
	return &Source{client: c, mailbox: folder, logger: logger}, nil
}

// Mailbox returns the selected folder.
func (s *Source) Mailbox() string {
	return s.mailbox
}

// List searches all UIDs, keeps the newest limit of them and fetches their
// envelopes. Higher UIDs are treated as newer.
func (s *Source) List(ctx context.Context, limit int) ([]mailbox.MessageSummary, error) {
	limit = mailbox.ClampLimit(limit)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil, &mailbox.ConnectionError{Op: mailbox.OpList, Err: fmt.Errorf("connection closed")}
	}
	if err := ctx.Err(); err != nil {
		return nil, mailbox.Wrap(mailbox.OpList, err)
	}

	data, err := s.client.UIDSearch(&goimap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, mailbox.Wrap(mailbox.OpList, fmt.Errorf("search failed: %w", err))
	}

	uids := data.AllUIDs()
	if len(uids) == 0 {
		return []mailbox.MessageSummary{}, nil
	}
	slices.Sort(uids)
	slices.Reverse(uids)
	if len(uids) > limit {
		uids = uids[:limit]
	}

	bufs, err := s.client.Fetch(goimap.UIDSetNum(uids...), &goimap.FetchOptions{
		UID:      true,
		Envelope: true,
	}).Collect()
	if err != nil {
		return nil, mailbox.Wrap(mailbox.OpList, fmt.Errorf("fetching envelopes: %w", err))
	}

	byUID := make(map[goimap.UID]*imapclient.FetchMessageBuffer, len(bufs))
	for _, buf := range bufs {
		byUID[buf.UID] = buf
	}

	out := make([]mailbox.MessageSummary, 0, len(uids))
	for _, uid := range uids {
		buf, ok := byUID[uid]
		if !ok {
			continue
		}
		out = append(out, summaryFromBuffer(buf))
	}

	s.logger.Debug("listed messages", logging.Operation(mailbox.OpList), slog.Int("count", len(out)))
	return out, nil
}

// Fetch downloads the full message for a UID. Nothing is cached, so each
// call issues a new UID FETCH.
func (s *Source) Fetch(ctx context.Context, id string) (*mailbox.Message, error) {
	uid, err := strconv.ParseUint(strings.TrimSpace(id), 10, 32)
	if err != nil || uid == 0 {
		return nil, fmt.Errorf("%w: invalid UID %q", mailbox.ErrMessageNotFound, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil, &mailbox.ConnectionError{Op: mailbox.OpFetch, Err: fmt.Errorf("connection closed")}
	}
	if err := ctx.Err(); err != nil {
		return nil, mailbox.Wrap(mailbox.OpFetch, err)
	}

	section := &goimap.FetchItemBodySection{Peek: true}
	bufs, err := s.client.Fetch(goimap.UIDSetNum(goimap.UID(uid)), &goimap.FetchOptions{
		UID:         true,
		BodySection: []*goimap.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return nil, mailbox.Wrap(mailbox.OpFetch, fmt.Errorf("fetching UID %d: %w", uid, err))
	}

	for _, buf := range bufs {
		if buf.UID != goimap.UID(uid) {
			continue
		}
		raw := buf.FindBodySection(section)
		if raw == nil {
			break
		}
		return mailbox.ParseMessage(id, raw)
	}
	return nil, fmt.Errorf("%w: UID %d", mailbox.ErrMessageNotFound, uid)
}

// Close logs out and closes the connection. It is safe to call twice.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	c := s.client
	s.client = nil

	if err := c.Logout().Wait(); err != nil {
		s.logger.Debug("imap logout failed", logging.Err(err))
	}
	return c.Close()
}

func summaryFromBuffer(buf *imapclient.FetchMessageBuffer) mailbox.MessageSummary {
	s := mailbox.MessageSummary{ID: strconv.FormatUint(uint64(buf.UID), 10)}
	if env := buf.Envelope; env != nil {
		s.Subject = env.Subject
		s.Date = env.Date
		if len(env.From) > 0 {
			from := env.From[0]
			if from.Name != "" {
				s.From = fmt.Sprintf("%s <%s>", from.Name, from.Addr())
			} else {
				s.From = from.Addr()
			}
		}
	}
	return s
}
