package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/mailcontract/internal/logging"
	"github.com/teemow/mailcontract/internal/mailbox"
)

const (
	// DefaultQuery restricts listings to unread inbox messages.
	DefaultQuery = "is:unread in:inbox"

	// PageSize is the fixed cap of one listing.
	PageSize = 50

	user = "me"
)

// Options configure Connect.
type Options struct {
	Query string

	// Endpoint and HTTPClient override the API location and base
	// transport. Both are meant for tests.
	Endpoint   string
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client wraps the Gmail Users service for one authenticated account.
type Client struct {
	svc     *gmail.UsersService
	account string
	query   string
	logger  *slog.Logger
}

var _ mailbox.Source = (*Client)(nil)

// Connect builds the Gmail service from the credentials' token source and
// verifies the token by reading the account profile.
func Connect(ctx context.Context, creds mailbox.Credentials, opts Options) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if creds.Method != mailbox.MethodGmail {
		return nil, &mailbox.ConnectionError{Op: mailbox.OpValidate, Err: fmt.Errorf("gmail source cannot use method %q", creds.Method)}
	}

	if opts.Query == "" {
		opts.Query = DefaultQuery
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	}
	clientOpts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, creds.TokenSource))}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	svc, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, mailbox.Wrap(mailbox.OpDial, fmt.Errorf("failed to create Gmail service: %w", err))
	}

	profile, err := svc.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return nil, mailbox.Wrap(loginOrDial(err), fmt.Errorf("failed to read Gmail profile: %w", err))
	}

	c := &Client{
		svc:     svc.Users,
		account: profile.EmailAddress,
		query:   opts.Query,
		logger:  opts.Logger.With(logging.Method(string(mailbox.MethodGmail)), logging.Domain(profile.EmailAddress)),
	}
	c.logger.Info("gmail account connected", logging.UserHash(profile.EmailAddress))
	return c, nil
}

// loginOrDial classifies an API error as an authentication rejection when
// Google answered 401 or 403.
func loginOrDial(err error) string {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden {
			return mailbox.OpLogin
		}
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return mailbox.OpLogin
	}
	return mailbox.OpDial
}

// Account returns the authenticated address.
func (c *Client) Account() string {
	return c.account
}

// List returns at most limit unread inbox messages, newest first. The limit
// is clamped to 1..PageSize and a single page is requested.
func (c *Client) List(ctx context.Context, limit int) ([]mailbox.MessageSummary, error) {
	limit = min(mailbox.ClampLimit(limit), PageSize)

	res, err := c.svc.Messages.List(user).Q(c.query).MaxResults(int64(limit)).Context(ctx).Do()
	if err != nil {
		return nil, mailbox.Wrap(mailbox.OpList, fmt.Errorf("failed to list messages: %w", err))
	}

	type dated struct {
		summary  mailbox.MessageSummary
		internal int64
	}
	items := make([]dated, 0, len(res.Messages))
	for _, m := range res.Messages {
		if len(items) == limit {
			break
		}
		meta, err := c.svc.Messages.Get(user, m.Id).
			Format("metadata").
			MetadataHeaders("Subject", "From", "Date").
			Context(ctx).Do()
		if err != nil {
			return nil, mailbox.Wrap(mailbox.OpList, fmt.Errorf("failed to get message %s: %w", m.Id, err))
		}
		items = append(items, dated{summary: summaryFromMessage(meta), internal: meta.InternalDate})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].internal > items[j].internal
	})

	out := make([]mailbox.MessageSummary, 0, len(items))
	for _, it := range items {
		out = append(out, it.summary)
	}

	c.logger.Debug("listed messages", logging.Operation(mailbox.OpList), slog.Int("count", len(out)))
	return out, nil
}

// Fetch retrieves the full message and downloads its attachments.
func (c *Client) Fetch(ctx context.Context, id string) (*mailbox.Message, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty message id", mailbox.ErrMessageNotFound)
	}

	msg, err := c.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}

	out := &mailbox.Message{
		ID:   msg.Id,
		Date: internalDate(msg.InternalDate),
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			out.Header = append(out.Header, mailbox.HeaderField{Key: h.Name, Value: h.Value})
		}
	}
	out.Subject = out.HeaderValue("Subject")
	out.From = out.HeaderValue("From")

	body, err := messageBody(msg.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode body of message %s: %w", id, err)
	}
	out.Body = body

	attachments, err := c.attachments(ctx, msg)
	if err != nil {
		return nil, err
	}
	out.Attachments = attachments
	return out, nil
}

// Close is a no-op; the REST client holds no connection state.
func (c *Client) Close() error {
	return nil
}

func summaryFromMessage(m *gmail.Message) mailbox.MessageSummary {
	s := mailbox.MessageSummary{
		ID:      m.Id,
		Snippet: m.Snippet,
		Date:    internalDate(m.InternalDate),
	}
	if m.Payload != nil {
		for _, h := range m.Payload.Headers {
			switch {
			case strings.EqualFold(h.Name, "Subject") && s.Subject == "":
				s.Subject = h.Value
			case strings.EqualFold(h.Name, "From") && s.From == "":
				s.From = h.Value
			}
		}
	}
	return s
}

func internalDate(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
