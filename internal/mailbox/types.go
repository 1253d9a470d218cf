package mailbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Method identifies how a mailbox connection is established.
type Method string

const (
	// MethodIMAP logs in over IMAP with an address and an app password.
	MethodIMAP Method = "imap"

	// MethodGmail uses an OAuth2 token against the Gmail REST API.
	MethodGmail Method = "gmail"
)

// Fetch limit bounds for a single listing.
const (
	MinFetchLimit     = 1
	MaxFetchLimit     = 50
	DefaultFetchLimit = 10
)

// ClampLimit bounds limit to [MinFetchLimit, MaxFetchLimit].
// A zero or negative limit resolves to DefaultFetchLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultFetchLimit
	case limit > MaxFetchLimit:
		return MaxFetchLimit
	}
	return limit
}

// ParseMethod converts a user supplied method name into a Method.
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case MethodIMAP, "":
		return MethodIMAP, nil
	case MethodGmail, "oauth", "rest":
		return MethodGmail, nil
	}
	return "", fmt.Errorf("unknown connection method %q (supported: imap, gmail)", s)
}

// Credentials holds what is needed to open one mailbox connection.
// Secret is only used by MethodIMAP, TokenSource only by MethodGmail.
type Credentials struct {
	Method      Method
	Address     string
	Secret      string
	TokenSource oauth2.TokenSource
}

// Validate rejects malformed credentials before any network activity.
func (c Credentials) Validate() error {
	switch c.Method {
	case MethodIMAP:
		if strings.TrimSpace(c.Address) == "" || c.Secret == "" {
			return &ConnectionError{Op: OpValidate, Err: fmt.Errorf("email address and app password are required")}
		}
		if !strings.Contains(c.Address, "@") {
			return &ConnectionError{Op: OpValidate, Err: fmt.Errorf("invalid email address %q", c.Address)}
		}
	case MethodGmail:
		if c.TokenSource == nil {
			return &ConnectionError{Op: OpValidate, Err: fmt.Errorf("no OAuth token available, run the auth command first")}
		}
	default:
		return &ConnectionError{Op: OpValidate, Err: fmt.Errorf("unsupported connection method %q", c.Method)}
	}
	return nil
}

// ConnectRequest describes a connect action issued by a user.
type ConnectRequest struct {
	Credentials Credentials
	Mailbox     string
	Limit       int
}

// MessageSummary is the short form used to populate a selection list.
type MessageSummary struct {
	ID      string
	Subject string
	From    string
	Date    time.Time
	Snippet string
}

// Label renders the summary the way a selection list shows it.
func (s MessageSummary) Label(position int) string {
	return fmt.Sprintf("%d: %s — %s", position, s.Subject, s.From)
}

// HeaderField is one raw header line.
type HeaderField struct {
	Key   string
	Value string
}

// Disposition tells whether a part was sent inline or as an attachment.
type Disposition string

const (
	DispositionInline     Disposition = "inline"
	DispositionAttachment Disposition = "attachment"
)

// AttachmentPart is one named MIME part of a message.
type AttachmentPart struct {
	Filename    string
	ContentType string
	Disposition Disposition
	Data        []byte
}

// Size returns the payload size in bytes.
func (a AttachmentPart) Size() int {
	return len(a.Data)
}

// Message is a fully materialized email.
type Message struct {
	ID          string
	Header      []HeaderField
	Subject     string
	From        string
	Date        time.Time
	Body        string
	Attachments []AttachmentPart
}

// HeaderValue returns the first header value with the given key, ignoring case.
func (m *Message) HeaderValue(key string) string {
	for _, f := range m.Header {
		if strings.EqualFold(f.Key, key) {
			return f.Value
		}
	}
	return ""
}

// Source is an open mailbox connection.
type Source interface {
	// List returns at most limit summaries, newest first.
	List(ctx context.Context, limit int) ([]MessageSummary, error)

	// Fetch resolves a summary ID into the full message.
	Fetch(ctx context.Context, id string) (*Message, error)

	// Close releases the underlying connection.
	Close() error
}

// Connector opens a Source for a connect request.
type Connector interface {
	Connect(ctx context.Context, req ConnectRequest) (Source, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context, req ConnectRequest) (Source, error)

// Connect calls f(ctx, req).
func (f ConnectorFunc) Connect(ctx context.Context, req ConnectRequest) (Source, error) {
	return f(ctx, req)
}
