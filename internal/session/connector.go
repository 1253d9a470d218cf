package session

import (
	"context"
	"fmt"

	"github.com/teemow/mailcontract/internal/gmail"
	"github.com/teemow/mailcontract/internal/imap"
	"github.com/teemow/mailcontract/internal/mailbox"
)

// Connector opens IMAP or Gmail REST sources depending on the method of
// the request credentials.
type Connector struct {
	IMAP  imap.Options
	Gmail gmail.Options
}

var _ mailbox.Connector = (*Connector)(nil)

// Connect implements mailbox.Connector. The request mailbox overrides the
// configured IMAP mailbox; the Gmail source always lists the configured
// query.
func (c *Connector) Connect(ctx context.Context, req mailbox.ConnectRequest) (mailbox.Source, error) {
	switch req.Credentials.Method {
	case mailbox.MethodIMAP:
		opts := c.IMAP
		if req.Mailbox != "" {
			opts.Mailbox = req.Mailbox
		}
		return imap.Connect(ctx, req.Credentials, opts)
	case mailbox.MethodGmail:
		return gmail.Connect(ctx, req.Credentials, c.Gmail)
	}
	return nil, &mailbox.ConnectionError{
		Op:  mailbox.OpValidate,
		Err: fmt.Errorf("unsupported connection method %q", req.Credentials.Method),
	}
}
