package google

import (
	gmail "google.golang.org/api/gmail/v1"
)

// DefaultOAuthScopes grant read-only mailbox access, which is all that
// listing and fetching messages needs.
var DefaultOAuthScopes = []string{
	gmail.GmailReadonlyScope,
}
