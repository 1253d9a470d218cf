// Package gmail reads a mailbox through the Gmail REST API.
//
// The client authenticates with an OAuth2 token source obtained from the
// google package and is read-only: it lists unread inbox messages and
// materializes a single message with its attachments on demand.
//
// Listing issues one messages.list call capped at the page size followed by
// a metadata get per message. Fetching issues a full get and one
// attachments.get call for every attachment stored out of line.
//
// Example usage:
//
//	src, err := gmail.Connect(ctx, mailbox.Credentials{
//	    Method:      mailbox.MethodGmail,
//	    TokenSource: tokens,
//	}, gmail.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer src.Close()
//
//	summaries, err := src.List(ctx, 10)
package gmail
