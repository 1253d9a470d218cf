// Package logging provides structured logging helpers for mailcontract.
//
// All packages log through log/slog. This package keeps attribute names
// consistent and makes sure mailbox addresses and secrets never reach the
// log output in clear text.
//
// Scope a logger to a pipeline session and attach attributes:
//
//	logger := logging.WithSession(slog.Default(), id)
//	logger.Info("message selected",
//	    logging.MessageID(msgID),
//	    logging.Status(logging.StatusSuccess))
//
// Hash addresses before logging them:
//
//	logger.Info("connected", logging.UserHash(address), logging.Method("imap"))
//
// Secrets (app passwords, OAuth tokens) must go through SanitizeToken.
package logging
