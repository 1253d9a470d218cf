// Package extract turns email attachments into plain text.
package extract

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/teemow/mailcontract/internal/logging"
	"github.com/teemow/mailcontract/internal/mailbox"
)

// Entry is the outcome for one attachment.
type Entry struct {
	Filename string
	Kind     Kind
	Text     string
	Err      error
}

// Unsupported reports whether the attachment type has no extractor.
func (e Entry) Unsupported() bool {
	return errors.Is(e.Err, ErrUnsupported)
}

// Failed reports whether a supported attachment could not be parsed.
func (e Entry) Failed() bool {
	return e.Err != nil && !e.Unsupported()
}

// Result holds extracted text in attachment order.
type Result struct {
	Entries []Entry
}

// Text concatenates the text of all entries.
func (r *Result) Text() string {
	var b strings.Builder
	for _, e := range r.Entries {
		b.WriteString(e.Text)
	}
	return b.String()
}

// Map returns filename to extracted text. Unsupported and failed attachments
// map to an empty string.
func (r *Result) Map() map[string]string {
	m := make(map[string]string, len(r.Entries))
	for _, e := range r.Entries {
		m[e.Filename] = e.Text
	}
	return m
}

// All extracts every attachment in order. A failing attachment degrades to
// empty text and does not stop the others. Only context cancellation is
// returned as an error.
func All(ctx context.Context, parts []mailbox.AttachmentPart, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	res := &Result{Entries: make([]Entry, 0, len(parts))}
	for _, part := range parts {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		text, err := Text(part.Filename, part.Data)
		entry := Entry{Filename: part.Filename, Kind: KindOf(part.Filename), Text: text, Err: err}
		res.Entries = append(res.Entries, entry)

		attrs := []any{
			slog.String("filename", part.Filename),
			slog.String("kind", entry.Kind.String()),
			slog.Int("size", part.Size()),
		}
		switch {
		case entry.Unsupported():
			logger.Info("unsupported attachment type for text extraction", attrs...)
		case entry.Failed():
			logger.Warn("attachment extraction failed", append(attrs, logging.Err(err))...)
		default:
			logger.Debug("attachment extracted", append(attrs, slog.Int("chars", len(text)))...)
		}
	}
	return res, nil
}
