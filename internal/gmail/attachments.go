package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/mailcontract/internal/extract"
	"github.com/teemow/mailcontract/internal/logging"
	"github.com/teemow/mailcontract/internal/mailbox"
)

// GetMessage retrieves a full Gmail message.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*gmail.Message, error) {
	msg, err := c.svc.Messages.Get(user, messageID).Format("full").Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", mailbox.ErrMessageNotFound, messageID)
		}
		return nil, mailbox.Wrap(mailbox.OpFetch, fmt.Errorf("failed to get message %s: %w", messageID, err))
	}
	return msg, nil
}

// GetAttachment downloads one attachment stored out of line.
func (c *Client) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	if messageID == "" {
		return nil, fmt.Errorf("messageID is required")
	}
	if attachmentID == "" {
		return nil, fmt.Errorf("attachmentID is required")
	}

	attachment, err := c.svc.Messages.Attachments.Get(user, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, mailbox.Wrap(mailbox.OpFetch, fmt.Errorf("failed to get attachment %s: %w", attachmentID, err))
	}

	if attachment.Size > extract.MaxAttachmentSize {
		return nil, fmt.Errorf("attachment size %d exceeds maximum size %d", attachment.Size, extract.MaxAttachmentSize)
	}

	data, err := decodeData(attachment.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment data: %w", err)
	}
	return data, nil
}

// attachments collects every part with a filename in document order.
// Oversized attachments are kept without data and a warning is logged.
func (c *Client) attachments(ctx context.Context, msg *gmail.Message) ([]mailbox.AttachmentPart, error) {
	var (
		parts    []mailbox.AttachmentPart
		firstErr error
	)
	walkParts(msg.Payload, func(part *gmail.MessagePart) {
		if firstErr != nil || part.Filename == "" || part.Body == nil {
			return
		}

		ap := mailbox.AttachmentPart{
			Filename:    part.Filename,
			ContentType: part.MimeType,
			Disposition: partDisposition(part),
		}

		switch {
		case part.Body.AttachmentId != "" && part.Body.Size > extract.MaxAttachmentSize:
			c.logger.Warn("skipping oversized attachment",
				slog.String("filename", SanitizeFilename(part.Filename)),
				slog.Int64("size", part.Body.Size))
		case part.Body.AttachmentId != "":
			data, err := c.GetAttachment(ctx, msg.Id, part.Body.AttachmentId)
			if err != nil {
				firstErr = err
				return
			}
			ap.Data = data
		case part.Body.Data != "":
			data, err := decodeData(part.Body.Data)
			if err != nil {
				c.logger.Warn("failed to decode inline attachment",
					slog.String("filename", SanitizeFilename(part.Filename)),
					logging.Err(err))
				break
			}
			ap.Data = data
		}
		parts = append(parts, ap)
	})
	return parts, firstErr
}

// messageBody returns the first text/plain part that is not an attachment,
// or the first text/html part converted to text when there is none.
func messageBody(payload *gmail.MessagePart) (string, error) {
	var plain, html *gmail.MessagePart
	walkParts(payload, func(part *gmail.MessagePart) {
		if part.Body == nil || part.Body.Data == "" || partDisposition(part) == mailbox.DispositionAttachment {
			return
		}
		switch {
		case plain == nil && strings.HasPrefix(part.MimeType, "text/plain"):
			plain = part
		case html == nil && strings.HasPrefix(part.MimeType, "text/html"):
			html = part
		}
	})

	switch {
	case plain != nil:
		data, err := decodeData(plain.Body.Data)
		return string(data), err
	case html != nil:
		data, err := decodeData(html.Body.Data)
		if err != nil {
			return "", err
		}
		return mailbox.HTMLToText(string(data)), nil
	}
	return "", nil
}

func partDisposition(part *gmail.MessagePart) mailbox.Disposition {
	for _, h := range part.Headers {
		if strings.EqualFold(h.Name, "Content-Disposition") {
			if strings.HasPrefix(strings.ToLower(strings.TrimSpace(h.Value)), "attachment") {
				return mailbox.DispositionAttachment
			}
			return mailbox.DispositionInline
		}
	}
	if part.Filename != "" {
		return mailbox.DispositionAttachment
	}
	return mailbox.DispositionInline
}

// decodeData decodes Gmail's base64url payloads, tolerating missing padding
// and standard alphabet input.
func decodeData(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(s)
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

// walkParts recursively walks through message parts
func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}

	fn(part)

	for _, subpart := range part.Parts {
		walkParts(subpart, fn)
	}
}

// SanitizeFilename sanitizes a filename to prevent path traversal attacks
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")
	filename = strings.ReplaceAll(filename, "..", "_")
	return filename
}
