package mailbox

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"jaytaylor.com/html2text"
)

// EmptyBodyPlaceholder is shown by surfaces when a message has no body text.
const EmptyBodyPlaceholder = "(no body text found)"

// Preview shortens body to at most max runes for display. A blank body
// yields EmptyBodyPlaceholder; max <= 0 keeps the whole body.
func Preview(body string, max int) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return EmptyBodyPlaceholder
	}
	if max <= 0 {
		return body
	}
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	return string(runes[:max]) + "..."
}

// ParseMessage builds a Message from a raw RFC 822 payload.
//
// The body is the first text/plain part that is not an attachment. When a
// message only carries HTML, the first text/html part is converted to text.
// Every part with a filename is recorded as an attachment in order.
func ParseMessage(id string, raw []byte) (*Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to parse message %s: %w", id, err)
	}
	defer mr.Close()

	msg := &Message{ID: id}
	fields := mr.Header.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		msg.Header = append(msg.Header, HeaderField{Key: fields.Key(), Value: value})
	}

	msg.Subject, _ = mr.Header.Subject()
	if msg.Subject == "" {
		msg.Subject = mr.Header.Get("Subject")
	}
	msg.From = FormatAddressList(&mr.Header, "From")
	msg.Date, _ = mr.Header.Date()

	var (
		plain   string
		hasBody bool
		html    string
		hasHTML bool
	)

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("failed to read part of message %s: %w", id, err)
		}
		if part == nil {
			break
		}

		data, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read part of message %s: %w", id, err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			disposition, params, _ := h.ContentDisposition()
			if filename := params["filename"]; filename != "" {
				msg.Attachments = append(msg.Attachments, AttachmentPart{
					Filename:    filename,
					ContentType: contentType,
					Disposition: dispositionOf(disposition),
					Data:        data,
				})
			}
			switch {
			case contentType == "text/plain" && !hasBody:
				plain, hasBody = string(data), true
			case contentType == "text/html" && !hasHTML:
				html, hasHTML = string(data), true
			}
		case *mail.AttachmentHeader:
			contentType, _, _ := h.ContentType()
			filename, _ := h.Filename()
			if filename == "" {
				continue
			}
			msg.Attachments = append(msg.Attachments, AttachmentPart{
				Filename:    filename,
				ContentType: contentType,
				Disposition: DispositionAttachment,
				Data:        data,
			})
		}
	}

	switch {
	case hasBody:
		msg.Body = plain
	case hasHTML:
		msg.Body = HTMLToText(html)
	}

	return msg, nil
}

// HTMLToText converts an HTML body to plain text. The raw markup is returned
// when conversion fails.
func HTMLToText(html string) string {
	text, err := html2text.FromString(html, html2text.Options{OmitLinks: true})
	if err != nil {
		return html
	}
	return text
}

// FormatAddressList renders the addresses of a header field as a single
// comma separated string.
func FormatAddressList(h *mail.Header, key string) string {
	addrs, err := h.AddressList(key)
	if err != nil || len(addrs) == 0 {
		return h.Get(key)
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return strings.Join(out, ", ")
}

func dispositionOf(disposition string) Disposition {
	if strings.EqualFold(disposition, string(DispositionAttachment)) {
		return DispositionAttachment
	}
	return DispositionInline
}
