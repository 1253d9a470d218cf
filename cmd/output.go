package cmd

import (
	"fmt"
	"io"

	"github.com/teemow/mailcontract/internal/mailbox"
	"github.com/teemow/mailcontract/internal/session"
)

// previewRunes bounds the body preview printed by show and select.
const previewRunes = 500

func printSummaries(w io.Writer, summaries []mailbox.MessageSummary) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No messages found.")
		return
	}
	for i, m := range summaries {
		fmt.Fprintf(w, "%s [id: %s]\n", m.Label(i+1), m.ID)
	}
}

func printMessage(w io.Writer, msg *mailbox.Message) {
	fmt.Fprintf(w, "From:    %s\n", msg.From)
	if to := msg.HeaderValue("To"); to != "" {
		fmt.Fprintf(w, "To:      %s\n", to)
	}
	fmt.Fprintf(w, "Subject: %s\n", msg.Subject)
	if !msg.Date.IsZero() {
		fmt.Fprintf(w, "Date:    %s\n", msg.Date.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(w, "\n%s\n", mailbox.Preview(msg.Body, previewRunes))

	if len(msg.Attachments) == 0 {
		return
	}
	fmt.Fprintln(w, "\nAttachments:")
	for _, a := range msg.Attachments {
		fmt.Fprintf(w, "  - %s (%s, %d bytes)\n", a.Filename, a.ContentType, a.Size())
	}
}

func printNotices(w io.Writer, notices []session.Notice) {
	for _, n := range notices {
		fmt.Fprintln(w, n)
	}
}
