// Package contract builds the generated contract document from a summary,
// the message body and the extracted attachment text.
package contract

import (
	"strings"
)

// Fixed document text.
const (
	Title = "Generated Contract"
	Intro = "Based on the selected email and attachments."

	HeadingSummary     = "Summary"
	HeadingBody        = "Original Email Body"
	HeadingAttachments = "Attachments (extracted)"
)

// Section is one heading followed by one paragraph.
type Section struct {
	Heading string
	Body    string
}

// Contract is the ordered document model handed to Render.
type Contract struct {
	Title    string
	Intro    string
	Sections []Section
}

// Build assembles a Contract. The summary section is always present. The
// body section is left out when the body is empty and the attachment
// section when the attachment text is blank.
func Build(summary, body, attachments string) Contract {
	c := Contract{
		Title:    Title,
		Intro:    Intro,
		Sections: []Section{{Heading: HeadingSummary, Body: summary}},
	}
	if body != "" {
		c.Sections = append(c.Sections, Section{Heading: HeadingBody, Body: body})
	}
	if strings.TrimSpace(attachments) != "" {
		c.Sections = append(c.Sections, Section{Heading: HeadingAttachments, Body: attachments})
	}
	return c
}

// Section returns the section with the given heading.
func (c Contract) Section(heading string) (Section, bool) {
	for _, s := range c.Sections {
		if s.Heading == heading {
			return s, true
		}
	}
	return Section{}, false
}
