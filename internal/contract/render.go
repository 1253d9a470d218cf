package contract

import (
	"bytes"
	_ "embed"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Format is an output document format.
type Format string

const (
	FormatDOCX     Format = "docx"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// ContentType is sent with every download so browsers save the file.
const ContentType = "application/octet-stream"

// ParseFormat converts a format name into a Format. The empty string selects
// FormatDOCX.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "docx":
		return FormatDOCX, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("unknown contract format %q (supported: docx, markdown, html)", s)
}

// Extension returns the file extension for the format.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return "md"
	case FormatHTML:
		return "html"
	default:
		return "docx"
	}
}

// Filename is the download name for the format.
func (f Format) Filename() string {
	return "generated_contract." + f.Extension()
}

// Document is a rendered contract ready for download.
type Document struct {
	Filename    string
	ContentType string
	Format      Format
	Data        []byte
}

// RenderError is fatal: no partial document is returned alongside it.
type RenderError struct {
	Format Format
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("failed to render contract as %s: %v", e.Format, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

//go:embed template.docx
var docxTemplate []byte

// Render serializes c in the requested format.
func Render(c Contract, format Format) (*Document, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatDOCX, "":
		format = FormatDOCX
		data, err = renderDOCX(c)
	case FormatMarkdown:
		data = []byte(Markdown(c))
	case FormatHTML:
		data, err = renderHTML(c)
	default:
		err = errors.New("unsupported format")
	}
	if err != nil {
		return nil, &RenderError{Format: format, Err: err}
	}

	return &Document{
		Filename:    format.Filename(),
		ContentType: ContentType,
		Format:      format,
		Data:        data,
	}, nil
}

// renderDOCX fills the embedded template's document.xml with the contract.
func renderDOCX(c Contract) ([]byte, error) {
	tpl, err := docx.ReadDocxFromMemory(bytes.NewReader(docxTemplate), int64(len(docxTemplate)))
	if err != nil {
		return nil, fmt.Errorf("failed to open template: %w", err)
	}
	defer tpl.Close()

	body, err := documentXML(c)
	if err != nil {
		return nil, err
	}

	doc := tpl.Editable()
	doc.SetContent(body)

	var buf bytes.Buffer
	if err := doc.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write document: %w", err)
	}
	return buf.Bytes(), nil
}

func documentXML(c Contract) (string, error) {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)

	if err := writeParagraph(&b, "Title", c.Title); err != nil {
		return "", err
	}
	if err := writeParagraph(&b, "", c.Intro); err != nil {
		return "", err
	}
	for _, s := range c.Sections {
		if err := writeParagraph(&b, "Heading1", s.Heading); err != nil {
			return "", err
		}
		if err := writeParagraph(&b, "", s.Body); err != nil {
			return "", err
		}
	}

	b.WriteString(`</w:body></w:document>`)
	return b.String(), nil
}

// writeParagraph emits one w:p. Line breaks inside text become w:br so a
// multi-line body stays a single paragraph.
func writeParagraph(b *strings.Builder, style, text string) error {
	b.WriteString("<w:p>")
	if style != "" {
		fmt.Fprintf(b, `<w:pPr><w:pStyle w:val="%s"/></w:pPr>`, style)
	}
	b.WriteString("<w:r>")
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		if i > 0 {
			b.WriteString("<w:br/>")
		}
		b.WriteString(`<w:t xml:space="preserve">`)
		if err := xml.EscapeText(b, []byte(stripControl(line))); err != nil {
			return err
		}
		b.WriteString("</w:t>")
	}
	b.WriteString("</w:r></w:p>")
	return nil
}

// stripControl removes characters XML 1.0 cannot carry.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || r >= 0x20 && r != 0xFFFE && r != 0xFFFF {
			return r
		}
		return -1
	}, s)
}

// Markdown renders c as a Markdown document.
func Markdown(c Contract) string {
	return markdown(c, func(s string) string { return s })
}

func markdown(c Contract, text func(string) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n", c.Title, text(c.Intro))
	for _, s := range c.Sections {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", s.Heading, strings.TrimRight(text(s.Body), "\n"))
	}
	return b.String()
}

var htmlRenderer = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

func renderHTML(c Contract) ([]byte, error) {
	var body bytes.Buffer
	if err := htmlRenderer.Convert([]byte(markdown(c, escapeMarkdown)), &body); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n",
		html.EscapeString(c.Title))
	out.Write(body.Bytes())
	out.WriteString("</body>\n</html>\n")
	return out.Bytes(), nil
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`, "{", `\{`, "}", `\}`,
	"[", `\[`, "]", `\]`, "<", `\<`, ">", `\>`, "#", `\#`, "+", `\+`,
	"-", `\-`, "|", `\|`, "!", `\!`, "~", `\~`,
)

// escapeMarkdown keeps mail text literal when it passes through goldmark.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
