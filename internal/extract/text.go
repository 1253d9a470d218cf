package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// MaxAttachmentSize is the largest attachment handed to a parser (25MB).
const MaxAttachmentSize = 25 * 1024 * 1024

// Text extracts plain text from one attachment. Unsupported types return an
// empty string and ErrUnsupported. Parser failures, including panics inside
// the parsing libraries, are returned as *ExtractionError.
func Text(filename string, data []byte) (text string, err error) {
	kind := KindOf(filename)
	if kind == KindUnsupported {
		return "", ErrUnsupported
	}
	if len(data) > MaxAttachmentSize {
		return "", &ExtractionError{Filename: filename, Kind: kind, Err: ErrTooLarge}
	}

	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &ExtractionError{Filename: filename, Kind: kind, Err: fmt.Errorf("parser panic: %v", r)}
		}
	}()

	switch kind {
	case KindPDF:
		text, err = pdfText(data)
	case KindDOCX:
		text, err = docxText(data)
	case KindPlain:
		text, err = plainText(data)
	}
	if err != nil {
		return "", &ExtractionError{Filename: filename, Kind: kind, Err: err}
	}
	return text, nil
}

// pdfText returns every page's text followed by a newline. Pages without
// text, such as scanned images, are skipped.
func pdfText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, content)
	}
	return joinPages(pages), nil
}

// joinPages terminates each page with a newline. Only pages with no text at
// all are dropped; whitespace is text.
func joinPages(pages []string) string {
	var b strings.Builder
	for _, content := range pages {
		if content == "" {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String()
}

func docxText(data []byte) (string, error) {
	if _, err := zip.NewReader(bytes.NewReader(data), int64(len(data))); err != nil {
		return "", fmt.Errorf("not a docx archive: %w", err)
	}
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	defer doc.Close()

	return paragraphs(doc.Editable().GetContent())
}

// paragraphs walks WordprocessingML and emits the text of each w:p element
// followed by a newline. Paragraphs nested in another one (text boxes) are
// emitted after the paragraph that holds them. mc:Fallback copies of the
// same content are skipped.
func paragraphs(documentXML string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(documentXML))

	var (
		out      strings.Builder
		stack    []*strings.Builder
		nested   []string
		inText   bool
		fallback int
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("malformed document.xml: %w", err)
		}

		if start, ok := tok.(xml.StartElement); ok && start.Name.Local == "Fallback" {
			fallback++
			continue
		}
		if end, ok := tok.(xml.EndElement); ok && end.Name.Local == "Fallback" {
			fallback--
			continue
		}
		if fallback > 0 {
			continue
		}

		var para *strings.Builder
		if len(stack) > 0 {
			para = stack[len(stack)-1]
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				stack = append(stack, &strings.Builder{})
			case "t":
				inText = true
			case "tab":
				if para != nil {
					para.WriteString("\t")
				}
			case "br", "cr":
				if para != nil {
					para.WriteString("\n")
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if para == nil {
					continue
				}
				stack = stack[:len(stack)-1]
				if len(stack) > 0 {
					nested = append(nested, para.String())
					continue
				}
				out.WriteString(para.String())
				out.WriteString("\n")
				for _, line := range nested {
					out.WriteString(line)
					out.WriteString("\n")
				}
				nested = nested[:0]
			case "t":
				inText = false
			}
		case xml.CharData:
			if para != nil && inText {
				para.Write(t)
			}
		}
	}
	return out.String(), nil
}

// plainText decodes UTF-8 (or UTF-16 when a BOM says so) and drops invalid
// byte sequences.
func plainText(data []byte) (string, error) {
	decoded, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), data)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(decoded), "") + "\n", nil
}
