package extract

import (
	"path"
	"strings"
)

// Kind is the extraction strategy selected for an attachment.
type Kind int

const (
	KindUnsupported Kind = iota
	KindPDF
	KindDOCX
	KindPlain
)

func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindDOCX:
		return "docx"
	case KindPlain:
		return "txt"
	default:
		return "unsupported"
	}
}

// KindOf dispatches on the filename suffix, ignoring case.
func KindOf(filename string) Kind {
	switch strings.ToLower(path.Ext(strings.TrimSpace(filename))) {
	case ".pdf":
		return KindPDF
	case ".docx":
		return KindDOCX
	case ".txt":
		return KindPlain
	default:
		return KindUnsupported
	}
}
