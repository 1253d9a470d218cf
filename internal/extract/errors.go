package extract

import (
	"errors"
	"fmt"
)

// ErrUnsupported signals an attachment type without an extractor. It is an
// expected outcome, not a failure.
var ErrUnsupported = errors.New("unsupported attachment type")

// ErrTooLarge is returned for attachments above MaxAttachmentSize.
var ErrTooLarge = errors.New("attachment exceeds size limit")

// ExtractionError reports a corrupt or unreadable attachment. The attachment
// degrades to empty text and processing continues.
type ExtractionError struct {
	Filename string
	Kind     Kind
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("could not extract %s text from %s: %v", e.Kind, e.Filename, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
