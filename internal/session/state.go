package session

import (
	"errors"
	"fmt"
)

// State is the position of a session in the pipeline.
type State int

const (
	Disconnected State = iota
	Connected
	MessageSelected
	TextExtracted
	ContractGenerated
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case MessageSelected:
		return "message selected"
	case TextExtracted:
		return "text extracted"
	case ContractGenerated:
		return "contract generated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	// ErrInvalidState is returned when an operation is called before the
	// steps it depends on.
	ErrInvalidState = errors.New("operation not allowed in the current session state")

	// ErrNoContent is returned by Generate when neither the body nor any
	// attachment produced text.
	ErrNoContent = errors.New("no text to summarize")
)

// StateError reports an out of order operation.
type StateError struct {
	Op       string
	State    State
	Required State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s requires the session to be %s, but it is %s", e.Op, e.Required, e.State)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// NoticeLevel classifies a Notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
)

// Notice is a user facing message produced while a step ran.
type Notice struct {
	Level   NoticeLevel
	Message string
}

func (n Notice) String() string {
	return string(n.Level) + ": " + n.Message
}
