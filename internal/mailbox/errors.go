package mailbox

import (
	"errors"
	"fmt"
)

// ErrConnection is the category shared by every mailbox connection failure.
var ErrConnection = errors.New("mailbox connection failed")

// ErrMessageNotFound is returned by Fetch for an unknown message ID.
var ErrMessageNotFound = errors.New("message not found")

// Connection operations reported in ConnectionError.Op.
const (
	OpValidate = "validate"
	OpDial     = "dial"
	OpLogin    = "login"
	OpSelect   = "select"
	OpList     = "list"
	OpFetch    = "fetch"
)

// ConnectionError covers bad credentials, authentication rejection and
// network or API failures. It is fatal to the current step and never retried.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrConnection, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", ErrConnection, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConnection}
	}
	return []error{ErrConnection, e.Err}
}

// Wrap returns err as a ConnectionError for op. Existing ConnectionErrors are
// returned unchanged.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return err
	}
	return &ConnectionError{Op: op, Err: err}
}
