package conversation

import (
	"errors"
	"fmt"
)

// ErrVoteOutOfRange is returned by Vote when the index does not point at a
// message that has a preceding prompt.
var ErrVoteOutOfRange = errors.New("vote index out of range")

// GenerationError reports a failure of the reply backend. The log passed to
// the failing operation is left untouched.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate reply: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Warning is a non-fatal, user-visible notice returned by a history
// operation that left the log unchanged. The zero value means no warning.
type Warning string

const (
	WarnUndoNotEnough  Warning = "not enough history to undo"
	WarnRetryNotEnough Warning = "not enough history to retry"
	WarnAlreadyEmpty   Warning = "history is already empty"
)

// String implements fmt.Stringer.
func (w Warning) String() string {
	return string(w)
}
