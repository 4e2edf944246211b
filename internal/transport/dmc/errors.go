// internal/transport/dmc/errors.go
package dmc

import (
	"errors"
	"fmt"
)

var (
	// ErrRejected means the controller answered '?'.
	ErrRejected = errors.New("dmc: command rejected")

	// ErrClosed means the connection was closed locally.
	ErrClosed = errors.New("dmc: connection closed")

	// ErrBadRecord means the data record did not have the expected shape.
	ErrBadRecord = errors.New("dmc: malformed data record")

	// ErrTimeout means no byte arrived within the read timeout.
	ErrTimeout = errors.New("dmc: read timeout")
)

// CommandError carries the command that failed.
type CommandError struct {
	Cmd string
	Err error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("dmc: %q: %v", e.Cmd, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
