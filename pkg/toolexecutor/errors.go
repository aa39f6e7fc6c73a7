package toolexecutor

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTool is returned when a call names a tool that is not registered.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrToolFailure is returned when a handler fails with an unrecoverable error.
	ErrToolFailure = errors.New("tool failure")
	// ErrUnrecoverable marks handler errors that must abort the attempt.
	ErrUnrecoverable = errors.New("unrecoverable")
	// ErrDuplicateTool is returned when registering a name twice.
	ErrDuplicateTool = errors.New("tool already registered")
)

// Unrecoverable wraps err so the executor propagates it instead of recording it.
func Unrecoverable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrUnrecoverable, err)
}
