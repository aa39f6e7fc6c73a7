package research

import (
	"errors"
	"fmt"

	"github.com/harun/ideascout/pkg/toolexecutor"
)

var (
	// ErrEmptyQuery is returned for a blank query.
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrModelInvocation wraps provider failures and unusable responses.
	ErrModelInvocation = errors.New("model invocation failed")
	// ErrToolFailure is an unrecoverable tool error propagated by the executor.
	ErrToolFailure = toolexecutor.ErrToolFailure
	// ErrUnknownTool is a call naming a tool outside the registry.
	ErrUnknownTool = toolexecutor.ErrUnknownTool
	// ErrCheckpoint wraps checkpoint store failures.
	ErrCheckpoint = errors.New("checkpoint failed")
	// ErrLoopLimit is returned when the planner keeps requesting tools past MaxIterations.
	ErrLoopLimit = errors.New("planner loop limit exceeded")
	// ErrPayloadDecode marks synthesizer output that violates the profile contract.
	ErrPayloadDecode = errors.New("payload decode failed")
	// ErrRetryExhausted marks a request whose every attempt failed.
	ErrRetryExhausted = errors.New("retry exhausted")
	// ErrUnknownProfile is returned by ProfileByName.
	ErrUnknownProfile = errors.New("unknown research profile")
)

// RetryExhaustedError reports that every attempt failed.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

// Reason is the caller-facing failure text.
func (e *RetryExhaustedError) Reason() string {
	return fmt.Sprintf("Failed to process request after %d attempts", e.Attempts)
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("failed to process request after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() []error {
	return []error{ErrRetryExhausted, e.Last}
}

// PayloadDecodeError carries the reason a structured payload was rejected.
type PayloadDecodeError struct {
	Profile string
	Detail  string
	Raw     string
}

func (e *PayloadDecodeError) Error() string {
	return fmt.Sprintf("%s payload decode failed: %s", e.Profile, e.Detail)
}

func (e *PayloadDecodeError) Unwrap() error {
	return ErrPayloadDecode
}
