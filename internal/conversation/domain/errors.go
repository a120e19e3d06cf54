package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConflict means another worker advanced the workflow first
	ErrConflict = errors.New("workflow was advanced concurrently")
	// ErrUnknownStatus is a data-integrity error on a stored status
	ErrUnknownStatus      = errors.New("unknown workflow status")
	ErrInvalidTransition  = errors.New("invalid workflow transition")
	ErrWorkflowNotFound   = errors.New("workflow not found")
	ErrApplicationMissing = errors.New("application not found")
)

// MalformedOutputError is returned when the generation backend keeps producing
// unusable output after a corrective re-prompt. Raw keeps the last output.
type MalformedOutputError struct {
	Stage string
	Raw   string
	Err   error
}

func (e *MalformedOutputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %s output: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("malformed %s output", e.Stage)
}

func (e *MalformedOutputError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether retrying err cannot help
func IsPermanent(err error) bool {
	var malformed *MalformedOutputError
	switch {
	case err == nil:
		return false
	case errors.As(err, &malformed):
		return true
	case errors.Is(err, ErrConflict), errors.Is(err, ErrUnknownStatus), errors.Is(err, ErrInvalidTransition):
		return true
	case errors.Is(err, context.Canceled):
		return true
	}
	return false
}
