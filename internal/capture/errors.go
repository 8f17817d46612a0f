package capture

import (
	"errors"
	"fmt"
)

const (
	CodeValidation      = "VALIDATION"
	CodeNoActiveContext = "NO_ACTIVE_CONTEXT"
	CodeStaleFrame      = "STALE_FRAME"
	CodeEngineFailure   = "ENGINE_FAILURE"
	CodeCDPUnavailable  = "CDP_UNAVAILABLE"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// NewValidationError reports malformed input from a notifier or API caller.
func NewValidationError(msg string) error {
	return newError(CodeValidation, msg, nil)
}

func errNoActiveContext(id ContextID) error {
	return newError(CodeNoActiveContext, fmt.Sprintf("context %q is not active", id), nil)
}

func errStaleFrame(ref FrameRef) error {
	return newError(CodeStaleFrame, fmt.Sprintf("frame %q document %q is no longer live", ref.FrameID, ref.Document), nil)
}

// HasCode reports whether err carries the given CodedError code.
func HasCode(err error, code string) bool {
	var coded *CodedError
	return errors.As(err, &coded) && coded.Code == code
}

// IsStaleFrame reports whether err means a callback referred to a frame
// that has since navigated, hidden or detached.
func IsStaleFrame(err error) bool { return HasCode(err, CodeStaleFrame) }

// IsNoActiveContext reports whether err means the context was unknown or
// already closed.
func IsNoActiveContext(err error) bool { return HasCode(err, CodeNoActiveContext) }
