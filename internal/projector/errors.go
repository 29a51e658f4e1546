package projector

import (
	"errors"
	"fmt"
)

// ErrHalted matches every error that stops the projector for good.
// A halted projector refuses further work until it is rebuilt.
var ErrHalted = errors.New("projector halted")

// ErrorCode categorizes projector failures.
type ErrorCode string

const (
	// CodeHalted indicates a retraction could not be completed.
	CodeHalted ErrorCode = "HALTED"

	// CodeConflict indicates a stored entity differs from the one the
	// source delivered under the same id.
	CodeConflict ErrorCode = "CONFLICT"

	// CodeSourceMismatch indicates the store was indexed from another source.
	CodeSourceMismatch ErrorCode = "SOURCE_MISMATCH"

	// CodeUnavailable indicates the store or source stayed unavailable for
	// the whole retry budget.
	CodeUnavailable ErrorCode = "UNAVAILABLE"
)

// Error is a projector failure at a given block.
type Error struct {
	Code    ErrorCode
	Block   uint64
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s (block=%d)", e.Code, e.Message, e.Block)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports fail-stop errors as ErrHalted. UNAVAILABLE is not fail-stop:
// a later run may resume from the checkpoint.
func (e *Error) Is(target error) bool {
	return target == ErrHalted && e.Code != CodeUnavailable
}

// IsConflict reports whether err is a CONFLICT failure.
func IsConflict(err error) bool {
	return CodeOf(err) == CodeConflict
}

// CodeOf returns the code of a projector error, or "".
func CodeOf(err error) ErrorCode {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
