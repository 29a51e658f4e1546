package registry

import (
	"errors"
	"fmt"

	"github.com/roach88/s01l/internal/ir"
)

// ErrorCode categorizes rejected calls.
type ErrorCode string

const (
	// CodeUnauthorized: caller is neither the owner nor, where allowed, trusted.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// CodeInvalidAddress: a zero address where a real principal is required.
	CodeInvalidAddress ErrorCode = "INVALID_ADDRESS"

	// CodeInvalidInput: malformed arguments (bad text, unknown method).
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeWriteOnce: the call would overwrite a record or lineage edge.
	CodeWriteOnce ErrorCode = "WRITE_ONCE_VIOLATION"
)

// Error is a rejected call. No state changed and no event was emitted.
type Error struct {
	Code    ErrorCode
	Op      string
	Caller  ir.Address
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s (caller=%s)", e.Op, e.Code, e.Message, e.Caller)
}

func reject(code ErrorCode, op string, caller ir.Address, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Caller: caller, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of a registry error, or "" if err is not one.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsUnauthorized returns true if the call was rejected for authorization.
func IsUnauthorized(err error) bool {
	return CodeOf(err) == CodeUnauthorized
}

// IsInvalidInput returns true if the call was rejected for malformed input,
// including zero addresses.
func IsInvalidInput(err error) bool {
	code := CodeOf(err)
	return code == CodeInvalidInput || code == CodeInvalidAddress
}
