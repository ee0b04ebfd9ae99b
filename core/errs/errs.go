package errs

import "fmt"

// Code enumerates the closed set of wire error codes the engine surfaces.
type Code string

const (
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeInsufficientScope   Code = "INSUFFICIENT_SCOPE"
	CodeNotFound            Code = "NOT_FOUND"
	CodeSchemaInvalid       Code = "SCHEMA_INVALID"
	CodeConstraintViolation Code = "CONSTRAINT_VIOLATION"
	CodeConflict            Code = "CONFLICT"
	CodeIdempotencyMismatch Code = "IDEMPOTENCY_KEY_REUSE_PAYLOAD_MISMATCH"
)

// Error is the tagged error record returned by every engine operation.
// Transport adapters serialize it verbatim; the engine never wraps transport
// exceptions into it.
type Error struct {
	Code    Code                   `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithDetail attaches a key/value pair to the error details, allocating the
// map on first use, and returns the receiver for chaining.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e == nil {
		return nil
	}
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Reason is a convenience for the common `reason` detail used by signature
// and policy failures.
func (e *Error) Reason(reason string) *Error { return e.WithDetail("reason", reason) }

func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(format string, args ...interface{}) *Error {
	return New(CodeUnauthorized, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return New(CodeForbidden, format, args...)
}

func InsufficientScope(format string, args ...interface{}) *Error {
	return New(CodeInsufficientScope, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return New(CodeNotFound, format, args...)
}

func SchemaInvalid(format string, args ...interface{}) *Error {
	return New(CodeSchemaInvalid, format, args...)
}

func ConstraintViolation(format string, args ...interface{}) *Error {
	return New(CodeConstraintViolation, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return New(CodeConflict, format, args...)
}

func IdempotencyMismatch(storedHash, presentedHash string) *Error {
	err := New(CodeIdempotencyMismatch, "idempotency key reused with a different payload")
	err.WithDetail("stored_payload_hash", storedHash)
	err.WithDetail("presented_payload_hash", presentedHash)
	return err
}
