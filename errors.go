package akapi

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a dispatcher failure.
type ErrorKind string

const (
	KindInvalidPayload     ErrorKind = "InvalidPayload"
	KindWriteNotAllowed    ErrorKind = "WriteNotAllowed"
	KindTransport          ErrorKind = "TransportError"
	KindInvalidReceiveMode ErrorKind = "InvalidReceiveMode"
	KindInterpret          ErrorKind = "InterpretError"
	KindValidation         ErrorKind = "ValidationError"
)

// Sentinels for errors.Is. They match any *APIError of the same kind.
var (
	ErrInvalidPayload     = &APIError{Kind: KindInvalidPayload}
	ErrWriteNotAllowed    = &APIError{Kind: KindWriteNotAllowed}
	ErrTransport          = &APIError{Kind: KindTransport}
	ErrInvalidReceiveMode = &APIError{Kind: KindInvalidReceiveMode}
	ErrInterpret          = &APIError{Kind: KindInterpret}
)

const errorPrefix = "akapi: "

// APIError is returned for every failed call.
type APIError struct {
	Kind    ErrorKind
	Message string
	Cause   error

	CallID uint64
	Method Method
	Path   string

	// Status and Body are set for TransportError when a response arrived.
	Status int
	Body   string
}

// Error implements error. The text always starts with "akapi: ".
func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(errorPrefix)
	if e.CallID > 0 {
		fmt.Fprintf(&b, "[call %d] ", e.CallID)
	}
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Status > 0 {
		fmt.Fprintf(&b, ": response status %d (%s)", e.Status, e.Body)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, " (%v)", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error kinds for errors.Is.
func (e *APIError) Is(target error) bool {
	if e == nil {
		return false
	}
	if t, ok := target.(*APIError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// KindOf returns the kind of err, or "" if err is not an *APIError.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// alertText is the message shown to the user for a failure.
func alertText(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return "API Error: " + strings.TrimPrefix(apiErr.Error(), errorPrefix)
	}
	return "API Error: " + err.Error()
}
