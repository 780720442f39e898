package payment

import (
	"errors"
	"fmt"
)

// Kind classifies a payment failure. The string value is what API clients see.
type Kind string

const (
	KindInvalidRequest      Kind = "InvalidRequest"
	KindValidation          Kind = "ValidationError"
	KindProviderUnavailable Kind = "ProviderUnavailable"
	KindProviderProtocol    Kind = "ProviderProtocolError"
	KindProviderDeclined    Kind = "ProviderDeclined"
	KindTransactionNotFound Kind = "TransactionNotFound"
	KindUpdateFailed        Kind = "UpdateFailed"
	KindServerError         Kind = "ServerError"
)

// Error is a classified payment error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry the same request later.
func (e *Error) Retryable() bool {
	return e.Kind == KindProviderUnavailable || e.Kind == KindProviderProtocol
}

// E builds a classified error.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first classified error in err's chain,
// or KindServerError for anything unclassified.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindServerError
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
