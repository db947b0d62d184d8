package utils

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for control-flow purposes.
type ErrorKind string

const (
	// KindConfiguration marks a tier unusable because required configuration
	// (credentials, URL) is absent. Never retried within a session.
	KindConfiguration ErrorKind = "configuration"
	// KindTransport marks a network or timeout failure while calling a tier.
	KindTransport ErrorKind = "transport"
	// KindBackend marks a tier that responded with malformed or unparseable
	// output.
	KindBackend ErrorKind = "backend"
	// KindValidation marks a malformed incoming scenario, rejected before any
	// tier is invoked.
	KindValidation ErrorKind = "validation"
)

// AppError wraps an operation, a classification, a human-facing message and
// the underlying error.
type AppError struct {
	Op   string
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError of the given kind.
func NewAppError(op string, kind ErrorKind, msg string, err error) error {
	return &AppError{Op: op, Kind: kind, Msg: msg, Err: err}
}

// ConfigurationError reports missing configuration with a remediation message.
func ConfigurationError(op, msg string) error {
	return &AppError{Op: op, Kind: KindConfiguration, Msg: msg}
}

// TransportError wraps a network-level failure.
func TransportError(op string, err error) error {
	return &AppError{Op: op, Kind: KindTransport, Msg: "transport failure", Err: err}
}

// BackendError wraps a malformed backend response.
func BackendError(op string, err error) error {
	return &AppError{Op: op, Kind: KindBackend, Msg: "malformed backend response", Err: err}
}

// ValidationError reports a malformed incoming scenario.
func ValidationError(op, msg string) error {
	return &AppError{Op: op, Kind: KindValidation, Msg: msg}
}

// KindOf extracts the classification from err, defaulting to KindTransport
// for plain errors so tier failures escalate rather than abort.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindTransport
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind ErrorKind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}
