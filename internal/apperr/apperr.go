// Package apperr defines the error taxonomy shared by every exposed operation.
// Each failure carries a machine-readable Kind and a human-readable message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
)

// Kind classifies a failure for callers and operators.
type Kind string

const (
	KindValidation          Kind = "ValidationError"
	KindNotFound            Kind = "NotFound"
	KindIntegrationDisabled Kind = "IntegrationDisabled"
	KindProvisioning        Kind = "ProvisioningError"
	KindTimeout             Kind = "Timeout"
	KindUnauthenticated     Kind = "Unauthenticated"
	KindForbidden           Kind = "Forbidden"
	KindConflict            Kind = "Conflict"
	KindInternal            Kind = "Internal"
)

// Error is a classified failure. Err, when set, is the upstream cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind, prefixing it with msg.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func Disabled(format string, args ...any) *Error {
	return New(KindIntegrationDisabled, format, args...)
}

func Provisioning(err error, msg string) *Error {
	return Wrap(KindProvisioning, err, msg)
}

func Timeout(err error, msg string) *Error {
	return Wrap(KindTimeout, err, msg)
}

func Unauthenticated(format string, args ...any) *Error {
	return New(KindUnauthenticated, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return New(KindForbidden, format, args...)
}

func Internal(err error, msg string) *Error {
	return Wrap(KindInternal, err, msg)
}

// KindOf returns the Kind of the first *Error in err's chain.
// Unclassified errors are reported as KindInternal; nil yields "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the human-readable part of err. Internal errors are not
// echoed to callers verbatim.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindInternal {
			if e.Message != "" {
				return e.Message
			}
			return "internal error"
		}
		return e.Error()
	}
	return "internal error"
}

// HTTPStatus maps a Kind to the status code used on the REST surface.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindProvisioning:
		return http.StatusBadGateway
	case KindIntegrationDisabled:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode maps a Kind onto the closest gRPC status code.
func (k Kind) GRPCCode() codes.Code {
	switch k {
	case KindValidation:
		return codes.InvalidArgument
	case KindUnauthenticated:
		return codes.Unauthenticated
	case KindForbidden:
		return codes.PermissionDenied
	case KindNotFound:
		return codes.NotFound
	case KindConflict:
		return codes.AlreadyExists
	case KindProvisioning:
		return codes.Unavailable
	case KindIntegrationDisabled:
		return codes.FailedPrecondition
	case KindTimeout:
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}
