package mashov

import (
	"errors"
	"fmt"
)

// ErrorKind classifies client failures.
type ErrorKind string

const (
	KindAuth        ErrorKind = "auth"
	KindNetwork     ErrorKind = "network"
	KindTimeout     ErrorKind = "timeout"
	KindMalformed   ErrorKind = "malformed"
	KindNoData      ErrorKind = "no_data"
	KindUnavailable ErrorKind = "unavailable"
	KindHTTP        ErrorKind = "http"
)

// ClientError is the root of every error returned by the client.
type ClientError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("mashov: %s: %v", msg, e.Err)
	}
	return "mashov: " + msg
}

// Unwrap returns the wrapped error.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// AuthError reports rejected credentials or lost authorization. It is never retried.
type AuthError struct {
	*ClientError
}

// Unwrap exposes the embedded ClientError so errors.As matches both types.
func (e *AuthError) Unwrap() error {
	if e == nil || e.ClientError == nil {
		return nil
	}
	return e.ClientError
}

func newError(kind ErrorKind, status int, message string, err error) *ClientError {
	return &ClientError{Kind: kind, Status: status, Message: message, Err: err}
}

func newAuthError(status int, message string, err error) *AuthError {
	return &AuthError{ClientError: newError(KindAuth, status, message, err)}
}

// Sentinels wrapped by ClientError values.
var (
	ErrNoAuthData     = errors.New("no authentication data in response")
	ErrNoChildren     = errors.New("no children in authentication response")
	ErrSessionClosed  = errors.New("session closed")
	ErrNotLoggedIn    = errors.New("not logged in")
	ErrSchoolNotFound = errors.New("school not found")
)

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

func isUnavailable(err error) bool {
	var clientErr *ClientError
	return errors.As(err, &clientErr) && clientErr.Kind == KindUnavailable
}
