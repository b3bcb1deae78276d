package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// BusinessError is a transport-successful response whose envelope carries a
// non-success code. Error returns the server message unchanged so callers
// can display it as is.
type BusinessError struct {
	Code       int
	Message    string
	HTTPStatus int
}

func (e *BusinessError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with code %d", e.Code)
	}
	return e.Message
}

// AuthRejectedError reports that the server refused the bearer token. The
// session has already been cleared when this error is returned.
type AuthRejectedError struct {
	HTTPStatus int
	Code       int
	Message    string
}

func (e *AuthRejectedError) Error() string {
	if e.Message == "" {
		return "authentication rejected by server"
	}
	return e.Message
}

// TransportError reports that no response was obtained.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the request ran out of time
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// Outcome names the classification of one call
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeBusiness  Outcome = "business_failure"
	OutcomeAuth      Outcome = "auth_failure"
	OutcomeTransport Outcome = "transport_failure"
	OutcomeInvalid   Outcome = "invalid_request"
)

// Classify maps an error returned by the gateway to its outcome
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	var business *BusinessError
	var auth *AuthRejectedError
	var transport *TransportError
	switch {
	case errors.As(err, &auth):
		return OutcomeAuth
	case errors.As(err, &business):
		return OutcomeBusiness
	case errors.As(err, &transport):
		return OutcomeTransport
	default:
		return OutcomeInvalid
	}
}
