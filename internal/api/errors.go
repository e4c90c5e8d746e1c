package api

import (
	"fmt"
	"net/http"
)

// ValidationError reports bad user input. It is always produced locally,
// before any network traffic.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// AuthenticationError means the credential could not be refreshed (or none
// was held). The client clears its credential before returning it, so the
// caller must send the user back through the login flow.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	return e.Message
}

// HTTPError is a non-2xx response that survived the allowed refresh retry.
// Detail carries the server-supplied message when the body had one.
type HTTPError struct {
	StatusCode int
	Detail     string
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// TransportError is a network-level failure (DNS, refused connection,
// timeout). It never triggers a token refresh.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request failed: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
