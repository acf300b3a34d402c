// Package upstream classifies failures from the catalog, completion, and
// delivery services so callers can decide per call site whether to degrade.
package upstream

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Kind is the coarse failure class of an upstream call.
type Kind string

const (
	KindTransport Kind = "transport"
	KindStatus    Kind = "status"
	KindDecode    Kind = "decode"
	KindEmpty     Kind = "empty"
	KindUnknown   Kind = "unknown"
)

// maxErrorBody bounds how much of a failed response body is kept for logs.
const maxErrorBody = 4096

// Error is returned by every upstream adapter.
type Error struct {
	Service    string
	Kind       Kind
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindStatus:
		return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Service, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Service, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the upstream status, or 0 when no response was read.
func (e *Error) HTTPStatusCode() int {
	return e.StatusCode
}

// Transport wraps a network or request construction failure.
func Transport(service string, err error) *Error {
	return &Error{Service: service, Kind: KindTransport, Err: err}
}

// Status records a non-success HTTP status and a truncated body.
func Status(service string, code int, body string) *Error {
	return &Error{Service: service, Kind: KindStatus, StatusCode: code, Body: body}
}

// Decode wraps a malformed response payload.
func Decode(service string, err error) *Error {
	return &Error{Service: service, Kind: KindDecode, Err: err}
}

// Empty reports a well-formed response that carried nothing usable.
func Empty(service, detail string) *Error {
	return &Error{Service: service, Kind: KindEmpty, Err: errors.New(detail)}
}

// KindOf returns the Kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return KindUnknown
}

// CheckResponse turns a non-2xx response into a Status error. The body is
// drained up to maxErrorBody bytes; callers still own closing it.
func CheckResponse(service string, res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	buf, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	return Status(service, res.StatusCode, string(buf))
}

// ReadBody reads a successful response body, capped at 1 MiB.
func ReadBody(service string, res *http.Response) ([]byte, error) {
	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, Transport(service, fmt.Errorf("read response body: %w", err))
	}
	return buf, nil
}
