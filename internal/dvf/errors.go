package dvf

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies why a registry fetch failed.
type ErrorKind string

const (
	KindTimeout        ErrorKind = "TIMEOUT"
	KindNetwork        ErrorKind = "NETWORK"
	KindHTTP           ErrorKind = "HTTP"
	KindInvalidPayload ErrorKind = "INVALID_PAYLOAD"
)

// FetchError carries enough context to diagnose a failed page request.
type FetchError struct {
	Kind       ErrorKind
	Endpoint   string
	Page       int
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("dvf %s on page %d of %s: status %d", e.Kind, e.Page, e.Endpoint, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("dvf %s on page %d of %s: %v", e.Kind, e.Page, e.Endpoint, e.Err)
	default:
		return fmt.Sprintf("dvf %s on page %d of %s", e.Kind, e.Page, e.Endpoint)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Cause is a human readable reason, used in API error payloads.
func (e *FetchError) Cause() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

// classifyTransportError separates deadline expiry from other transport failures.
func classifyTransportError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}
