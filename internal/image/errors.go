package image

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Kind is the closed set of ways a call to the WebUI can fail.
type Kind int

const (
	KindUnexpected Kind = iota
	KindConnection
	KindTimeout
	KindRemote
	KindEmptyResult
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindRemote:
		return "remote"
	case KindEmptyResult:
		return "empty result"
	default:
		return "unexpected"
	}
}

// ErrNoImages is wrapped by the EmptyResult error.
var ErrNoImages = errors.New("response did not contain any images")

type Error struct {
	Kind Kind
	Op   string
	URL  string
	Err  error
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// StatusError reports a non-2xx answer from the WebUI.
type StatusError struct {
	StatusCode int
	Status     string
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return "server returned " + e.Status
	}
	return fmt.Sprintf("server returned %s: %s", e.Status, e.Detail)
}

// KindOf reports the Kind of err. Errors that did not come from this
// package are Unexpected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// classify decides the Kind of an error returned while sending a request or
// reading its response.
func classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindConnection
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return KindConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return KindConnection
	}
	return KindRemote
}
