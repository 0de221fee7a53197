package robotstate

import (
	"errors"
	"fmt"
)

// ErrorKind classifies fetch failures. Every kind is retried by the scheduler.
type ErrorKind int

const (
	KindNetwork ErrorKind = iota + 1
	KindHTTP
	KindInvalidShape
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindHTTP:
		return "http"
	case KindInvalidShape:
		return "invalid_shape"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is checks against a *FetchError.
var (
	ErrNetwork      = errors.New("robot state: network failure")
	ErrHTTP         = errors.New("robot state: unexpected http status")
	ErrInvalidShape = errors.New("robot state: invalid payload shape")
)

// FetchError is returned by Fetcher.Fetch and Decode.
type FetchError struct {
	Kind   ErrorKind
	Status int    // KindHTTP only
	Body   string // KindHTTP only: trimmed body excerpt
	Msg    string
	Err    error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("HTTP error: status %d, message: %s", e.Status, e.Body)
	case KindInvalidShape:
		return "invalid response: " + e.Msg
	default:
		return e.Msg
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrHTTP:
		return e.Kind == KindHTTP
	case ErrInvalidShape:
		return e.Kind == KindInvalidShape
	}
	return false
}

func networkError(err error) *FetchError {
	return &FetchError{Kind: KindNetwork, Msg: err.Error(), Err: err}
}

func httpError(status int, body string) *FetchError {
	return &FetchError{Kind: KindHTTP, Status: status, Body: body}
}

func invalidShape(format string, args ...any) *FetchError {
	return &FetchError{Kind: KindInvalidShape, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a fetch error, or 0 when err is not one.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}
