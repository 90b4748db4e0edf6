package crawler

import (
	"errors"
	"fmt"
)

// FetchErrorKind classifies why a fetch failed.
type FetchErrorKind string

// Fetch failure kinds.
const (
	FetchErrorNetwork FetchErrorKind = "network"
	FetchErrorTimeout FetchErrorKind = "timeout"
	FetchErrorStatus  FetchErrorKind = "status"
	FetchErrorParse   FetchErrorKind = "parse"
)

// FetchError is returned by Fetcher implementations. Workers recover from it
// by emitting a degraded record.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Kind == FetchErrorStatus:
		return fmt.Sprintf("fetch %s: %s: HTTP %d", e.URL, e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// FetchErrorKindOf returns the kind of the first FetchError in err's chain.
func FetchErrorKindOf(err error) (FetchErrorKind, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// InputError marks batch input or configuration problems. It is fatal and
// raised before any fetching begins.
type InputError struct {
	Msg string
	Err error
}

// NewInputError formats an InputError.
func NewInputError(format string, args ...any) *InputError {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid input: %s: %v", e.Msg, e.Err)
	}
	return "invalid input: " + e.Msg
}

func (e *InputError) Unwrap() error { return e.Err }

// IsInputError reports whether err wraps an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// IOError reports a failed output write. Records scraped before the failure
// are still held by the caller.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("write output %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsIOError reports whether err wraps an IOError.
func IsIOError(err error) bool {
	var ioe *IOError
	return errors.As(err, &ioe)
}
