package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Kind int

const (
	// Transport is a network, DNS or timeout failure reaching upstream.
	Transport Kind = iota
	// Protocol is malformed JSON, an unexpected envelope or a redirect loop.
	Protocol
	// AuthExpired is an upstream 401. Recovered once by the caller.
	AuthExpired
	// CacheWrite is a durable store write failure. Logged, never surfaced.
	CacheWrite
	NotFound
	Validation
	Config
	Unknown
)

func (k Kind) String() string {
	switch k {
	case Transport:
		return "Transport"
	case Protocol:
		return "Protocol"
	case AuthExpired:
		return "AuthExpired"
	case CacheWrite:
		return "CacheWrite"
	case NotFound:
		return "NotFound"
	case Validation:
		return "Validation"
	case Config:
		return "Config"
	default:
		return "Unknown"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Context map[string]any
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Context: make(map[string]any),
	}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

func Wrap(err error, kind Kind, message string) *Error {
	e := New(kind, message)
	e.Cause = err
	return e
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Kind, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, "context: "+strings.Join(ctxParts, ", "))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

// Is reports whether any error in err's chain is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Advice returns an operator hint for logging next to the error.
func Advice(err error) string {
	switch KindOf(err) {
	case Transport:
		return "check network connectivity to the lyrics upstream"
	case Protocol:
		return "upstream returned an unexpected response; the API may have changed"
	case AuthExpired:
		return "upstream session expired twice in a row; the app id may be blocked"
	case CacheWrite:
		return "check free space and permissions of the data directory"
	case Validation:
		return "check request parameters"
	case Config:
		return "check environment variables and the .env file"
	default:
		return "review the error details"
	}
}
