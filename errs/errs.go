// Package errs defines the error taxonomy exposed at the library boundary.
package errs

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies an error by the extraction-pipeline stage that produced
// it, independent of the human-readable message.
type Kind string

const (
	KindInvalidURL          Kind = "InvalidUrl"
	KindRequestFailed       Kind = "RequestFailed"
	KindHTTPError           Kind = "HttpError"
	KindJSONParseError      Kind = "JsonParseError"
	KindVideoNotFound       Kind = "VideoNotFound"
	KindDecipherFailed      Kind = "DecipherFailed"
	KindFileOpenFailed      Kind = "FileOpenFailed"
	KindFileWriteFailed     Kind = "FileWriteFailed"
	KindInvalidNumberFormat Kind = "InvalidNumberFormat"
)

// Error is a structured error carrying a Kind, an operator-friendly
// message, and (in verbose mode) the offending field path.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field: %s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// MarshalJSON renders the error as {"kind":...,"message":...,"error":...}.
func (e *Error) MarshalJSON() ([]byte, error) {
	type alias Error
	return json.Marshal(&struct {
		*alias
		Error string `json:"error"`
	}{
		alias: (*alias)(e),
		Error: e.Error(),
	})
}

// New creates a new *Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new *Error that wraps cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// WithField returns a copy of e with Field set, for verbose-mode reporting.
func (e *Error) WithField(field string) *Error {
	clone := *e
	clone.Field = field
	return &clone
}

// KindOf extracts the Kind of err, if it (or something it wraps) is an
// *Error; the zero Kind otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Sentinel errors kept for call sites that predate the typed taxonomy.
var (
	// ErrVideoUnavailable indicates that the requested video cannot be accessed.
	ErrVideoUnavailable = errors.New("video unavailable")
	// ErrPrivate indicates that the video is private and cannot be downloaded.
	ErrPrivate = errors.New("video is private")
	// ErrAgeRestricted indicates that the video has an age restriction.
	ErrAgeRestricted = errors.New("age restricted")
	// ErrCipherFailed indicates failure during signature deciphering.
	ErrCipherFailed = errors.New("cipher failed")
	// ErrGeoBlocked indicates the video is not available in the current region.
	ErrGeoBlocked = errors.New("geo blocked")
	// ErrRateLimited indicates throttling or rate limiting by the remote service.
	ErrRateLimited = errors.New("rate limited")
	// ErrSessionReused indicates a Session's Extract was called more than once.
	ErrSessionReused = errors.New("session already used")
	// ErrCancelled indicates the session's cancellation flag was observed.
	ErrCancelled = errors.New("extraction cancelled")
)
