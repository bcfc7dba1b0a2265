package onedrived

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidArgument is returned when an operation is called in a way that can
// never succeed, such as updating the root of a drive.
var ErrInvalidArgument = errors.New("onedrived: invalid argument")

// ErrNetwork is the result of a transport failure while contacting OneDrive.
// The underlying error is wrapped alongside it.
var ErrNetwork = errors.New("onedrived: network related error")

// ErrInvalidCredentials occurs when the access token is rejected.
var ErrInvalidCredentials = errors.New("onedrived: invalid credentials")

// ErrNotFound occurs when the addressed item or drive does not exist.
var ErrNotFound = errors.New("onedrived: item not found")

// ErrConflict occurs when an item with the same name already exists and the
// conflict behavior was set to fail.
var ErrConflict = errors.New("onedrived: name conflict")

// ErrNoMorePages is returned by an ItemCollection once the last page has been consumed.
var ErrNoMorePages = errors.New("onedrived: no more pages")

// ErrUploadRange occurs when the server expects a different byte range than
// the one the client is about to send.
var ErrUploadRange = errors.New("onedrived: unexpected upload range")

// ErrSessionExpired occurs when an upload session expires before all ranges were sent.
var ErrSessionExpired = errors.New("onedrived: upload session expired")

// ErrUploadIncomplete occurs when the server and client disagree about
// when a chunked upload has finished.
var ErrUploadIncomplete = errors.New("onedrived: upload incomplete")

// ErrAccountNotFound is returned by an AccountStore for unknown accounts.
var ErrAccountNotFound = errors.New("onedrived: account not registered")

// ErrInvalidDump occurs when a persisted drive cannot be loaded.
var ErrInvalidDump = errors.New("onedrived: invalid drive dump")

// Error is a non-success response of the OneDrive API.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("onedrived: %d %s", e.StatusCode, e.Code)
	}

	return fmt.Sprintf("onedrived: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Is maps well-known status codes onto the package sentinels,
// so callers can use errors.Is(err, ErrNotFound) and friends.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConflict:
		return e.StatusCode == http.StatusConflict || e.Code == "nameAlreadyExists"
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrInvalidCredentials:
		return e.StatusCode == http.StatusUnauthorized
	}

	return false
}

// MissingFieldError is returned by Item accessors when the payload lacks the field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("onedrived: missing field %q", e.Field)
}
