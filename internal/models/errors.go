package models

import (
	"errors"
	"fmt"
)

// ErrPreconditionNotMet is returned when a timetable is requested without a
// complete line / departure / arrival selection
var ErrPreconditionNotMet = errors.New("line, departure stop and arrival stop must be selected")

// CacheIOError wraps a local cache read or write failure. Callers treat it as
// a cache miss.
type CacheIOError struct {
	Key string
	Err error
}

func (e *CacheIOError) Error() string {
	return fmt.Sprintf("cache %q: %v", e.Key, e.Err)
}

func (e *CacheIOError) Unwrap() error { return e.Err }

// NetworkError reports an unexpected HTTP status
type NetworkError struct {
	URL        string
	StatusCode int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request to %s returned status %d", e.URL, e.StatusCode)
}

// InvalidDataError reports malformed JSON or CSV input
type InvalidDataError struct {
	Source string
	Err    error
}

func (e *InvalidDataError) Error() string {
	return fmt.Sprintf("invalid data in %s: %v", e.Source, e.Err)
}

func (e *InvalidDataError) Unwrap() error { return e.Err }

// IsNetworkStatus reports whether err carries a NetworkError with the given status
func IsNetworkStatus(err error, status int) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr) && netErr.StatusCode == status
}
