package boxsync

import (
	"errors"
	"fmt"
)

// Domain errors for the boxsync package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, boxsync.ErrRequestTimeout) {
//	    // the box did not answer in time
//	}
var (
	// ErrRequestTimeout is returned when a transport call exceeds the request timeout.
	// The late response, if any, is discarded.
	ErrRequestTimeout = errors.New("boxsync: request timeout")

	// ErrOperationFailed is returned when the box response is missing or does
	// not explicitly signal success.
	ErrOperationFailed = errors.New("boxsync: operation failed")

	// ErrInvalidOperation is returned when an operation has no kind.
	ErrInvalidOperation = errors.New("boxsync: invalid operation")

	// ErrBoxIndexOutOfRange is returned when selecting a box that was never discovered.
	ErrBoxIndexOutOfRange = errors.New("boxsync: box index out of range")

	// ErrNotConfigured is returned when a request is issued before a box is selected.
	ErrNotConfigured = errors.New("boxsync: no box configured")

	// ErrServiceNotFound is returned when a service id is not in the cache.
	ErrServiceNotFound = errors.New("boxsync: service not found")

	// ErrTagNotFound is returned when a tag id is not in the cache.
	ErrTagNotFound = errors.New("boxsync: tag not found")

	// ErrInvalidService is returned when a service record has no id.
	ErrInvalidService = errors.New("boxsync: invalid service")

	// ErrInvalidTag is returned when a tag has no id.
	ErrInvalidTag = errors.New("boxsync: invalid tag")
)

// HTTPError reports a non-success status code returned by the box.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("boxsync: http status %d", e.Status)
	}
	return fmt.Sprintf("boxsync: http status %d: %s", e.Status, e.Body)
}
