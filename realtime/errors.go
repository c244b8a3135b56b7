package realtime

import (
	"errors"
	"fmt"
	"huddle/models"
)

var (
	ErrNilCallback = errors.New("onChange callback is required")
	ErrEmptyInput  = errors.New("input is empty")
	ErrNoChannel   = errors.New("no channel selected")

	// ErrSubscriptionDropped is reported when a source drops a subscription
	// before Subscribe returned to the manager
	ErrSubscriptionDropped = errors.New("subscription dropped")
)

// ConnectionError reports that a subscription could not be established or
// was dropped by the data source. Callers recover by activating again.
type ConnectionError struct {
	Feed models.Feed
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error on feed %s: %v", e.Feed, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// WriteError reports that appending a record to a collection failed
type WriteError struct {
	Collection string
	Err        error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write to %s failed: %v", e.Collection, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
