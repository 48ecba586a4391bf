package meeting

import "fmt"

// DispatchError classifies a failure while handling one event. Nothing
// here is fatal to the process: every failure is scoped to one event and
// the dispatcher keeps processing the next one.
type DispatchError struct {
	// Code identifies the error category.
	Code DispatchErrorCode

	// Message is a human-readable description.
	Message string

	// RoomID identifies the affected room.
	RoomID string

	// Event is the event being handled.
	Event EventName

	// Err is the underlying cause, if any.
	Err error
}

// DispatchErrorCode categorizes dispatch errors.
type DispatchErrorCode string

const (
	// ErrCodeStorage indicates a storage read or write failed. The
	// event may be safely redelivered - actions are duplicate-safe.
	ErrCodeStorage DispatchErrorCode = "STORAGE"

	// ErrCodeStale indicates the event references state that has
	// already moved on. Silently ignored, never surfaced.
	ErrCodeStale DispatchErrorCode = "STALE_EVENT"

	// ErrCodePermission indicates a non-moderator attempted a gated
	// operation. Surfaced to the requester only; room state unchanged.
	ErrCodePermission DispatchErrorCode = "PERMISSION_DENIED"

	// ErrCodeUnroutable indicates no transition matched. Logged at
	// debug level, counted, otherwise without effect.
	ErrCodeUnroutable DispatchErrorCode = "UNROUTABLE"
)

// Error implements the error interface.
func (e *DispatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (room=%s, event=%s): %v", e.Code, e.Message, e.RoomID, e.Event, e.Err)
	}
	return fmt.Sprintf("%s: %s (room=%s, event=%s)", e.Code, e.Message, e.RoomID, e.Event)
}

// Unwrap returns the underlying cause.
func (e *DispatchError) Unwrap() error {
	return e.Err
}

func storageError(roomID string, event EventName, err error) *DispatchError {
	return &DispatchError{
		Code:    ErrCodeStorage,
		Message: "storage operation failed",
		RoomID:  roomID,
		Event:   event,
		Err:     err,
	}
}
