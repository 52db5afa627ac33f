package perflock

import "codeberg.org/mutker/socpowerd/internal/errors"

const (
	ErrUnknownHandle = errors.ErrorCode("perflock_unknown_handle")
	ErrEmptyRequest  = errors.ErrorCode("perflock_empty_request")
	ErrTooManyLocks  = errors.ErrorCode("perflock_too_many_locks")
	ErrClosed        = errors.ErrorCode("perflock_closed")
	ErrSinkFailed    = errors.ErrorCode("perflock_sink_failed")
)

func init() {
	errors.RegisterMessage(ErrUnknownHandle, "Unknown lock handle")
	errors.RegisterMessage(ErrEmptyRequest, "Lock request has no resources")
	errors.RegisterMessage(ErrTooManyLocks, "Too many locks held")
	errors.RegisterMessage(ErrClosed, "Lock manager closed")
	errors.RegisterMessage(ErrSinkFailed, "Failed to apply resource level")
}
