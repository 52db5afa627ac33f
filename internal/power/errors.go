package power

import "codeberg.org/mutker/socpowerd/internal/errors"

const (
	ErrGovernorUnreadable = errors.ErrorCode("power_governor_unreadable")
	ErrLockFailed         = errors.ErrorCode("power_lock_failed")
	ErrIOFailed           = errors.ErrorCode("power_io_failed")
	ErrUnknownHint        = errors.ErrorCode("power_unknown_hint")
	ErrInvalidHintData    = errors.ErrorCode("power_invalid_hint_data")
)

func init() {
	errors.RegisterMessage(ErrGovernorUnreadable, "Can't obtain scaling governor")
	errors.RegisterMessage(ErrLockFailed, "Resource lock request failed")
	errors.RegisterMessage(ErrIOFailed, "Sysfs node access failed")
	errors.RegisterMessage(ErrUnknownHint, "Unknown power hint")
	errors.RegisterMessage(ErrInvalidHintData, "Invalid hint payload")
}
