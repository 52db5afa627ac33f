package stats

import "codeberg.org/mutker/socpowerd/internal/errors"

const (
	ErrNotFound        = errors.ErrorCode("stats_not_found")
	ErrAllocation      = errors.ErrorCode("stats_allocation_failed")
	ErrIO              = errors.ErrorCode("stats_io_failed")
	ErrInvalidArgument = errors.ErrInvalidArgument
)

func init() {
	errors.RegisterMessage(ErrNotFound, "Statistics file not found")
	errors.RegisterMessage(ErrAllocation, "Statistics line exceeds buffer")
	errors.RegisterMessage(ErrIO, "Failed to read statistics file")
}
