package telemetry

import "codeberg.org/mutker/socpowerd/internal/errors"

const (
	ErrRegister = errors.ErrorCode("telemetry_register_failed")
)

func init() {
	errors.RegisterMessage(ErrRegister, "Failed to register metric collector")
}
