package perflock

import (
	"context"

	"codeberg.org/mutker/socpowerd/internal/resource"
)

// Sink applies effective resource levels to the hardware.
type Sink interface {
	Set(ctx context.Context, kind resource.Kind, value int) error
	Reset(ctx context.Context, kind resource.Kind) error
}

// NodeIO reads and writes sysfs scalar nodes.
type NodeIO interface {
	ReadNode(path string) (string, error)
	WriteNode(path, value string) error
}
