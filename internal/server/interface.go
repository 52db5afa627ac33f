package server

import (
	"context"
	"time"

	"codeberg.org/mutker/socpowerd/internal/history"
	"codeberg.org/mutker/socpowerd/internal/power"
	"codeberg.org/mutker/socpowerd/internal/resource"
	"codeberg.org/mutker/socpowerd/internal/stats"
)

// Arbiter takes power hints.
type Arbiter interface {
	PowerHint(ctx context.Context, hint power.Hint, data any) error
	State() power.ModeState
}

// Launcher starts launch boosts.
type Launcher interface {
	BeginLaunch(ctx context.Context) (resource.Handle, error)
}

// LevelSource reports the effective resource levels.
type LevelSource interface {
	Effective() map[resource.Kind]int
}

// StatsSource extracts a statistics table on demand.
type StatsSource interface {
	Sample(ctx context.Context, table string) ([]stats.Sample, error)
}

// HistorySource queries recorded statistics.
type HistorySource interface {
	Query(ctx context.Context, table string, since time.Time) ([]history.Point, error)
	Enabled() bool
}
