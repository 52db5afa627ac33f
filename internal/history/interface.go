package history

import (
	"context"
	"time"

	"codeberg.org/mutker/socpowerd/internal/stats"
)

// Recorder defines the core domain interface
type Recorder interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Query(ctx context.Context, table string, since time.Time) ([]Point, error)
	Close() error
	Enabled() bool
}

// Repository defines the interface for sample storage
type Repository interface {
	Record(snapshot *Snapshot) error
	Query(ctx context.Context, table string, since time.Time) ([]Point, error)
	Close() error
}

// Snapshot is one extraction of a statistics table.
type Snapshot struct {
	Timestamp time.Time
	Table     string
	Samples   []stats.Sample
}

// Point is one stored sample.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Group     string    `json:"group"`
	Param     string    `json:"param"`
	Value     uint64    `json:"value"`
}
