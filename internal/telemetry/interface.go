package telemetry

import (
	"net/http"

	"codeberg.org/mutker/socpowerd/internal/stats"
)

// Recorder receives extracted statistics.
type Recorder interface {
	RecordStats(table stats.Table, samples []stats.Sample)
	RecordStatsError(table stats.Table, err error)
}

// Exporter serves the collected metrics.
type Exporter interface {
	Handler() http.Handler
}
