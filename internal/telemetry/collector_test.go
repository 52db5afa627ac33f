package telemetry_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"codeberg.org/mutker/socpowerd/internal/errors"
	"codeberg.org/mutker/socpowerd/internal/power"
	"codeberg.org/mutker/socpowerd/internal/resource"
	"codeberg.org/mutker/socpowerd/internal/stats"
	"codeberg.org/mutker/socpowerd/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCollector(t *testing.T) *telemetry.Collector {
	t.Helper()

	c, err := telemetry.New(prometheus.NewRegistry())
	require.NoError(t, err)

	return c
}

func TestModesAndHints(t *testing.T) {
	c := newCollector(t)

	c.ModesChanged(true, false)
	c.HintHandled(power.HintSustainedPerformance, power.OutcomeApplied)
	c.HintHandled(power.HintSustainedPerformance, power.OutcomeApplied)
	c.HintHandled(power.HintInteraction, power.OutcomeSuppressed)

	expected := `
# HELP socpowerd_mode_active Whether a performance mode is active (1) or not (0).
# TYPE socpowerd_mode_active gauge
socpowerd_mode_active{mode="sustained"} 1
socpowerd_mode_active{mode="vr"} 0
`
	require.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "socpowerd_mode_active"))

	assert.Equal(t, 2, testutil.CollectAndCount(c.Registry(), "socpowerd_hints_total"))
}

func TestResourceLevels(t *testing.T) {
	ctx := context.Background()
	c := newCollector(t)

	require.NoError(t, c.Set(ctx, resource.GPUMinFreq, 315))
	require.NoError(t, c.Set(ctx, resource.SchedBoost, 1))
	assert.Equal(t, 2, testutil.CollectAndCount(c.Registry(), "socpowerd_resource_level"))

	require.NoError(t, c.Reset(ctx, resource.SchedBoost))
	assert.Equal(t, 1, testutil.CollectAndCount(c.Registry(), "socpowerd_resource_level"))
}

func TestRecordStats(t *testing.T) {
	c := newCollector(t)
	table := stats.WLANTable("unused")

	c.RecordStats(table, stats.Flatten(table, stats.Result{10, 20, 30, 40}))
	assert.Equal(t, 4, testutil.CollectAndCount(c.Registry(), "socpowerd_stat_value"))
	assert.Equal(t, 1, testutil.CollectAndCount(c.Registry(), "socpowerd_stat_last_extract_timestamp_seconds"))

	c.RecordStatsError(table, errors.New().Wrap(stats.ErrNotFound, os.ErrNotExist))
	expected := `
# HELP socpowerd_stat_extract_errors_total Failed statistics extractions, by table and error code.
# TYPE socpowerd_stat_extract_errors_total counter
socpowerd_stat_extract_errors_total{code="stats_not_found",table="wlan"} 1
`
	require.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "socpowerd_stat_extract_errors_total"))
}

func TestHandler(t *testing.T) {
	c := newCollector(t)
	c.ModesChanged(false, true)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `socpowerd_mode_active{mode="vr"} 1`)
}

func TestDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := telemetry.New(reg)
	require.NoError(t, err)

	_, err = telemetry.New(reg)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, telemetry.ErrRegister))
}
