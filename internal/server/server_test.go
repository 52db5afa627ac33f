package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codeberg.org/mutker/socpowerd/internal/history"
	"codeberg.org/mutker/socpowerd/internal/logger"
	"codeberg.org/mutker/socpowerd/internal/perflock"
	"codeberg.org/mutker/socpowerd/internal/power"
	"codeberg.org/mutker/socpowerd/internal/sampler"
	"codeberg.org/mutker/socpowerd/internal/server"
	"codeberg.org/mutker/socpowerd/internal/stats"
	"codeberg.org/mutker/socpowerd/internal/sysfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHistory struct {
	points []history.Point
	since  time.Time
}

func (s *stubHistory) Query(_ context.Context, _ string, since time.Time) ([]history.Point, error) {
	s.since = since
	return s.points, nil
}

func (s *stubHistory) Enabled() bool { return true }

type fixture struct {
	handler  http.Handler
	manager  *perflock.Manager
	arbiter  *power.Arbiter
	governor string
	history  *stubHistory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	governor := filepath.Join(dir, "scaling_governor")
	require.NoError(t, os.WriteFile(governor, []byte("schedutil\n"), 0o644))

	wlan := filepath.Join(dir, "power_stats")
	require.NoError(t, os.WriteFile(wlan, []byte("POWER DEBUG STATS\ncumulative_sleep_time_ms: 12\n"), 0o644))

	manager := perflock.New(perflock.LogSink{Logger: logger.Nop()}, perflock.WithLogger(logger.Nop()))
	arbiter := power.New(manager, manager, sysfs.Governor{Path: governor}, sysfs.Nodes{},
		power.WithLaunchMode(manager),
		power.WithLogger(logger.Nop()),
	)
	smp := sampler.New([]stats.Table{stats.WLANTable(wlan), stats.PlatformTable(filepath.Join(dir, "absent"))},
		sampler.WithLogger(logger.Nop()))
	hist := &stubHistory{points: []history.Point{{Group: "g", Param: "p", Value: 1}}}

	srv := server.New(arbiter,
		server.WithLauncher(manager),
		server.WithLevels(manager),
		server.WithStats(smp),
		server.WithHistory(hist),
		server.WithMetrics(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("metrics"))
		})),
		server.WithLogger(logger.Nop()),
		server.WithVersion("test"),
	)

	return &fixture{handler: srv.Handler(), manager: manager, arbiter: arbiter, governor: governor, history: hist}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}

	return rec, out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestModeHints(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/v1/hints/sustained", `{"enable": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["request_id"])
	state := body["state"].(map[string]any)
	assert.Equal(t, true, state["sustained"])

	rec, _ = f.do(t, http.MethodPost, "/v1/hints/vr", `{"enable": true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	st := f.arbiter.State()
	assert.True(t, st.Sustained)
	assert.True(t, st.VR)
	assert.Equal(t, 1, f.manager.Held())

	rec, body = f.do(t, http.MethodGet, "/v1/modes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	levels := body["levels"].(map[string]any)
	assert.Equal(t, float64(1209), levels["cpu0_min_freq"])
	assert.Equal(t, true, body["vr"])
}

func TestModeHintValidation(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{``, `{}`, `{"enable": "yes"}`, `{"enable": true, "extra": 1}`} {
		rec, out := f.do(t, http.MethodPost, "/v1/hints/vr", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "invalid_argument", out["error"].(map[string]any)["code"])
	}
}

func TestInteractionHint(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodPost, "/v1/hints/interaction", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := f.do(t, http.MethodPost, "/v1/hints/interaction", `{"duration_ms": 1000}`)
	require.Equal(t, http.StatusOK, rec.Code)
	state := body["state"].(map[string]any)
	assert.Equal(t, float64(1200*time.Millisecond), state["last_boost_duration"])
}

func TestGovernorUnreadable(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(f.governor))

	rec, body := f.do(t, http.MethodPost, "/v1/hints/interactive", `{"on": false}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, string(power.ErrGovernorUnreadable), body["error"].(map[string]any)["code"])
}

func TestLaunch(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/v1/hints/launch", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["handle"])

	rec, _ = f.do(t, http.MethodPost, "/v1/hints/sustained", `{"enable": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	_, active := f.manager.LaunchHandle()
	assert.False(t, active, "entering a mode releases the launch boost")
}

func TestStats(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodGet, "/v1/stats/wlan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	samples := body["samples"].([]any)
	require.Len(t, samples, 4)
	assert.Equal(t, float64(12), samples[0].(map[string]any)["value"])

	rec, body = f.do(t, http.MethodGet, "/v1/stats/platform", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, string(stats.ErrNotFound), body["error"].(map[string]any)["code"])

	rec, _ = f.do(t, http.MethodGet, "/v1/stats/gpu", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodGet, "/v1/stats/wlan/history?since=100", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["points"], 1)
	assert.Equal(t, time.Unix(100, 0), f.history.since)

	rec, _ = f.do(t, http.MethodGet, "/v1/stats/wlan/history?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsMounted(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metrics", rec.Body.String())
}

func TestListenAndServeStops(t *testing.T) {
	srv := server.New(nil, server.WithLogger(logger.Nop()))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
