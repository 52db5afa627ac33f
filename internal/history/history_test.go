package history_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/socpowerd/internal/errors"
	"codeberg.org/mutker/socpowerd/internal/history"
	"codeberg.org/mutker/socpowerd/internal/logger"
	"codeberg.org/mutker/socpowerd/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(ts time.Time, values stats.Result) *history.Snapshot {
	table := stats.WLANTable("unused")
	return &history.Snapshot{
		Timestamp: ts,
		Table:     table.Name,
		Samples:   stats.Flatten(table, values),
	}
}

func testConfig(t *testing.T) history.Config {
	dir := t.TempDir()
	return history.Config{
		DBPath:    filepath.Join(dir, "db", "history.db"),
		BackupDir: filepath.Join(dir, "backups"),
		Enabled:   true,
	}
}

func TestRecordAndQuery(t *testing.T) {
	ctx := context.Background()
	svc, err := history.NewService(testConfig(t), logger.Nop())
	require.NoError(t, err)
	defer svc.Close()
	assert.True(t, svc.Enabled())

	t0 := time.Unix(1_700_000_000, 0)
	require.NoError(t, svc.Record(ctx, snapshot(t0, stats.Result{1, 2, 3, 4})))
	require.NoError(t, svc.Record(ctx, snapshot(t0.Add(time.Minute), stats.Result{5, 6, 7, 1 << 63})))

	points, err := svc.Query(ctx, "wlan", t0.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, points, 4)
	assert.Equal(t, t0.Add(time.Minute).UTC(), points[0].Timestamp)

	var high uint64
	for _, p := range points {
		if p.Param == "last_deep_sleep_enter_tstamp_ms" {
			high = p.Value
		}
	}
	assert.Equal(t, uint64(1<<63), high)

	all, err := svc.Query(ctx, "wlan", time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 8)

	none, err := svc.Query(ctx, "platform", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBatchedRecordsFlushedOnQueryAndClose(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.BatchSize = 100
	cfg.BatchTimeout = 3600

	svc, err := history.NewService(cfg, logger.Nop())
	require.NoError(t, err)

	require.NoError(t, svc.Record(ctx, snapshot(time.Unix(100, 0), stats.Result{1, 2, 3, 4})))
	points, err := svc.Query(ctx, "wlan", time.Time{})
	require.NoError(t, err)
	assert.Len(t, points, 4)

	require.NoError(t, svc.Record(ctx, snapshot(time.Unix(200, 0), stats.Result{1, 2, 3, 4})))
	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close(), "close is idempotent")

	reopened, err := history.NewService(cfg, logger.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	points, err = reopened.Query(ctx, "wlan", time.Time{})
	require.NoError(t, err)
	assert.Len(t, points, 8)
}

func TestSchemaMismatchBacksUp(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755))

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, datetime('now'));`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	svc, err := history.NewService(cfg, logger.Nop())
	require.NoError(t, err)
	defer svc.Close()

	backups, err := filepath.Glob(filepath.Join(cfg.BackupDir, "history_v99_*.db"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestDisabledIsNoop(t *testing.T) {
	svc, err := history.NewService(history.DefaultConfig(), logger.Nop())
	require.NoError(t, err)
	assert.False(t, svc.Enabled())
	require.NoError(t, svc.Record(context.Background(), nil))
	require.NoError(t, svc.Close())
}

func TestInvalidInput(t *testing.T) {
	_, err := history.NewService(history.Config{Enabled: true}, logger.Nop())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, history.ErrInvalidDBPath))

	svc, err := history.NewService(testConfig(t), logger.Nop())
	require.NoError(t, err)
	defer svc.Close()

	err = svc.Record(context.Background(), &history.Snapshot{})
	assert.True(t, errors.HasCode(err, history.ErrInvalidSnapshot))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = svc.Record(ctx, snapshot(time.Unix(1, 0), stats.Result{1, 2, 3, 4}))
	assert.True(t, errors.HasCode(err, history.ErrOperationTimeout))
}
