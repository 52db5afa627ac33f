package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/socpowerd/internal/config"
	"codeberg.org/mutker/socpowerd/internal/errors"
	"codeberg.org/mutker/socpowerd/internal/history"
	"codeberg.org/mutker/socpowerd/internal/logger"
	"codeberg.org/mutker/socpowerd/internal/perflock"
	"codeberg.org/mutker/socpowerd/internal/pid"
	"codeberg.org/mutker/socpowerd/internal/power"
	"codeberg.org/mutker/socpowerd/internal/sampler"
	"codeberg.org/mutker/socpowerd/internal/server"
	"codeberg.org/mutker/socpowerd/internal/sysfs"
	"codeberg.org/mutker/socpowerd/internal/telemetry"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the power policy daemon",
	RunE:  runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		return err
	}
	logger.Debug().Str("file", cfg.File).Msg("Config loaded")

	if err := pid.Write(cfg.PIDFile); err != nil {
		logger.ErrorWithCode(asCoded(err)).Msg("Failed to write PID file")
		return err
	}
	defer func() {
		if err := pid.Remove(cfg.PIDFile); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(cfg)
	if err != nil {
		logger.ErrorWithCode(asCoded(err)).Msg("Failed to initialize daemon")
		return err
	}
	defer d.close()

	return d.run(ctx)
}

type daemon struct {
	cfg       *config.Config
	collector *telemetry.Collector
	manager   *perflock.Manager
	arbiter   *power.Arbiter
	history   history.Recorder
	sampler   *sampler.Sampler
	server    *server.Server
}

func newDaemon(cfg *config.Config) (*daemon, error) {
	d := &daemon{cfg: cfg}

	var sink perflock.Sink = perflock.LogSink{Logger: logger.New("levels")}
	if len(cfg.LockNodes) > 0 {
		nodeSink, err := perflock.NewNodeSink(sysfs.Nodes{}, cfg.LockNodes, sink)
		if err != nil {
			return nil, err
		}
		sink = nodeSink
	}

	if cfg.Metrics.Enabled {
		collector, err := telemetry.New(nil)
		if err != nil {
			return nil, err
		}
		d.collector = collector
		sink = perflock.Tee(sink, collector)
	}

	d.manager = perflock.New(sink,
		perflock.WithLaunchDuration(cfg.LaunchDuration),
		perflock.WithLogger(logger.New("perflock")),
	)

	socID := sysfs.SocID(cfg.SocIDPath)
	displayBoost := sysfs.DisplayBoostSupported(socID)
	logger.Info().Int("soc_id", socID).Bool("display_boost", displayBoost).Msg("SoC probed")

	powerOpts := []power.Option{
		power.WithLaunchMode(d.manager),
		power.WithSlackNodes(cfg.SlackNodes.Power()),
		power.WithDisplayBoost(displayBoost),
		power.WithLogger(logger.New("power")),
	}
	if d.collector != nil {
		powerOpts = append(powerOpts, power.WithObserver(d.collector))
	}
	d.arbiter = power.New(d.manager, d.manager, sysfs.Governor{Path: cfg.GovernorPath}, sysfs.Nodes{}, powerOpts...)

	hist, err := history.NewService(history.Config{
		DBPath:       cfg.History.DBPath,
		BatchSize:    cfg.History.BatchSize,
		BatchTimeout: cfg.History.BatchTimeout,
		Enabled:      cfg.History.Enabled,
	}, logger.New("history"))
	if err != nil {
		return nil, err
	}
	d.history = hist

	samplerOpts := []sampler.Option{
		sampler.WithHistory(hist),
		sampler.WithLogger(logger.New("sampler")),
	}
	if d.collector != nil {
		samplerOpts = append(samplerOpts, sampler.WithRecorder(d.collector))
	}
	d.sampler = sampler.New(statTables(cfg), samplerOpts...)

	serverOpts := []server.Option{
		server.WithLauncher(d.manager),
		server.WithLevels(d.manager),
		server.WithStats(d.sampler),
		server.WithHistory(hist),
		server.WithLogger(logger.New("server")),
		server.WithVersion(Version),
	}
	if d.collector != nil {
		serverOpts = append(serverOpts, server.WithMetrics(d.collector.Handler()))
	}
	d.server = server.New(d.arbiter, serverOpts...)

	return d, nil
}

func (d *daemon) run(ctx context.Context) error {
	if err := d.sampler.Start(ctx, d.cfg.SampleSchedule); err != nil {
		return err
	}
	defer d.sampler.Stop()

	if d.cfg.File != "" {
		go func() {
			reload := func(next *config.Config) { d.reload(ctx, next) }
			if err := d.cfg.Watch(ctx, reload); err != nil {
				logger.Warn().Err(err).Msg("Configuration watch stopped")
			}
		}()
	}

	logger.Info().Str("listen", d.cfg.Listen).Msg("socpowerd started")

	return d.server.ListenAndServe(ctx, d.cfg.Listen)
}

// reload applies the settings that can change without a restart: log level,
// statistics paths and the sampling schedule.
func (d *daemon) reload(ctx context.Context, next *config.Config) {
	if err := logger.SetLevelName(next.LogLevel); err != nil {
		logger.Warn().Err(err).Msg("Failed to apply log level")
	}

	d.sampler.SetTables(statTables(next))
	if err := d.sampler.Reschedule(ctx, next.SampleSchedule); err != nil {
		logger.Warn().Err(err).Msg("Failed to apply sampling schedule")
	}
}

func (d *daemon) close() {
	if err := d.manager.Close(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("Failed to reset resource levels")
	}
	if err := d.history.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close history")
	}
	logger.Info().Msg("Exiting...")
}

func asCoded(err error) errors.Error {
	var coded errors.Error
	if errors.As(err, &coded) {
		return coded
	}

	return errors.New().Wrap(errors.ErrInternal, err)
}
