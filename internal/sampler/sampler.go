// Package sampler extracts the statistics tables on a cron schedule and
// feeds the results to the metrics collector and the history store.
package sampler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codeberg.org/mutker/socpowerd/internal/errors"
	"codeberg.org/mutker/socpowerd/internal/history"
	"codeberg.org/mutker/socpowerd/internal/logger"
	"codeberg.org/mutker/socpowerd/internal/stats"
	"codeberg.org/mutker/socpowerd/internal/telemetry"
	"github.com/robfig/cron/v3"
)

const ErrUnknownTable = errors.ErrorCode("sampler_unknown_table")

func init() {
	errors.RegisterMessage(ErrUnknownTable, "Unknown statistics table")
}

type Sampler struct {
	extractor stats.Extractor
	recorder  telemetry.Recorder
	history   history.Recorder
	logger    logger.Logger
	now       func() time.Time

	mu       sync.Mutex
	tables   map[string]stats.Table
	order    []string
	cron     *cron.Cron
	schedule string
	running  bool
}

// Option configures a Sampler.
type Option func(*Sampler)

func WithExtractor(e stats.Extractor) Option {
	return func(s *Sampler) { s.extractor = e }
}

func WithRecorder(r telemetry.Recorder) Option {
	return func(s *Sampler) { s.recorder = r }
}

func WithHistory(h history.Recorder) Option {
	return func(s *Sampler) { s.history = h }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Sampler) { s.logger = l }
}

func New(tables []stats.Table, opts ...Option) *Sampler {
	s := &Sampler{
		extractor: stats.FileExtractor{},
		logger:    logger.New("sampler"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.SetTables(tables)

	return s
}

// SetTables replaces the sampled tables, keyed by name.
func (s *Sampler) SetTables(tables []stats.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tables = make(map[string]stats.Table, len(tables))
	s.order = s.order[:0]
	for _, t := range tables {
		s.tables[t.Name] = t
		s.order = append(s.order, t.Name)
	}
}

// Tables returns the sampled table names in configuration order.
func (s *Sampler) Tables() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.order...)
}

// Sample extracts the named table once and returns its samples. The result
// is not recorded.
func (s *Sampler) Sample(_ context.Context, name string) ([]stats.Sample, error) {
	s.mu.Lock()
	table, ok := s.tables[name]
	s.mu.Unlock()

	if !ok {
		return nil, errors.New().WithData(ErrUnknownTable, name)
	}

	out := stats.NewResult(table)
	if err := s.extractor.Extract(table, out); err != nil {
		return nil, err
	}

	return stats.Flatten(table, out), nil
}

// SampleAll extracts every table and records the results. A table that
// fails is logged and counted; the others are still sampled.
func (s *Sampler) SampleAll(ctx context.Context) error {
	s.mu.Lock()
	tables := make([]stats.Table, 0, len(s.order))
	for _, name := range s.order {
		tables = append(tables, s.tables[name])
	}
	s.mu.Unlock()

	var firstErr error
	for _, table := range tables {
		if err := s.sampleTable(ctx, table); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (s *Sampler) sampleTable(ctx context.Context, table stats.Table) error {
	out := stats.NewResult(table)
	if err := s.extractor.Extract(table, out); err != nil {
		s.logger.Warn().Err(err).Str("table", table.Name).Str("path", table.Path).Msg("Failed to extract statistics")
		if s.recorder != nil {
			s.recorder.RecordStatsError(table, err)
		}
		return err
	}

	samples := stats.Flatten(table, out)
	if s.recorder != nil {
		s.recorder.RecordStats(table, samples)
	}

	if s.history != nil {
		snap := &history.Snapshot{Timestamp: s.now(), Table: table.Name, Samples: samples}
		if err := s.history.Record(ctx, snap); err != nil {
			s.logger.Warn().Err(err).Str("table", table.Name).Msg("Failed to record statistics history")
			return err
		}
	}

	s.logger.Debug().Str("table", table.Name).Int("samples", len(samples)).Msg("Statistics sampled")

	return nil
}

// Start samples once, then on every tick of schedule until ctx is done or
// Stop is called.
func (s *Sampler) Start(ctx context.Context, schedule string) error {
	errFactory := errors.New()

	if _, err := cron.ParseStandard(schedule); err != nil {
		return errFactory.Wrap(errors.ErrInvalidSchedule, err)
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errFactory.WithMessage(errors.ErrAlreadyRunning, "sampler already running")
	}

	c := cron.New(cron.WithLogger(cronLogger{s.logger}))
	if _, err := c.AddFunc(schedule, func() { _ = s.SampleAll(ctx) }); err != nil {
		s.mu.Unlock()
		return errFactory.Wrap(errors.ErrInvalidSchedule, err)
	}
	s.cron = c
	s.schedule = schedule
	s.running = true
	s.mu.Unlock()

	_ = s.SampleAll(ctx)
	c.Start()

	s.logger.Info().Str("schedule", schedule).Strs("tables", s.Tables()).Msg("Sampler started")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Reschedule switches a running sampler to a new schedule.
func (s *Sampler) Reschedule(ctx context.Context, schedule string) error {
	s.mu.Lock()
	same := s.running && s.schedule == schedule
	s.mu.Unlock()
	if same {
		return nil
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return errors.New().Wrap(errors.ErrInvalidSchedule, err)
	}

	s.Stop()
	return s.Start(ctx, schedule)
}

// Stop stops the schedule and waits for a running sample to finish.
func (s *Sampler) Stop() {
	s.mu.Lock()
	c := s.cron
	running := s.running
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	if c != nil && running {
		<-c.Stop().Done()
		s.logger.Info().Msg("Sampler stopped")
	}
}

// NextRun returns the next scheduled sample, nil when not running.
func (s *Sampler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next

	return &next
}

// cronLogger routes cron's own messages to the component logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Str("cron", fmt.Sprint(keysAndValues...)).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Str("cron", fmt.Sprint(keysAndValues...)).Msg(msg)
}
