// Package perflock is the in-process resource-lock subsystem. It keeps the
// table of held locks, expires timed ones, folds concurrent requests into one
// effective level per resource kind and hands level changes to a Sink.
package perflock

import (
	"context"
	"slices"
	"sync"
	"time"

	"codeberg.org/mutker/socpowerd/internal/errors"
	"codeberg.org/mutker/socpowerd/internal/logger"
	"codeberg.org/mutker/socpowerd/internal/resource"
	"github.com/google/uuid"
)

const (
	defaultMaxLocks       = 64
	defaultLaunchDuration = 2 * time.Second
)

// Launch boost: big cores floored high and the scheduler boosted while an
// app starts.
var launchProfile = resource.List{
	{Kind: resource.MinFreqBigCore0, Value: 1900},
	{Kind: resource.MinFreqLittleCore0, Value: 1500},
	{Kind: resource.SchedBoost, Value: 1},
}

type lock struct {
	list      resource.List
	seq       uint64
	requestID string
	expires   time.Time
	timer     *time.Timer
}

// Manager implements the lock collaborator of the mode arbiter: timed and
// persistent locks, hint actions and the launch boost.
type Manager struct {
	sink   Sink
	logger logger.Logger

	maxLocks       int
	launchDuration time.Duration

	mu      sync.Mutex
	closed  bool
	next    resource.Handle
	seq     uint64
	locks   map[resource.Handle]*lock
	actions map[resource.ActionID]resource.Handle
	applied map[resource.Kind]int

	launch       resource.Handle
	launchActive bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxLocks bounds the number of locks held at once.
func WithMaxLocks(n int) Option {
	return func(m *Manager) { m.maxLocks = n }
}

// WithLaunchDuration sets how long a launch boost lasts.
func WithLaunchDuration(d time.Duration) Option {
	return func(m *Manager) { m.launchDuration = d }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func New(sink Sink, opts ...Option) *Manager {
	m := &Manager{
		sink:           sink,
		logger:         logger.New("perflock"),
		maxLocks:       defaultMaxLocks,
		launchDuration: defaultLaunchDuration,
		locks:          make(map[resource.Handle]*lock),
		actions:        make(map[resource.ActionID]resource.Handle),
		applied:        make(map[resource.Kind]int),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Acquire requests list for duration, or until released when duration is
// zero. A valid h that is still held is updated in place and keeps its
// handle; otherwise a new handle is allocated.
func (m *Manager) Acquire(ctx context.Context, h resource.Handle, duration time.Duration, list resource.List) (resource.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.acquire(ctx, h, duration, list)
}

func (m *Manager) acquire(ctx context.Context, h resource.Handle, duration time.Duration, list resource.List) (resource.Handle, error) {
	errFactory := errors.New()

	if m.closed {
		return resource.InvalidHandle, errFactory.New(ErrClosed)
	}
	if len(list) == 0 {
		return resource.InvalidHandle, errFactory.New(ErrEmptyRequest)
	}
	if duration < 0 {
		return resource.InvalidHandle, errFactory.WithData(errors.ErrInvalidArgument, duration.String())
	}

	l, ok := m.locks[h]
	if !ok || !h.Valid() {
		if len(m.locks) >= m.maxLocks {
			return resource.InvalidHandle, errFactory.WithData(ErrTooManyLocks, m.maxLocks)
		}
		m.next++
		h = m.next
		l = &lock{}
		m.locks[h] = l
	} else if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}

	m.seq++
	l.list = list.Clone()
	l.seq = m.seq
	l.requestID = uuid.NewString()
	l.expires = time.Time{}

	if duration > 0 {
		l.expires = time.Now().Add(duration)
		requestID := l.requestID
		handle := h
		l.timer = time.AfterFunc(duration, func() { m.expire(handle, requestID) })
	}

	m.logger.Debug().
		Int64("handle", int64(h)).
		Str("request_id", l.requestID).
		Dur("duration", duration).
		Str("resources", list.String()).
		Msg("Lock acquired")

	m.apply(ctx)

	return h, nil
}

// Release drops the lock held under h.
func (m *Manager) Release(ctx context.Context, h resource.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.release(ctx, h)
}

func (m *Manager) release(ctx context.Context, h resource.Handle) error {
	l, ok := m.locks[h]
	if !ok {
		return errors.New().WithData(ErrUnknownHandle, int64(h))
	}

	m.drop(h, l)
	m.logger.Debug().
		Int64("handle", int64(h)).
		Str("request_id", l.requestID).
		Msg("Lock released")
	m.apply(ctx)

	return nil
}

func (m *Manager) drop(h resource.Handle, l *lock) {
	if l.timer != nil {
		l.timer.Stop()
	}
	delete(m.locks, h)

	if m.launchActive && m.launch == h {
		m.launch = resource.InvalidHandle
		m.launchActive = false
	}
	for id, ah := range m.actions {
		if ah == h {
			delete(m.actions, id)
		}
	}
}

// expire releases a timed lock unless it was re-acquired since the timer
// was armed.
func (m *Manager) expire(h resource.Handle, requestID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[h]
	if !ok || l.requestID != requestID {
		return
	}

	m.drop(h, l)
	m.logger.Debug().
		Int64("handle", int64(h)).
		Str("request_id", requestID).
		Msg("Lock expired")
	m.apply(context.Background())
}

// PerformHintAction holds list persistently under the action id, replacing
// what the action held before.
func (m *Manager) PerformHintAction(ctx context.Context, id resource.ActionID, list resource.List) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.acquire(ctx, m.actions[id], 0, list)
	if err != nil {
		return err
	}
	m.actions[id] = h

	return nil
}

// UndoHintAction releases the action's lock. Undoing an action that is not
// held is not an error.
func (m *Manager) UndoHintAction(ctx context.Context, id resource.ActionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.actions[id]
	if !ok {
		return nil
	}

	return m.release(ctx, h)
}

// BeginLaunch starts or extends the launch boost.
func (m *Manager) BeginLaunch(ctx context.Context) (resource.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := resource.InvalidHandle
	if m.launchActive {
		prev = m.launch
	}

	h, err := m.acquire(ctx, prev, m.launchDuration, launchProfile)
	if err != nil {
		return resource.InvalidHandle, err
	}
	m.launch = h
	m.launchActive = true

	return h, nil
}

// LaunchHandle returns the launch boost handle while one is active.
func (m *Manager) LaunchHandle() (resource.Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.launch, m.launchActive
}

// ClearLaunch forgets the launch boost.
func (m *Manager) ClearLaunch() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.launch = resource.InvalidHandle
	m.launchActive = false
}

// Effective returns the level currently applied per kind.
func (m *Manager) Effective() map[resource.Kind]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[resource.Kind]int, len(m.applied))
	for k, v := range m.applied {
		out[k] = v
	}

	return out
}

// Held returns the number of locks currently held.
func (m *Manager) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.locks)
}

// Close drops every lock and resets all applied levels.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	for h, l := range m.locks {
		m.drop(h, l)
	}
	m.closed = true

	return m.apply(ctx)
}

// apply folds the held locks into one level per kind and pushes the
// differences to the sink. Sink failures are logged and reported but never
// undo the lock table.
func (m *Manager) apply(ctx context.Context) error {
	next := effective(m.locks)

	var firstErr error
	fail := func(kind resource.Kind, err error) {
		m.logger.Warn().Err(err).Str("kind", kind.String()).Msg("Failed to apply resource level")
		if firstErr == nil {
			firstErr = errors.New().Wrap(ErrSinkFailed, err)
		}
	}

	for _, k := range sortedKinds(next) {
		if old, ok := m.applied[k]; ok && old == next[k] {
			continue
		}
		if err := m.sink.Set(ctx, k, next[k]); err != nil {
			fail(k, err)
		}
	}

	for _, k := range sortedKinds(m.applied) {
		if _, ok := next[k]; ok {
			continue
		}
		if err := m.sink.Reset(ctx, k); err != nil {
			fail(k, err)
		}
	}

	m.applied = next

	return firstErr
}

func effective(locks map[resource.Handle]*lock) map[resource.Kind]int {
	out := make(map[resource.Kind]int)
	seqs := make(map[resource.Kind]uint64)

	for _, l := range locks {
		for _, r := range l.list {
			cur, ok := out[r.Kind]
			if !ok {
				out[r.Kind] = r.Value
				seqs[r.Kind] = l.seq
				continue
			}

			switch r.Kind.Direction() {
			case resource.Floor:
				out[r.Kind] = max(cur, r.Value)
			case resource.Ceiling:
				out[r.Kind] = min(cur, r.Value)
			default:
				if l.seq > seqs[r.Kind] {
					out[r.Kind] = r.Value
					seqs[r.Kind] = l.seq
				}
			}
		}
	}

	return out
}

func sortedKinds(levels map[resource.Kind]int) []resource.Kind {
	kinds := make([]resource.Kind, 0, len(levels))
	for k := range levels {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)

	return kinds
}
