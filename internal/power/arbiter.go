// Package power arbitrates between the SoC performance modes. Sustained
// performance and VR mode each pin a frequency profile through the
// resource-lock subsystem and the profile to apply depends on which of the
// two are active. Interaction hints add short timed boosts while neither mode
// is active, and display interactivity hints adjust governor tunables.
package power

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/socpowerd/internal/errors"
	"codeberg.org/mutker/socpowerd/internal/logger"
	"codeberg.org/mutker/socpowerd/internal/resource"
)

type interactiveState int8

const (
	interactiveUnknown interactiveState = iota - 1
	interactiveOff
	interactiveOn
)

const slackNodeCount = 4

type modeState struct {
	sustained       bool
	vr              bool
	sustainedHandle resource.Handle
	vrHandle        resource.Handle

	lastBoost         time.Time
	lastBoostDuration time.Duration

	interactive     interactiveState
	displayHintSent bool
}

// Arbiter owns the mode state. Every hint entry point runs under the dispatch
// mutex, so a transition (plan, collaborator calls, commit) is never
// interleaved with another one. The state mutex only guards the snapshot and
// is not held while a collaborator is called.
type Arbiter struct {
	locker   ResourceLocker
	actor    HintActor
	governor GovernorReader
	nodes    NodeIO

	launch              LaunchMode
	clock               Clock
	hintOverride        HintOverride
	interactiveOverride InteractiveOverride
	observer            Observer
	logger              logger.Logger

	slack        SlackNodes
	displayBoost bool

	dispatch sync.Mutex

	mu    sync.RWMutex
	state modeState

	// Slack tunables cached on display-off, plus per-node log suppression.
	savedSlack  [slackNodeCount]int
	slackCached [slackNodeCount]bool
	slackFailed map[string]bool
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithLaunchMode sets the launch boost collaborator released on mode entry.
func WithLaunchMode(l LaunchMode) Option {
	return func(a *Arbiter) { a.launch = l }
}

// WithClock replaces the monotonic clock.
func WithClock(c Clock) Option {
	return func(a *Arbiter) { a.clock = c }
}

// WithHintOverride installs a strategy consulted before the default policy.
func WithHintOverride(o HintOverride) Option {
	return func(a *Arbiter) { a.hintOverride = o }
}

// WithInteractiveOverride installs a strategy consulted before the display policy.
func WithInteractiveOverride(o InteractiveOverride) Option {
	return func(a *Arbiter) { a.interactiveOverride = o }
}

// WithObserver reports hint outcomes and mode changes.
func WithObserver(o Observer) Option {
	return func(a *Arbiter) { a.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Arbiter) { a.logger = l }
}

// WithSlackNodes overrides the msm-dcvs slack node paths.
func WithSlackNodes(n SlackNodes) Option {
	return func(a *Arbiter) { a.slack = n }
}

// WithDisplayBoost records whether the SoC supports display boost.
func WithDisplayBoost(enabled bool) Option {
	return func(a *Arbiter) { a.displayBoost = enabled }
}

// New creates an Arbiter with no mode active.
func New(locker ResourceLocker, actor HintActor, governor GovernorReader, nodes NodeIO, opts ...Option) *Arbiter {
	a := &Arbiter{
		locker:      locker,
		actor:       actor,
		governor:    governor,
		nodes:       nodes,
		clock:       systemClock{},
		observer:    nopObserver{},
		logger:      logger.New("power"),
		slack:       DefaultSlackNodes(),
		slackFailed: make(map[string]bool),
		state: modeState{
			interactive: interactiveUnknown,
		},
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// State returns a snapshot of the mode state.
func (a *Arbiter) State() ModeState {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := ModeState{
		Sustained:         a.state.sustained,
		VR:                a.state.vr,
		SustainedHandle:   a.state.sustainedHandle,
		VRHandle:          a.state.vrHandle,
		LastBoost:         a.state.lastBoost,
		LastBoostDuration: a.state.lastBoostDuration,
		DisplayHintSent:   a.state.displayHintSent,
		DisplayBoost:      a.displayBoost,
	}
	if a.state.interactive != interactiveUnknown {
		on := a.state.interactive == interactiveOn
		s.Interactive = &on
	}

	return s
}

// PowerHint dispatches a generic hint. data is a bool for sustained, VR and
// set-interactive hints, and an optional duration in milliseconds (int or
// *int) for interaction hints.
func (a *Arbiter) PowerHint(ctx context.Context, hint Hint, data any) error {
	errFactory := errors.New()

	// Display interactivity has its own override, checked under the dispatch lock.
	if hint != HintSetInteractive && a.hintOverride != nil && a.hintOverride.OverrideHint(ctx, hint, data) {
		a.observer.HintHandled(hint, OutcomeOverridden)
		return nil
	}

	switch hint {
	case HintVSync:
		return nil
	case HintSustainedPerformance, HintVRMode, HintSetInteractive:
		enable, ok := data.(bool)
		if !ok {
			return errFactory.WithData(ErrInvalidHintData, hint.String())
		}

		switch hint {
		case HintSustainedPerformance:
			return a.sustainedPerformance(ctx, enable)
		case HintVRMode:
			return a.vrMode(ctx, enable)
		default:
			return a.setInteractive(ctx, enable)
		}
	case HintInteraction:
		switch v := data.(type) {
		case nil:
			return a.interaction(ctx, nil)
		case int:
			return a.interaction(ctx, &v)
		case *int:
			return a.interaction(ctx, v)
		default:
			return errFactory.WithData(ErrInvalidHintData, hint.String())
		}
	default:
		return errFactory.WithData(ErrUnknownHint, int(hint))
	}
}

// SustainedPerformance enables or disables sustained performance mode.
func (a *Arbiter) SustainedPerformance(ctx context.Context, enable bool) error {
	return a.PowerHint(ctx, HintSustainedPerformance, enable)
}

// VRMode enables or disables VR mode.
func (a *Arbiter) VRMode(ctx context.Context, enable bool) error {
	return a.PowerHint(ctx, HintVRMode, enable)
}

func (a *Arbiter) sustainedPerformance(ctx context.Context, enable bool) error {
	a.dispatch.Lock()
	defer a.dispatch.Unlock()

	st := a.snapshot()
	if enable == st.sustained {
		a.observer.HintHandled(HintSustainedPerformance, OutcomeIgnored)
		return nil
	}

	return a.transition(ctx, HintSustainedPerformance, enable, st.vr, enable, st)
}

func (a *Arbiter) vrMode(ctx context.Context, enable bool) error {
	a.dispatch.Lock()
	defer a.dispatch.Unlock()

	st := a.snapshot()
	if enable == st.vr {
		a.observer.HintHandled(HintVRMode, OutcomeIgnored)
		return nil
	}

	return a.transition(ctx, HintVRMode, st.sustained, enable, enable, st)
}

// transition moves from st to (sustained, vr). The whole target profile is
// acquired under the owning handle before any other handle is released, so a
// failed request leaves the previous locks and state in place. Between the
// acquire and the release a floor can briefly exceed a cap (VR to
// sustained+VR); the lock manager folds floors and caps per kind independently
// and tolerates that window.
func (a *Arbiter) transition(ctx context.Context, hint Hint, sustained, vr, enable bool, st modeState) error {
	errFactory := errors.New()

	enabling := hintNone
	if enable {
		enabling = hint
		if !(st.sustained || st.vr) {
			a.releaseLaunch(ctx)
		}
	}

	profile, sustainedOwns := modeProfile(sustained, vr, enabling)

	next := st
	next.sustained = sustained
	next.vr = vr
	next.sustainedHandle = resource.InvalidHandle
	next.vrHandle = resource.InvalidHandle

	var keep resource.Handle
	if profile != nil {
		owner := st.vrHandle
		if sustainedOwns {
			owner = st.sustainedHandle
		}

		h, err := a.locker.Acquire(ctx, owner, persistent, profile)
		if err != nil {
			a.observer.HintHandled(hint, OutcomeFailed)
			a.logger.Error().Err(err).
				Str("hint", hint.String()).
				Bool("enable", enable).
				Msg("Failed to acquire mode profile")
			return errFactory.Wrap(ErrLockFailed, err)
		}

		keep = h
		if sustainedOwns {
			next.sustainedHandle = h
		} else {
			next.vrHandle = h
		}
	}

	var releaseErr error
	for _, h := range []resource.Handle{st.sustainedHandle, st.vrHandle} {
		if !h.Valid() || h == keep {
			continue
		}
		if err := a.locker.Release(ctx, h); err != nil {
			a.logger.Warn().Err(err).Int64("handle", int64(h)).Msg("Failed to release mode lock")
			if releaseErr == nil {
				releaseErr = errFactory.Wrap(ErrLockFailed, err)
			}
		}
	}

	a.commit(func(s *modeState) {
		s.sustained = next.sustained
		s.vr = next.vr
		s.sustainedHandle = next.sustainedHandle
		s.vrHandle = next.vrHandle
	})

	a.logger.Info().
		Str("hint", hint.String()).
		Bool("enable", enable).
		Bool("sustained", sustained).
		Bool("vr", vr).
		Str("profile", profile.String()).
		Msg("Performance mode changed")

	a.observer.ModesChanged(sustained, vr)
	if releaseErr != nil {
		a.observer.HintHandled(hint, OutcomeFailed)
		return releaseErr
	}
	a.observer.HintHandled(hint, OutcomeApplied)

	return nil
}

// releaseLaunch drops a launch boost still in progress before a mode is
// entered from the idle state.
func (a *Arbiter) releaseLaunch(ctx context.Context) {
	if a.launch == nil {
		return
	}

	h, active := a.launch.LaunchHandle()
	if !active {
		return
	}

	if err := a.locker.Release(ctx, h); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to release launch boost")
	}
	a.launch.ClearLaunch()
	a.logger.Debug().Int64("handle", int64(h)).Msg("Released launch boost")
}

func (a *Arbiter) snapshot() modeState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *Arbiter) commit(fn func(*modeState)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(&a.state)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type nopObserver struct{}

func (nopObserver) HintHandled(Hint, Outcome) {}
func (nopObserver) ModesChanged(bool, bool)   {}
