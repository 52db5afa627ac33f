package power

import (
	"context"
	"strconv"
	"strings"

	"codeberg.org/mutker/socpowerd/internal/errors"
	"codeberg.org/mutker/socpowerd/internal/resource"
)

const slackDisplayOffFactor = 10

// SetInteractive applies governor tunables for display on/off.
func (a *Arbiter) SetInteractive(ctx context.Context, displayOn bool) error {
	return a.PowerHint(ctx, HintSetInteractive, displayOn)
}

func (a *Arbiter) setInteractive(ctx context.Context, on bool) error {
	errFactory := errors.New()

	a.dispatch.Lock()
	defer a.dispatch.Unlock()

	if a.interactiveOverride != nil && a.interactiveOverride.OverrideInteractive(ctx, on) {
		a.observer.HintHandled(HintSetInteractive, OutcomeOverridden)
		return nil
	}

	name, err := a.governor.ScalingGovernor()
	if err != nil {
		a.observer.HintHandled(HintSetInteractive, OutcomeFailed)
		a.logger.Error().Err(err).Msg("Can't obtain scaling governor")
		return errFactory.Wrap(ErrGovernorUnreadable, err)
	}
	gov := ParseGovernor(name)

	st := a.snapshot()

	var actionErr error
	switch gov {
	case GovernorOndemand, GovernorInteractive:
		actionErr = a.displayAction(ctx, gov, on, st.displayHintSent)
	case GovernorMSMDCVS:
		if !on && st.interactive == interactiveOn {
			a.scaleSlack()
		} else if on && st.interactive != interactiveOn {
			a.restoreSlack()
		}
	}

	a.commit(func(s *modeState) {
		if on {
			s.interactive = interactiveOn
		} else {
			s.interactive = interactiveOff
		}
	})

	a.logger.Debug().Bool("on", on).Str("governor", gov.String()).Msg("Display interactivity applied")

	if actionErr != nil {
		a.observer.HintHandled(HintSetInteractive, OutcomeFailed)
		return actionErr
	}
	a.observer.HintHandled(HintSetInteractive, OutcomeApplied)

	return nil
}

func (a *Arbiter) displayAction(ctx context.Context, gov Governor, on, sent bool) error {
	errFactory := errors.New()

	if on {
		if err := a.actor.UndoHintAction(ctx, resource.DisplayStateAction); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to undo display state hint")
			return errFactory.Wrap(ErrLockFailed, err)
		}
		a.commit(func(s *modeState) { s.displayHintSent = false })

		return nil
	}

	if sent {
		return nil
	}

	if err := a.actor.PerformHintAction(ctx, resource.DisplayStateAction, displayOffProfile(gov)); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to send display state hint")
		return errFactory.Wrap(ErrLockFailed, err)
	}
	a.commit(func(s *modeState) { s.displayHintSent = true })

	return nil
}

// scaleSlack caches the slack tunables and raises them while the display is
// off. Each node is handled on its own; failures never stop the others.
func (a *Arbiter) scaleSlack() {
	paths := a.slack.paths()
	failed := make(map[string]bool, slackNodeCount)

	for i, path := range paths {
		failed[path] = false
		raw, err := a.nodes.ReadNode(path)
		if err == nil {
			var v int
			if v, err = strconv.Atoi(strings.TrimSpace(raw)); err == nil {
				a.savedSlack[i] = v
				a.slackCached[i] = true
				continue
			}
		}

		a.slackCached[i] = false
		failed[path] = true
		a.slackFailure(path, "read", err)
	}

	for i, path := range paths {
		if !a.slackCached[i] {
			continue
		}
		if err := a.nodes.WriteNode(path, strconv.Itoa(slackDisplayOffFactor*a.savedSlack[i])); err != nil {
			failed[path] = true
			a.slackFailure(path, "write", err)
		}
	}

	a.settleSlackFailures(failed)
}

// restoreSlack writes back the cached tunables when the display turns on.
func (a *Arbiter) restoreSlack() {
	paths := a.slack.paths()
	failed := make(map[string]bool, slackNodeCount)

	for i, path := range paths {
		if !a.slackCached[i] {
			continue
		}
		failed[path] = false
		if err := a.nodes.WriteNode(path, strconv.Itoa(a.savedSlack[i])); err != nil {
			failed[path] = true
			a.slackFailure(path, "write", err)
		}
	}

	a.settleSlackFailures(failed)
}

// slackFailure logs a node failure unless that node already failed on the
// previous pass.
func (a *Arbiter) slackFailure(path, op string, err error) {
	if a.slackFailed[path] {
		return
	}

	a.logger.ErrorWithCode(errors.New().Wrap(ErrIOFailed, err)).
		Str("node", path).
		Str("op", op).
		Msg("Failed to access slack node")
}

// settleSlackFailures records the outcome of the nodes touched on this pass.
// Nodes that were skipped keep their previous state.
func (a *Arbiter) settleSlackFailures(failed map[string]bool) {
	for path, f := range failed {
		a.slackFailed[path] = f
	}
}
