package power

import (
	"context"
	"time"

	"codeberg.org/mutker/socpowerd/internal/errors"
	"codeberg.org/mutker/socpowerd/internal/resource"
)

// Interaction requests a short boost for touch input. durationHintMs is the
// expected scroll/fling length; nil means a tap.
func (a *Arbiter) Interaction(ctx context.Context, durationHintMs *int) error {
	if durationHintMs == nil {
		return a.PowerHint(ctx, HintInteraction, nil)
	}

	return a.PowerHint(ctx, HintInteraction, durationHintMs)
}

func (a *Arbiter) interaction(ctx context.Context, durationHintMs *int) error {
	errFactory := errors.New()

	a.dispatch.Lock()
	defer a.dispatch.Unlock()

	st := a.snapshot()
	// Sustained and VR profiles override interaction boosts.
	if st.sustained || st.vr {
		a.observer.HintHandled(HintInteraction, OutcomeIgnored)
		return nil
	}

	name, err := a.governor.ScalingGovernor()
	if err != nil {
		a.observer.HintHandled(HintInteraction, OutcomeFailed)
		a.logger.Error().Err(err).Msg("Can't obtain scaling governor")
		return errFactory.Wrap(ErrGovernorUnreadable, err)
	}
	gov := ParseGovernor(name)

	duration, fling := BoostDuration(durationHintMs)

	now := a.clock.Now()
	if covered(st.lastBoost, st.lastBoostDuration, now, duration) {
		a.observer.HintHandled(HintInteraction, OutcomeSuppressed)
		a.logger.Debug().
			Dur("previous", st.lastBoostDuration).
			Dur("duration", duration).
			Msg("Interaction boost covered by previous boost")
		return nil
	}

	a.commit(func(s *modeState) {
		s.lastBoost = now
		s.lastBoostDuration = duration
	})

	profile := interactionProfile(gov.Family(), fling)
	if _, err := a.locker.Acquire(ctx, resource.InvalidHandle, duration, profile); err != nil {
		a.observer.HintHandled(HintInteraction, OutcomeFailed)
		a.logger.Error().Err(err).Msg("Failed to request interaction boost")
		return errFactory.Wrap(ErrLockFailed, err)
	}

	a.observer.HintHandled(HintInteraction, OutcomeApplied)
	a.logger.Debug().
		Str("governor", gov.String()).
		Bool("fling", fling).
		Dur("duration", duration).
		Msg("Interaction boost requested")

	return nil
}

// covered reports whether the previous boost still spans a new boost of
// duration starting at now.
func covered(last time.Time, lastDuration time.Duration, now time.Time, duration time.Duration) bool {
	if lastDuration <= 0 {
		return false
	}

	elapsed := now.Sub(last)

	return lastDuration > elapsed+duration
}
