package power_test

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"codeberg.org/mutker/socpowerd/internal/errors"
	"codeberg.org/mutker/socpowerd/internal/power"
	"codeberg.org/mutker/socpowerd/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestBoostDuration(t *testing.T) {
	tests := []struct {
		name  string
		hint  *int
		want  time.Duration
		fling bool
	}{
		{"tap", nil, 350 * time.Millisecond, false},
		{"zero hint floors", intPtr(0), 350 * time.Millisecond, true},
		{"short fling floors", intPtr(100), 350 * time.Millisecond, true},
		{"fling adds 200ms", intPtr(1000), 1200 * time.Millisecond, true},
		{"at ceiling", intPtr(5550), 5750 * time.Millisecond, true},
		{"clamped", intPtr(6000), 5750 * time.Millisecond, true},
		{"negative floors", intPtr(-500), 350 * time.Millisecond, true},
		{"huge hint caps", intPtr(9_300_000_000_000), 5750 * time.Millisecond, true},
		{"max int caps", intPtr(math.MaxInt), 5750 * time.Millisecond, true},
		{"min int floors", intPtr(math.MinInt), 350 * time.Millisecond, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fling := power.BoostDuration(tt.hint)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.fling, fling)
		})
	}
}

func TestInteractionProfilesByGovernor(t *testing.T) {
	tests := []struct {
		governor string
		hint     *int
		kind     resource.Kind
		value    int
		absent   resource.Kind
	}{
		{"schedutil", intPtr(500), resource.MinFreqBigCore0, 1113, resource.SchedBoost},
		{"schedutil", nil, resource.MinFreqBigCore0, 729, resource.StorageClkScaling},
		{"sched", nil, resource.MinFreqLittleCore0, 729, resource.SchedBoost},
		{"interactive", intPtr(500), resource.SchedBoost, 1, resource.StorageClkScaling},
		{"ondemand", nil, resource.MinFreqBigCore0, 1000, resource.StorageClkScaling},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%v", tt.governor, tt.hint != nil), func(t *testing.T) {
			h := newHarness(tt.governor)
			require.NoError(t, h.arbiter.Interaction(context.Background(), tt.hint))

			calls := h.locker.ops()
			require.Len(t, calls, 1)
			assert.Equal(t, resource.InvalidHandle, calls[0].handle)

			v, ok := valueOf(calls[0].list, tt.kind)
			require.True(t, ok)
			assert.Equal(t, tt.value, v)
			_, ok = valueOf(calls[0].list, tt.absent)
			assert.False(t, ok)

			v, _ = valueOf(calls[0].list, resource.CPUBWHwmonMinFreq)
			assert.Equal(t, 0x33, v)
		})
	}
}

func TestInteractionIgnoredInModes(t *testing.T) {
	ctx := context.Background()

	h := newHarness("schedutil")
	require.NoError(t, h.arbiter.SustainedPerformance(ctx, true))
	h.locker.reset()
	require.NoError(t, h.arbiter.Interaction(ctx, nil))
	assert.Empty(t, h.locker.ops())
	assert.Equal(t, power.OutcomeIgnored, h.observer.last())

	h = newHarness("schedutil")
	require.NoError(t, h.arbiter.VRMode(ctx, true))
	h.locker.reset()
	require.NoError(t, h.arbiter.Interaction(ctx, intPtr(1000)))
	assert.Empty(t, h.locker.ops())
}

func TestInteractionGovernorUnreadable(t *testing.T) {
	h := newHarness("")
	h.governor.err = fmt.Errorf("no cpufreq")

	err := h.arbiter.Interaction(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, power.ErrGovernorUnreadable))
	assert.Empty(t, h.locker.ops())

	st := h.arbiter.State()
	assert.True(t, st.LastBoost.IsZero())
	assert.Zero(t, st.LastBoostDuration)
}

func TestInteractionDebounce(t *testing.T) {
	ctx := context.Background()

	t.Run("short previous boost does not cover", func(t *testing.T) {
		h := newHarness("schedutil")
		// previous boost 400ms at t=0
		require.NoError(t, h.arbiter.Interaction(ctx, intPtr(200)))
		require.Equal(t, 400*time.Millisecond, h.arbiter.State().LastBoostDuration)

		h.clock.Advance(300 * time.Millisecond)
		h.locker.reset()
		require.NoError(t, h.arbiter.Interaction(ctx, nil))

		// 400 > 300+350 is false
		assert.Len(t, h.locker.ops(), 1)
		assert.Equal(t, 350*time.Millisecond, h.arbiter.State().LastBoostDuration)
	})

	t.Run("long fling covers a tap", func(t *testing.T) {
		h := newHarness("schedutil")
		require.NoError(t, h.arbiter.Interaction(ctx, intPtr(6000)))
		start := h.arbiter.State().LastBoost

		h.clock.Advance(100 * time.Millisecond)
		h.locker.reset()
		require.NoError(t, h.arbiter.Interaction(ctx, nil))

		assert.Empty(t, h.locker.ops())
		assert.Equal(t, power.OutcomeSuppressed, h.observer.last())
		assert.Equal(t, start, h.arbiter.State().LastBoost, "suppressed boosts keep the old window")
	})

	t.Run("exact boundary is not suppressed", func(t *testing.T) {
		h := newHarness("schedutil")
		require.NoError(t, h.arbiter.Interaction(ctx, intPtr(1000))) // 1200ms

		h.clock.Advance(850 * time.Millisecond)
		h.locker.reset()
		require.NoError(t, h.arbiter.Interaction(ctx, nil)) // 1200 > 850+350 is false

		assert.Len(t, h.locker.ops(), 1)
	})

	t.Run("one tick inside the boundary is suppressed", func(t *testing.T) {
		h := newHarness("schedutil")
		require.NoError(t, h.arbiter.Interaction(ctx, intPtr(1000)))

		h.clock.Advance(849 * time.Millisecond)
		h.locker.reset()
		require.NoError(t, h.arbiter.Interaction(ctx, nil))

		assert.Empty(t, h.locker.ops())
	})
}

func TestInteractionBoostIsTimed(t *testing.T) {
	h := newHarness("schedutil")
	require.NoError(t, h.arbiter.Interaction(context.Background(), intPtr(1000)))

	calls := h.locker.ops()
	require.Len(t, calls, 1)
	assert.Equal(t, 1200*time.Millisecond, calls[0].duration)
	assert.Zero(t, h.locker.heldCount())
}

func TestInteractionLockFailure(t *testing.T) {
	h := newHarness("schedutil")
	h.locker.acquireErr = fmt.Errorf("busy")

	err := h.arbiter.Interaction(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, power.ErrLockFailed))
}
