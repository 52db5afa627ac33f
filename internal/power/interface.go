package power

import (
	"context"
	"time"

	"codeberg.org/mutker/socpowerd/internal/resource"
)

// ResourceLocker is the resource-lock subsystem. Acquire with a valid handle
// replaces that lock's resources in place; a zero duration means the lock is
// held until released.
type ResourceLocker interface {
	Acquire(ctx context.Context, h resource.Handle, duration time.Duration, list resource.List) (resource.Handle, error)
	Release(ctx context.Context, h resource.Handle) error
}

// HintActor submits and retracts persistent hint actions.
type HintActor interface {
	PerformHintAction(ctx context.Context, id resource.ActionID, list resource.List) error
	UndoHintAction(ctx context.Context, id resource.ActionID) error
}

// GovernorReader returns the active CPU frequency governor name.
type GovernorReader interface {
	ScalingGovernor() (string, error)
}

// NodeIO reads and writes scalar sysfs nodes.
type NodeIO interface {
	ReadNode(path string) (string, error)
	WriteNode(path, value string) error
}

// LaunchMode exposes the launch boost owned by another feature.
type LaunchMode interface {
	LaunchHandle() (resource.Handle, bool)
	ClearLaunch()
}

// Clock supplies monotonic time for boost debouncing.
type Clock interface {
	Now() time.Time
}

// HintOverride is consulted before the default hint policy. Returning true
// means the hint was fully handled.
type HintOverride interface {
	OverrideHint(ctx context.Context, hint Hint, data any) bool
}

// InteractiveOverride is consulted before the default display policy.
type InteractiveOverride interface {
	OverrideInteractive(ctx context.Context, on bool) bool
}

// Observer receives hint outcomes and mode changes.
type Observer interface {
	HintHandled(hint Hint, outcome Outcome)
	ModesChanged(sustained, vr bool)
}

// Hint identifies a power hint.
type Hint int

const (
	hintNone Hint = iota - 1
	HintVSync
	HintInteraction
	HintSustainedPerformance
	HintVRMode
	HintSetInteractive
)

func (h Hint) String() string {
	switch h {
	case HintVSync:
		return "vsync"
	case HintInteraction:
		return "interaction"
	case HintSustainedPerformance:
		return "sustained_performance"
	case HintVRMode:
		return "vr_mode"
	case HintSetInteractive:
		return "set_interactive"
	default:
		return "unknown"
	}
}

// Outcome is what the arbiter did with a hint.
type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeOverridden Outcome = "overridden"
	OutcomeFailed     Outcome = "failed"
)

// SlackNodes are the msm-dcvs slack tunables scaled while the display is off.
type SlackNodes struct {
	DCVSCPU0SlackMax   string
	DCVSCPU0SlackMin   string
	MPDecisionSlackMax string
	MPDecisionSlackMin string
}

// DefaultSlackNodes returns the stock msm-dcvs node paths.
func DefaultSlackNodes() SlackNodes {
	return SlackNodes{
		DCVSCPU0SlackMax:   "/sys/module/msm_dcvs/cores/cpu0/slack_time_max_us",
		DCVSCPU0SlackMin:   "/sys/module/msm_dcvs/cores/cpu0/slack_time_min_us",
		MPDecisionSlackMax: "/sys/module/msm_mpdecision/slack_time_max_us",
		MPDecisionSlackMin: "/sys/module/msm_mpdecision/slack_time_min_us",
	}
}

func (n SlackNodes) paths() [slackNodeCount]string {
	return [slackNodeCount]string{
		n.DCVSCPU0SlackMax,
		n.DCVSCPU0SlackMin,
		n.MPDecisionSlackMax,
		n.MPDecisionSlackMin,
	}
}

// ModeState is a snapshot of the arbiter state.
type ModeState struct {
	Sustained         bool            `json:"sustained"`
	VR                bool            `json:"vr"`
	SustainedHandle   resource.Handle `json:"sustained_handle"`
	VRHandle          resource.Handle `json:"vr_handle"`
	LastBoost         time.Time       `json:"last_boost"`
	LastBoostDuration time.Duration   `json:"last_boost_duration"`
	Interactive       *bool           `json:"interactive,omitempty"`
	DisplayHintSent   bool            `json:"display_hint_sent"`
	DisplayBoost      bool            `json:"display_boost"`
}
