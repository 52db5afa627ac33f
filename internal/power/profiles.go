package power

import (
	"time"

	"codeberg.org/mutker/socpowerd/internal/resource"
)

const (
	minBoostDuration   = 350 * time.Millisecond
	maxBoostDuration   = 5750 * time.Millisecond
	flingBoostAddition = 200 * time.Millisecond

	// persistent locks stay until released
	persistent time.Duration = 0
)

// Sustained performance: CPUs capped to ~1.2GHz, GPU capped to 315MHz.
var sustainedProfile = resource.List{
	{Kind: resource.CPU0MaxFreq, Value: 1209},
	{Kind: resource.CPU2MaxFreq, Value: 1209},
	{Kind: resource.GPUMinFreq, Value: 133},
	{Kind: resource.GPUMaxFreq, Value: 315},
	{Kind: resource.GPUBusMinFreq, Value: 7759},
}

// Sustained restored after VR exits: CPU floors and the bus floor are
// explicitly cleared.
var sustainedRestoreProfile = resource.List{
	{Kind: resource.CPU0MinFreq, Value: 0},
	{Kind: resource.CPU2MinFreq, Value: 0},
	{Kind: resource.CPU0MaxFreq, Value: 1209},
	{Kind: resource.CPU2MaxFreq, Value: 1209},
	{Kind: resource.GPUMinFreq, Value: 133},
	{Kind: resource.GPUMaxFreq, Value: 315},
	{Kind: resource.GPUBusMinFreq, Value: 0},
}

// VR: CPUs locked at ~1.4GHz, GPU locked to 510MHz, bus floor raised.
var vrProfile = resource.List{
	{Kind: resource.CPU0MinFreq, Value: 1440},
	{Kind: resource.CPU2MinFreq, Value: 1440},
	{Kind: resource.CPU0MaxFreq, Value: 1440},
	{Kind: resource.CPU2MaxFreq, Value: 1440},
	{Kind: resource.GPUMaxFreq, Value: 510},
	{Kind: resource.GPUMinFreq, Value: 510},
	{Kind: resource.GPUBusMinFreq, Value: 7759},
}

// VR + sustained: CPUs locked to ~1.2GHz, GPU locked to 315MHz.
var sustainedVRProfile = resource.List{
	{Kind: resource.CPU0MinFreq, Value: 1209},
	{Kind: resource.CPU2MinFreq, Value: 1209},
	{Kind: resource.CPU0MaxFreq, Value: 1209},
	{Kind: resource.CPU2MaxFreq, Value: 1209},
	{Kind: resource.GPUMinFreq, Value: 315},
	{Kind: resource.GPUMaxFreq, Value: 315},
	{Kind: resource.GPUBusMinFreq, Value: 7759},
}

var easFlingProfile = resource.List{
	{Kind: resource.MinFreqBigCore0, Value: 1113},
	{Kind: resource.MinFreqLittleCore0, Value: 1113},
	{Kind: resource.StorageClkScaling, Value: 0x32},
	{Kind: resource.CPUBWHwmonMinFreq, Value: 0x33},
}

var easTapProfile = resource.List{
	{Kind: resource.MinFreqBigCore0, Value: 729},
	{Kind: resource.MinFreqLittleCore0, Value: 729},
	{Kind: resource.CPUBWHwmonMinFreq, Value: 0x33},
}

var hmpInteractionProfile = resource.List{
	{Kind: resource.CPUBWHwmonMinFreq, Value: 0x33},
	{Kind: resource.MinFreqBigCore0, Value: 1000},
	{Kind: resource.MinFreqLittleCore0, Value: 1000},
	{Kind: resource.SchedBoost, Value: 1},
}

var ondemandDisplayOffProfile = resource.List{
	{Kind: resource.DisplayOff, Value: 1},
	{Kind: resource.SamplingRate, Value: 500},
	{Kind: resource.ThreadMigrationSync, Value: 0},
}

var interactiveDisplayOffProfile = resource.List{
	{Kind: resource.TimerRate, Value: 50},
	{Kind: resource.ThreadMigrationSync, Value: 0},
}

// modeProfile returns the profile for the (sustained, vr) combination and
// whether the sustained handle should own it. enabling names the mode that
// is turning on in this transition, or hintNone when a mode turns off.
func modeProfile(sustained, vr bool, enabling Hint) (resource.List, bool) {
	switch {
	case sustained && vr:
		return sustainedVRProfile, enabling == HintSustainedPerformance
	case sustained && enabling == HintSustainedPerformance:
		return sustainedProfile, true
	case sustained:
		return sustainedRestoreProfile, true
	case vr:
		return vrProfile, false
	default:
		return nil, false
	}
}

func interactionProfile(family Family, fling bool) resource.List {
	if family == FamilyEAS {
		if fling {
			return easFlingProfile
		}

		return easTapProfile
	}

	return hmpInteractionProfile
}

func displayOffProfile(g Governor) resource.List {
	if g == GovernorOndemand {
		return ondemandDisplayOffProfile
	}

	return interactiveDisplayOffProfile
}

// BoostDuration returns the interaction boost length for an optional
// duration hint in milliseconds, and whether the hint marks a fling.
func BoostDuration(hintMs *int) (time.Duration, bool) {
	if hintMs == nil {
		return minBoostDuration, false
	}

	// Clamp in milliseconds so huge hints can't overflow the Duration.
	ms := int64(*hintMs)
	addMs := flingBoostAddition.Milliseconds()
	switch {
	case ms >= maxBoostDuration.Milliseconds()-addMs:
		return maxBoostDuration, true
	case ms <= minBoostDuration.Milliseconds()-addMs:
		return minBoostDuration, true
	}

	return time.Duration(ms+addMs) * time.Millisecond, true
}
