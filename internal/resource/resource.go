// Package resource defines the vocabulary shared by the mode arbiter and the
// resource-lock subsystem: typed resource kinds, resource lists and handles.
package resource

import (
	"fmt"
	"strings"
)

// Kind identifies a hardware parameter a lock can pin.
type Kind uint16

const (
	KindUnknown Kind = iota

	// Frequency caps and floors, values in MHz.
	CPU0MaxFreq
	CPU2MaxFreq
	CPU0MinFreq
	CPU2MinFreq
	GPUMaxFreq
	GPUMinFreq

	// GPU bus floor, value in MBps.
	GPUBusMinFreq

	// Interaction boost knobs.
	MinFreqBigCore0
	MinFreqLittleCore0
	StorageClkScaling
	CPUBWHwmonMinFreq
	SchedBoost

	// Display state hint knobs.
	DisplayOff
	SamplingRate
	TimerRate
	ThreadMigrationSync
)

// Direction tells the lock subsystem how concurrent requests on the same
// kind combine.
type Direction uint8

const (
	// Floor: the highest requested value wins.
	Floor Direction = iota
	// Ceiling: the lowest requested value wins.
	Ceiling
	// Latest: the most recent request wins.
	Latest
)

type kindInfo struct {
	name string
	dir  Direction
}

var kinds = map[Kind]kindInfo{
	CPU0MaxFreq:         {"cpu0_max_freq", Ceiling},
	CPU2MaxFreq:         {"cpu2_max_freq", Ceiling},
	CPU0MinFreq:         {"cpu0_min_freq", Floor},
	CPU2MinFreq:         {"cpu2_min_freq", Floor},
	GPUMaxFreq:          {"gpu_max_freq", Ceiling},
	GPUMinFreq:          {"gpu_min_freq", Floor},
	GPUBusMinFreq:       {"gpu_bus_min_freq", Floor},
	MinFreqBigCore0:     {"min_freq_big_core_0", Floor},
	MinFreqLittleCore0:  {"min_freq_little_core_0", Floor},
	StorageClkScaling:   {"storage_clk_scaling", Latest},
	CPUBWHwmonMinFreq:   {"cpubw_hwmon_min_freq", Floor},
	SchedBoost:          {"sched_boost", Floor},
	DisplayOff:          {"display_off", Latest},
	SamplingRate:        {"sampling_rate_ms", Latest},
	TimerRate:           {"timer_rate_ms", Latest},
	ThreadMigrationSync: {"thread_migration_sync", Latest},
}

func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}

	return fmt.Sprintf("kind(%d)", uint16(k))
}

// Direction returns how requests on k combine.
func (k Kind) Direction() Direction {
	if info, ok := kinds[k]; ok {
		return info.dir
	}

	return Latest
}

// ParseKind resolves a kind from its String form.
func ParseKind(name string) (Kind, bool) {
	for k, info := range kinds {
		if info.name == name {
			return k, true
		}
	}

	return KindUnknown, false
}

// Resource is one (kind, value) pair of a request.
type Resource struct {
	Kind  Kind
	Value int
}

// List is an ordered resource request. It is always submitted whole.
type List []Resource

func (l List) String() string {
	parts := make([]string, len(l))
	for i, r := range l {
		parts[i] = fmt.Sprintf("%s=%d", r.Kind, r.Value)
	}

	return strings.Join(parts, ",")
}

// Clone returns a copy of l that the caller may modify.
func (l List) Clone() List {
	out := make(List, len(l))
	copy(out, l)

	return out
}

// Handle references an acquired lock.
type Handle int64

// InvalidHandle is the sentinel for "no lock held".
const InvalidHandle Handle = 0

// Valid reports whether h references a lock.
func (h Handle) Valid() bool {
	return h != InvalidHandle
}

// ActionID names a persistent hint action owned by the lock subsystem.
type ActionID uint32

// DisplayStateAction is the display-off action submitted while the screen is off.
const DisplayStateAction ActionID = 1
