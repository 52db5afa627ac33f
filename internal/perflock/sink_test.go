package perflock_test

import (
	"context"
	"testing"

	"codeberg.org/mutker/socpowerd/internal/errors"
	"codeberg.org/mutker/socpowerd/internal/perflock"
	"codeberg.org/mutker/socpowerd/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapNodes map[string]string

func (n mapNodes) ReadNode(path string) (string, error) {
	return n[path] + "\n", nil
}

func (n mapNodes) WriteNode(path, value string) error {
	n[path] = value
	return nil
}

func TestNodeSinkRestoresOriginal(t *testing.T) {
	ctx := context.Background()
	nodes := mapNodes{"/sys/gpu/min": "133"}
	fallback := newRecordingSink()

	sink, err := perflock.NewNodeSink(nodes, map[string]string{"gpu_min_freq": "/sys/gpu/min"}, fallback)
	require.NoError(t, err)

	require.NoError(t, sink.Set(ctx, resource.GPUMinFreq, 315))
	require.NoError(t, sink.Set(ctx, resource.GPUMinFreq, 510))
	assert.Equal(t, "510", nodes["/sys/gpu/min"])

	require.NoError(t, sink.Reset(ctx, resource.GPUMinFreq))
	assert.Equal(t, "133", nodes["/sys/gpu/min"])

	require.NoError(t, sink.Set(ctx, resource.SchedBoost, 1))
	assert.Equal(t, []string{"set sched_boost=1"}, fallback.events)
}

func TestNodeSinkUnknownKind(t *testing.T) {
	_, err := perflock.NewNodeSink(mapNodes{}, map[string]string{"warp_drive": "/x"}, nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidConfig))
}

func TestManagerWithNodeSink(t *testing.T) {
	ctx := context.Background()
	nodes := mapNodes{"/sys/cpu0/min": "300"}
	sink, err := perflock.NewNodeSink(nodes, map[string]string{"cpu0_min_freq": "/sys/cpu0/min"}, nil)
	require.NoError(t, err)
	m := newManager(sink)

	h, err := m.Acquire(ctx, resource.InvalidHandle, 0, resource.List{{Kind: resource.CPU0MinFreq, Value: 1440}})
	require.NoError(t, err)
	assert.Equal(t, "1440", nodes["/sys/cpu0/min"])

	require.NoError(t, m.Release(ctx, h))
	assert.Equal(t, "300", nodes["/sys/cpu0/min"])
}

func TestTee(t *testing.T) {
	ctx := context.Background()
	a, b := newRecordingSink(), newRecordingSink()
	a.err = assert.AnError

	err := perflock.Tee(a, b).Set(ctx, resource.SchedBoost, 1)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []string{"set sched_boost=1"}, b.events)

	require.NoError(t, perflock.Tee(a, b).Reset(ctx, resource.SchedBoost))
	assert.Equal(t, []string{"set sched_boost=1", "reset sched_boost"}, b.events)
}
