package perflock

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"codeberg.org/mutker/socpowerd/internal/errors"
	"codeberg.org/mutker/socpowerd/internal/logger"
	"codeberg.org/mutker/socpowerd/internal/resource"
)

// LogSink only logs level changes. It backs the daemon when no resource
// nodes are configured.
type LogSink struct {
	Logger logger.Logger
}

func (s LogSink) Set(_ context.Context, kind resource.Kind, value int) error {
	s.Logger.Info().Str("kind", kind.String()).Int("value", value).Msg("Resource level set")
	return nil
}

func (s LogSink) Reset(_ context.Context, kind resource.Kind) error {
	s.Logger.Info().Str("kind", kind.String()).Msg("Resource level reset")
	return nil
}

// NodeSink writes levels to sysfs nodes, one node per kind. The value a
// node held before its first write is restored on Reset. Kinds without a
// node are passed to Fallback when set.
type NodeSink struct {
	nodes    NodeIO
	paths    map[resource.Kind]string
	fallback Sink

	mu       sync.Mutex
	original map[resource.Kind]string
}

// NewNodeSink builds a sink from kind-name to path mappings, as found in
// the lock_nodes configuration table.
func NewNodeSink(nodes NodeIO, paths map[string]string, fallback Sink) (*NodeSink, error) {
	s := &NodeSink{
		nodes:    nodes,
		paths:    make(map[resource.Kind]string, len(paths)),
		fallback: fallback,
		original: make(map[resource.Kind]string),
	}

	for name, path := range paths {
		kind, ok := resource.ParseKind(name)
		if !ok {
			return nil, errors.New().WithData(errors.ErrInvalidConfig, "unknown resource kind "+name)
		}
		s.paths[kind] = path
	}

	return s, nil
}

func (s *NodeSink) Set(ctx context.Context, kind resource.Kind, value int) error {
	path, ok := s.paths[kind]
	if !ok {
		if s.fallback != nil {
			return s.fallback.Set(ctx, kind, value)
		}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, saved := s.original[kind]; !saved {
		raw, err := s.nodes.ReadNode(path)
		if err != nil {
			return err
		}
		s.original[kind] = strings.TrimSpace(raw)
	}

	return s.nodes.WriteNode(path, strconv.Itoa(value))
}

func (s *NodeSink) Reset(ctx context.Context, kind resource.Kind) error {
	path, ok := s.paths[kind]
	if !ok {
		if s.fallback != nil {
			return s.fallback.Reset(ctx, kind)
		}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	orig, saved := s.original[kind]
	if !saved {
		return nil
	}
	if err := s.nodes.WriteNode(path, orig); err != nil {
		return err
	}
	delete(s.original, kind)

	return nil
}

type teeSink []Sink

// Tee fans level changes out to every sink, stopping at none of them. The
// first error is returned.
func Tee(sinks ...Sink) Sink {
	return teeSink(sinks)
}

func (t teeSink) Set(ctx context.Context, kind resource.Kind, value int) error {
	var first error
	for _, s := range t {
		if err := s.Set(ctx, kind, value); err != nil && first == nil {
			first = err
		}
	}

	return first
}

func (t teeSink) Reset(ctx context.Context, kind resource.Kind) error {
	var first error
	for _, s := range t {
		if err := s.Reset(ctx, kind); err != nil && first == nil {
			first = err
		}
	}

	return first
}
