package logger_test

import (
	"bytes"
	"testing"

	"codeberg.org/mutker/socpowerd/internal/errors"
	"codeberg.org/mutker/socpowerd/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWriter(&buf)
	require.NoError(t, logger.SetLevelName("debug"))

	log := logger.New("power").With("arbiter")
	log.Info().Int("duration_ms", 350).Msg("boost")

	assert.Contains(t, buf.String(), `"component":"power.arbiter"`)
	assert.Contains(t, buf.String(), `"duration_ms":350`)
}

func TestErrorWithCode(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWriter(&buf)
	require.NoError(t, logger.SetLevelName("info"))

	err := errors.New().New(errors.ErrHintAbort)
	logger.New("power").ErrorWithCode(err).Msg("hint failed")

	assert.Contains(t, buf.String(), `"error_code":"hint_aborted"`)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWriter(&buf)
	require.NoError(t, logger.SetLevelName("warning"))
	defer func() { _ = logger.SetLevelName("info") }()

	logger.Debug().Msg("hidden")
	logger.Info().Msg("hidden")
	assert.Empty(t, buf.String())
}

func TestInvalidLevel(t *testing.T) {
	err := logger.SetLevelName("loud")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
}

func TestNopDiscards(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWriter(&buf)

	logger.Nop().With("x").Error().Msg("dropped")
	assert.Empty(t, buf.String())
}
