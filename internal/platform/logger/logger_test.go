package logger

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupValidLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "DEBUG", "Info"} {
		l, err := Setup(Config{Level: level})
		require.NoError(t, err, "Setup should succeed for level %q", level)
		require.NotNil(t, l, "Setup should return a logger for level %q", level)
	}
}

func TestSetupInvalidLevelFallsBack(t *testing.T) {
	l, err := Setup(Config{Level: "verbose"})
	require.NoError(t, err)
	require.NotNil(t, l)

	// Fallback level is info: debug records must be suppressed.
	assert.False(t, l.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, l.Enabled(context.Background(), slog.LevelInfo))
}

func TestFromContextDefault(t *testing.T) {
	// No logger attached: the default logger is returned, never nil.
	assert.NotNil(t, FromContext(context.Background()))
	assert.NotNil(t, FromContext(nil)) //nolint:staticcheck // exercising the nil guard
}

func TestWithLoggerRoundTrip(t *testing.T) {
	custom := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := WithLogger(context.Background(), custom)

	assert.Same(t, custom, FromContext(ctx))
}
