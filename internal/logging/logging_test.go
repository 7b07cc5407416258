package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetRoutesThroughNamedLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Use(zap.New(core))
	defer Use(zap.NewNop())

	Get(CategoryStore).Infow("opened database", "path", ":memory:")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "store", entries[0].LoggerName)
	assert.Equal(t, "opened database", entries[0].Message)
}

func TestGetCachesPerCategory(t *testing.T) {
	Use(zap.NewNop())
	assert.Same(t, Get(CategoryGraph), Get(CategoryGraph))
	assert.NotSame(t, Get(CategoryGraph), Get(CategoryStore))
}

func TestInitVerbose(t *testing.T) {
	require.NoError(t, Init(true))
	defer Use(zap.NewNop())
	assert.NotNil(t, Get(CategoryBoot))
}
