package telemetry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabledIsNoop(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	resetConfig()

	shutdown, err := Init(context.Background())
	require.NoError(t, err)
	assert.False(t, Enabled())
	assert.NoError(t, shutdown(context.Background()))
}

func TestStartStageWithNoopProviderStillYieldsSpan(t *testing.T) {
	ctx, span := StartStage(context.Background(), "hyksort", 3)
	require.NotNil(t, span)
	require.NotNil(t, ctx)
	span.End()
}

// resetConfig clears the cached env config between tests that change
// the environment.
func resetConfig() {
	loadedConfig = nil
	configOnce = sync.Once{}
}
