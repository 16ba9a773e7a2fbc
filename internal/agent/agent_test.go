package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aland-omed/ElderGuard/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Setenv("MQTT_ENABLED", "false")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("MEDICATION_ENABLED", "false")
	t.Setenv("FEED_ENABLED", "false")
	t.Setenv("AUDIO_ENABLED", "false")

	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestNewAgent_ExternalModeRequiresSources(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sensor.Mode = "external"

	_, err := NewAgent(cfg, config.DefaultTunables(), zap.NewNop())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "NewAgentWithSources")
}

func TestAgent_StartStop(t *testing.T) {
	cfg := testConfig(t)

	a, err := NewAgent(cfg, config.DefaultTunables(), zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))

	// 等待管线跑起来，再验证总线可达
	time.Sleep(200 * time.Millisecond)
	assert.NotNil(t, a.Bus())
	assert.NotNil(t, a.Display())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx))
}

func TestAgent_StopBeforeStartIsSafe(t *testing.T) {
	cfg := testConfig(t)

	a, err := NewAgent(cfg, config.DefaultTunables(), zap.NewNop())
	require.NoError(t, err)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	assert.NoError(t, a.Stop(stopCtx))
}
