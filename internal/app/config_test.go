package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join("testdata")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)

	require.Equal(t, 12, cfg.Lobby.MaxSessions)
	require.Equal(t, 8, cfg.Lobby.MaxMembersPerSession)
	require.False(t, cfg.Lobby.DistributeOrphanedObjects)

	require.Equal(t, 128, cfg.Realtime.SendBufferSize)
	require.Equal(t, float64(60), cfg.Realtime.InboundRate)
	require.Equal(t, 90, cfg.Realtime.InboundBurst)
	require.Equal(t, int64(32768), cfg.Realtime.MaxMessageBytes)
	require.Equal(t, []string{"https://game.example.com", "https://stage.example.com"}, cfg.Realtime.AllowedOrigins)

	require.False(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/internal/metrics", cfg.Monitoring.Prometheus.Endpoint)
	require.False(t, cfg.Monitoring.Health.Enabled)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)

	require.Equal(t, 6, cfg.Lobby.MaxSessions)
	require.Equal(t, 4, cfg.Lobby.MaxMembersPerSession)
	require.True(t, cfg.Lobby.DistributeOrphanedObjects)

	require.Equal(t, 64, cfg.Realtime.SendBufferSize)
	require.Equal(t, float64(120), cfg.Realtime.InboundRate)
	require.Equal(t, 240, cfg.Realtime.InboundBurst)
	require.Equal(t, int64(65536), cfg.Realtime.MaxMessageBytes)
	require.Empty(t, cfg.Realtime.AllowedOrigins)

	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
	require.True(t, cfg.Monitoring.Health.Enabled)
}
