package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the Astervoids server.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Lobby      LobbyConfig      `mapstructure:"lobby"`
	Realtime   RealtimeConfig   `mapstructure:"realtime"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LobbyConfig bounds session capacity and shapes departure handling.
type LobbyConfig struct {
	MaxSessions               int  `mapstructure:"max_sessions"`
	MaxMembersPerSession      int  `mapstructure:"max_members_per_session"`
	DistributeOrphanedObjects bool `mapstructure:"distribute_orphaned_objects"`
}

// RealtimeConfig tunes the websocket transport.
type RealtimeConfig struct {
	SendBufferSize  int      `mapstructure:"send_buffer_size"`
	InboundRate     float64  `mapstructure:"inbound_rate"`
	InboundBurst    int      `mapstructure:"inbound_burst"`
	MaxMessageBytes int64    `mapstructure:"max_message_bytes"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("ASTERVOIDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("lobby.max_sessions", 6)
	v.SetDefault("lobby.max_members_per_session", 4)
	v.SetDefault("lobby.distribute_orphaned_objects", true)

	v.SetDefault("realtime.send_buffer_size", 64)
	v.SetDefault("realtime.inbound_rate", 120)
	v.SetDefault("realtime.inbound_burst", 240)
	v.SetDefault("realtime.max_message_bytes", 65536)
	v.SetDefault("realtime.allowed_origins", []string{})

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
