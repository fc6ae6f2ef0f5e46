package observability

import (
	"testing"

	"github.com/gitwallet/market/internal/config"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppVersion:  "1.2.3",
		Environment: "production",
		Telemetry: config.TelemetryConfig{
			LogLevel:      "info",
			OtelEnabled:   true,
			OtlpEndpoint:  "collector:4317",
			OtlpProtocol:  "grpc",
			SamplingRatio: 3,
		},
	})
	require.Equal(t, "market", cfg.ServiceName)
	require.Equal(t, "1.2.3", cfg.Version)
	require.Equal(t, 1.0, cfg.OtelSamplingRatio)
	require.False(t, cfg.Debug())

	require.True(t, LoadConfig(config.Config{Environment: "local"}).Debug())
	require.True(t, LoadConfig(config.Config{
		Environment: "production",
		Telemetry:   config.TelemetryConfig{LogLevel: "DEBUG"},
	}).Debug())
}
