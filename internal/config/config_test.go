package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "telemetry/ble", cfg.BusTopic)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "America/Sao_Paulo", cfg.Timezone)
	assert.Equal(t, 30*time.Second, cfg.WebhookTimeout)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coldwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bus_url: ws://bus.local:9000/ws
database_url: postgres://cw@db.local/coldwatch
webhook_url: https://hooks.local/alerts
log_level: debug
alerts:
  soak_minutes: 20
  gateway_offline_minutes: 30
schedules:
  telemetry_drain: 30s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "ws://bus.local:9000/ws", cfg.BusURL)
	assert.Equal(t, "debug", cfg.LogLevel)

	settings := cfg.AlertSettings()
	assert.Equal(t, 20*time.Minute, settings.SoakTime)
	assert.Equal(t, 30*time.Minute, settings.GatewayOfflineAfter)
	// Untouched tunables keep their defaults.
	assert.Equal(t, 15*time.Minute, settings.CooldownHard)

	iv := cfg.Intervals()
	assert.Equal(t, 30*time.Second, iv.TelemetryDrain)
	assert.Equal(t, 5*time.Minute, iv.WebhookDrain)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BUS_URL", "ws://env-bus:9000/ws")
	t.Setenv("DATABASE_URL", "postgres://env@db/coldwatch")
	t.Setenv("WEBHOOK_URL", "https://env-hooks/alerts")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "ws://env-bus:9000/ws", cfg.BusURL)
}

func TestValidate_MissingRequired(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func TestAlertSettings_Weekdays(t *testing.T) {
	cfg := &Config{Timezone: "UTC", Alerts: AlertsSection{HighTrafficDays: []int{5, 6}}}

	s := cfg.AlertSettings()
	assert.True(t, s.HighTrafficWeekdays[time.Friday])
	assert.True(t, s.HighTrafficWeekdays[time.Saturday])
	assert.False(t, s.HighTrafficWeekdays[time.Wednesday])
}
