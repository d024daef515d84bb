package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/frigosense/coldwatch/internal/application"
	"github.com/frigosense/coldwatch/internal/scheduler"
)

// Config is the full application configuration, loaded from YAML with
// environment variable overrides.
type Config struct {
	BusURL      string `yaml:"bus_url"`
	BusTopic    string `yaml:"bus_topic"`
	DatabaseURL string `yaml:"database_url"`
	WebhookURL  string `yaml:"webhook_url"`
	ListenAddr  string `yaml:"listen_addr"`
	LogLevel    string `yaml:"log_level"`
	Timezone    string `yaml:"timezone"`

	WebhookTimeout time.Duration `yaml:"webhook_timeout"`

	Alerts    AlertsSection    `yaml:"alerts"`
	Schedules SchedulesSection `yaml:"schedules"`
}

// AlertsSection overrides the alert engine tunables. Zero values keep the
// defaults.
type AlertsSection struct {
	FallbackTempMax    *float64 `yaml:"fallback_temp_max"`
	HighTrafficTempMax *float64 `yaml:"high_traffic_temp_max"`
	HighTrafficDays    []int    `yaml:"high_traffic_weekdays"`
	FallbackTempMin    *float64 `yaml:"fallback_temp_min"`

	SoakMinutes               int `yaml:"soak_minutes"`
	PredictiveSoakMinutes     int `yaml:"predictive_soak_minutes"`
	CooldownMinutes           int `yaml:"cooldown_minutes"`
	PredictiveCooldownMinutes int `yaml:"predictive_cooldown_minutes"`
	DoorOpenMaxMinutes        int `yaml:"door_open_max_minutes"`
	GatewayOfflineMinutes     int `yaml:"gateway_offline_minutes"`
}

// SchedulesSection overrides the maintenance task periods.
type SchedulesSection struct {
	TelemetryDrain time.Duration `yaml:"telemetry_drain"`
	DoorDrain      time.Duration `yaml:"door_drain"`
	WebhookDrain   time.Duration `yaml:"webhook_drain"`
	ConfigRefresh  time.Duration `yaml:"config_refresh"`
}

// Load reads the configuration from path (optional), then applies env
// overrides and defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BUS_URL"); v != "" {
		cfg.BusURL = v
	}
	if v := os.Getenv("BUS_TOPIC"); v != "" {
		cfg.BusTopic = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		cfg.WebhookURL = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TZ_NAME"); v != "" {
		cfg.Timezone = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.BusTopic == "" {
		cfg.BusTopic = "telemetry/ble"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "America/Sao_Paulo"
	}
	if cfg.WebhookTimeout == 0 {
		cfg.WebhookTimeout = 30 * time.Second
	}
}

// AlertSettings maps the configuration onto the alert engine tunables.
func (c *Config) AlertSettings() application.AlertSettings {
	s := application.DefaultAlertSettings()

	if tz, err := time.LoadLocation(c.Timezone); err == nil {
		s.Timezone = tz
	} else {
		log.Warn().Str("tz", c.Timezone).Err(err).Msg("Unknown timezone, keeping default")
	}

	a := c.Alerts
	if a.FallbackTempMax != nil {
		s.FallbackTempMax = *a.FallbackTempMax
	}
	if a.HighTrafficTempMax != nil {
		s.HighTrafficTempMax = *a.HighTrafficTempMax
	}
	if len(a.HighTrafficDays) > 0 {
		days := make(map[time.Weekday]bool, len(a.HighTrafficDays))
		for _, d := range a.HighTrafficDays {
			days[time.Weekday(d)] = true
		}
		s.HighTrafficWeekdays = days
	}
	if a.FallbackTempMin != nil {
		s.FallbackTempMin = *a.FallbackTempMin
	}
	if a.SoakMinutes > 0 {
		s.SoakTime = time.Duration(a.SoakMinutes) * time.Minute
	}
	if a.PredictiveSoakMinutes > 0 {
		s.PredictiveSoak = time.Duration(a.PredictiveSoakMinutes) * time.Minute
	}
	if a.CooldownMinutes > 0 {
		s.CooldownHard = time.Duration(a.CooldownMinutes) * time.Minute
	}
	if a.PredictiveCooldownMinutes > 0 {
		s.CooldownPredictive = time.Duration(a.PredictiveCooldownMinutes) * time.Minute
	}
	if a.DoorOpenMaxMinutes > 0 {
		s.DoorOpenMax = time.Duration(a.DoorOpenMaxMinutes) * time.Minute
	}
	if a.GatewayOfflineMinutes > 0 {
		s.GatewayOfflineAfter = time.Duration(a.GatewayOfflineMinutes) * time.Minute
	}
	return s
}

// Intervals maps the configuration onto the scheduler periods.
func (c *Config) Intervals() scheduler.Intervals {
	iv := scheduler.DefaultIntervals()
	if c.Schedules.TelemetryDrain > 0 {
		iv.TelemetryDrain = c.Schedules.TelemetryDrain
	}
	if c.Schedules.DoorDrain > 0 {
		iv.DoorDrain = c.Schedules.DoorDrain
	}
	if c.Schedules.WebhookDrain > 0 {
		iv.WebhookDrain = c.Schedules.WebhookDrain
	}
	if c.Schedules.ConfigRefresh > 0 {
		iv.ConfigRefresh = c.Schedules.ConfigRefresh
	}
	return iv
}

// Validate checks the fields without which the process cannot run.
func (c *Config) Validate() error {
	if c.BusURL == "" {
		return fmt.Errorf("bus_url is required (or set BUS_URL)")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required (or set DATABASE_URL)")
	}
	if c.WebhookURL == "" {
		return fmt.Errorf("webhook_url is required (or set WEBHOOK_URL)")
	}
	return nil
}
