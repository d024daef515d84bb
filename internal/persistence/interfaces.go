package persistence

import (
	"context"
	"time"
)

// SensorConfig is one row of the sensor_configs table. Nil bounds disable the
// matching alert; Maintenance removes the sensor from processing entirely.
type SensorConfig struct {
	MAC           string   `db:"mac" json:"mac"`
	DisplayName   string   `db:"display_name" json:"display_name"`
	TempMax       *float64 `db:"temp_max" json:"temp_max"`
	TempMin       *float64 `db:"temp_min" json:"temp_min"`
	HumMax        *float64 `db:"hum_max" json:"hum_max"`
	HumMin        *float64 `db:"hum_min" json:"hum_min"`
	Maintenance   bool     `db:"em_manutencao" json:"em_manutencao"`
	PairedDoorMAC *string  `db:"sensor_porta_vinculado" json:"sensor_porta_vinculado"`
}

// TelemetryRow is one deadband-filtered reading bound for telemetry_logs.
// TS is pre-formatted: the gateway timestamp with the space flipped to "T".
type TelemetryRow struct {
	GW   string  `db:"gw" json:"gw"`
	MAC  string  `db:"mac" json:"mac"`
	TS   string  `db:"ts" json:"ts"`
	Temp float64 `db:"temp" json:"temp"`
	Hum  float64 `db:"hum" json:"hum"`
	Batt int     `db:"batt" json:"batt"`
	RSSI int     `db:"rssi" json:"rssi"`
}

// DoorEvent is one virtual (or physical) door transition bound for door_logs.
type DoorEvent struct {
	GatewayMAC     string    `db:"gateway_mac" json:"gateway_mac"`
	SensorMAC      string    `db:"sensor_mac" json:"sensor_mac"`
	TimestampRead  time.Time `db:"timestamp_read" json:"timestamp_read"`
	IsOpen         bool      `db:"is_open" json:"is_open"`
	AlarmCode      int       `db:"alarm_code" json:"alarm_code"`
	BatteryPercent int       `db:"battery_percent" json:"battery_percent"`
	RSSI           int       `db:"rssi" json:"rssi"`
}

// ConfigRepo reads the per-sensor configuration used by the ingestion path.
type ConfigRepo interface {
	// ListSensorConfigs returns every configured sensor, maintenance or not.
	ListSensorConfigs(ctx context.Context) ([]SensorConfig, error)
}

// TelemetryRepo persists filtered readings and answers heartbeat reseeds.
type TelemetryRepo interface {
	// InsertBatch writes a drained telemetry batch atomically.
	InsertBatch(ctx context.Context, rows []TelemetryRow) error

	// ActiveGateways returns the most recent row timestamp per gateway since
	// the cutoff, used to re-seed heartbeats after a restart.
	ActiveGateways(ctx context.Context, since time.Time) (map[string]time.Time, error)
}

// DoorRepo persists door transitions and answers the startup bootstrap.
type DoorRepo interface {
	// InsertBatch writes a drained door-event batch atomically.
	InsertBatch(ctx context.Context, events []DoorEvent) error

	// LastStates returns the latest recorded open/closed flag per sensor,
	// preventing a phantom "opened" right after a restart.
	LastStates(ctx context.Context) (map[string]bool, error)
}

// Store aggregates the repositories the engine depends on.
type Store struct {
	Configs   ConfigRepo
	Telemetry TelemetryRepo
	Doors     DoorRepo
}
