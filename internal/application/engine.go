package application

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/frigosense/coldwatch/internal/domain/thermal"
	"github.com/frigosense/coldwatch/internal/infrastructure/cache"
	"github.com/frigosense/coldwatch/internal/persistence"
)

const (
	deadbandTemp      = 0.2
	deadbandHum       = 2.0
	deadbandMaxAge    = 10 * time.Minute
	configSnapshotKey = "coldwatch:sensor_configs"
	tsLayout          = "2006-01-02T15:04:05.000"
)

// Engine owns every piece of mutable runtime state: sensor states, config
// cache, heartbeats, blocklists and the three drain queues. All sensor
// mutation happens on the single ingestion path; the mutex covers reads from
// the schedulers and the health endpoint.
type Engine struct {
	clock     Clock
	settings  AlertSettings
	alerts    *AlertEngine
	store     persistence.Store
	snapshots cache.Cache

	mu              sync.RWMutex
	states          map[string]*SensorState
	configs         map[string]persistence.SensorConfig
	pairedBlocklist map[string]bool
	heartbeats      map[string]*Heartbeat
	lastSystemAlert map[string]time.Time
	bootDoorStates  map[string]bool

	TelemetryQ *Queue[persistence.TelemetryRow]
	DoorQ      *Queue[persistence.DoorEvent]
	AlertQ     *Queue[Alert]

	startedAt time.Time
	busProbe  func() bool
}

// NewEngine wires the processing core. The cache may be nil when no snapshot
// backend is configured.
func NewEngine(clock Clock, settings AlertSettings, store persistence.Store, snapshots cache.Cache) *Engine {
	return &Engine{
		clock:     clock,
		settings:  settings,
		alerts:    NewAlertEngine(settings),
		store:     store,
		snapshots: snapshots,

		states:          make(map[string]*SensorState),
		configs:         make(map[string]persistence.SensorConfig),
		pairedBlocklist: make(map[string]bool),
		heartbeats:      make(map[string]*Heartbeat),
		lastSystemAlert: make(map[string]time.Time),
		bootDoorStates:  make(map[string]bool),

		TelemetryQ: NewQueue[persistence.TelemetryRow]("telemetry"),
		DoorQ:      NewQueue[persistence.DoorEvent]("door"),
		AlertQ:     NewQueue[Alert]("alerts"),

		startedAt: clock.Now(),
	}
}

// SetBusProbe registers a connectivity check for health reporting.
func (e *Engine) SetBusProbe(probe func() bool) { e.busProbe = probe }

// Alerts exposes the alert engine for watchlist pruning.
func (e *Engine) Alerts() *AlertEngine { return e.alerts }

// HandlePayload is the bus handler: decode, filter, route. It never blocks
// on persistence or outbound dispatch.
func (e *Engine) HandlePayload(payload []byte) {
	gateways, err := decodePayload(payload)
	if err != nil {
		metricPayloadErrors.Inc()
		log.Error().Err(err).Str("preview", payloadPreview(payload)).Msg("Payload parse failed")
		return
	}

	now := e.clock.Now()
	for _, gw := range gateways {
		gmac := canonicalMAC(gw.GMAC)
		if gmac == "" || defaultBlocklist[gmac] {
			continue
		}
		e.touchGateway(gmac, now)

		for _, entry := range gw.Obj {
			if entry.Type != 1 {
				continue
			}
			mac := canonicalMAC(entry.DMAC)
			if mac == "" || defaultBlocklist[mac] {
				continue
			}

			e.mu.RLock()
			blocked := e.pairedBlocklist[mac]
			cfg, known := e.configs[mac]
			e.mu.RUnlock()
			if blocked || !known {
				// Unknown MACs are expected during onboarding.
				continue
			}

			e.processSample(gmac, mac, cfg, entry, now)
		}
	}
	e.publishQueueDepths()
}

func (e *Engine) touchGateway(gmac string, now time.Time) {
	e.mu.Lock()
	hb, ok := e.heartbeats[gmac]
	if !ok {
		e.heartbeats[gmac] = &Heartbeat{LastSeen: now, Source: "LIVE"}
	} else {
		hb.LastSeen = now
		hb.Source = "LIVE"
	}
	e.mu.Unlock()
}

// processSample runs the per-sample pipeline: maintenance gate, window
// append, analyzer, defrost, door, alerts, deadband persistence.
func (e *Engine) processSample(gmac, mac string, cfg persistence.SensorConfig, entry sensorEntry, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.states[mac]
	if !ok {
		st = NewSensorState(mac, gmac, thermal.ProfileFor(cfg.TempMin))
		if open, boot := e.bootDoorStates[mac]; boot {
			st.DoorOpen = open
			if open {
				st.DoorOpenedSince = now
			}
			delete(e.bootDoorStates, mac)
		}
		e.states[mac] = st
	}

	if cfg.Maintenance {
		e.alerts.ClearSensor(mac)
		st.LastAlertSent = time.Time{}
		st.LastAlertPriority = ""
		return
	}

	battery := batteryPercent(entry.VBatt)
	st.GatewayMAC = gmac
	st.Profile = thermal.ProfileFor(cfg.TempMin)
	st.LastTemp = entry.Temp
	st.LastHum = entry.Humidity
	st.LastRSSI = entry.RSSI
	st.LastBattery = battery
	st.LastSeen = now

	st.Window.Append(now, entry.Temp)
	metricSamplesProcessed.Inc()

	tuning := thermal.TuningFor(st.Profile)
	m, ready := thermal.Analyze(st.Window.Samples(), tuning)

	if ready {
		e.runDefrost(st, m, tuning, entry.Temp, now)
		e.runDoor(st, m, tuning, cfg, entry, now)
	}

	if alert := e.alerts.Evaluate(st, cfg, m, ready, now); alert != nil {
		e.AlertQ.Push(*alert)
		metricAlertsEmitted.WithLabelValues(string(alert.Priority)).Inc()
		log.Warn().Str("sensor", mac).Str("priority", string(alert.Priority)).
			Strs("messages", alert.Messages).Msg("Alert emitted")
	}

	e.persistDeadband(st, cfg, entry, battery, now)
}

func (e *Engine) runDefrost(st *SensorState, m thermal.Metrics, tuning thermal.Tuning, temp float64, now time.Time) {
	if !st.Defrost.Active {
		if thermal.ShouldStartDefrost(m, tuning, st.Profile) {
			st.Defrost = thermal.DefrostState{
				Active:      true,
				JustStarted: true,
				StartTS:     now,
				StartTemp:   temp,
				PeakTemp:    temp,
			}
			metricDefrostTransitions.Inc()
			log.Info().Str("sensor", st.MAC).Float64("temp", temp).Msg("Defrost cycle started")
		}
		return
	}

	if temp > st.Defrost.PeakTemp {
		st.Defrost.PeakTemp = temp
	}

	justStarted := st.Defrost.JustStarted
	if thermal.ShouldEndDefrost(m, tuning, st.Defrost, temp, now) {
		dur := now.Sub(st.Defrost.StartTS)
		st.Defrost = thermal.DefrostState{}
		metricDefrostTransitions.Inc()
		log.Info().Str("sensor", st.MAC).Dur("duration", dur).Msg("Defrost cycle ended")
		return
	}
	if justStarted {
		// The flag blocks an immediate end for exactly one sample.
		st.Defrost.JustStarted = false
	}
}

func (e *Engine) runDoor(st *SensorState, m thermal.Metrics, tuning thermal.Tuning, cfg persistence.SensorConfig, entry sensorEntry, now time.Time) {
	res := thermal.EvaluateDoor(m, tuning, thermal.DoorInput{
		Temp:          entry.Temp,
		TempMin:       cfg.TempMin,
		TempMax:       cfg.TempMax,
		IsDefrosting:  st.Defrost.Active,
		Open:          st.DoorOpen,
		PriorVariance: st.LastVariance,
	})

	if st.commitDoor(res, now) {
		if st.DoorOpen {
			st.LastVariance = m.Variance
		}
		alarm := 0
		if entry.Alarm != nil {
			alarm = *entry.Alarm
		}
		e.DoorQ.Push(persistence.DoorEvent{
			GatewayMAC:     st.GatewayMAC,
			SensorMAC:      st.MAC,
			TimestampRead:  now,
			IsOpen:         st.DoorOpen,
			AlarmCode:      alarm,
			BatteryPercent: st.LastBattery,
			RSSI:           st.LastRSSI,
		})
		metricDoorTransitions.Inc()
		log.Info().Str("sensor", st.MAC).Bool("open", st.DoorOpen).
			Int("criteria", res.Criteria).Msg("Door transition")
	}
}

func (e *Engine) persistDeadband(st *SensorState, cfg persistence.SensorConfig, entry sensorEntry, battery int, now time.Time) {
	write := !st.HasDBRow ||
		abs(entry.Temp-st.LastDBTemp) >= deadbandTemp ||
		abs(entry.Humidity-st.LastDBHum) >= deadbandHum ||
		now.Sub(st.LastDBTS) >= deadbandMaxAge
	if !write {
		return
	}

	e.TelemetryQ.Push(persistence.TelemetryRow{
		GW:   st.GatewayMAC,
		MAC:  st.MAC,
		TS:   persistTimestamp(entry.Time, now.Format(tsLayout)),
		Temp: entry.Temp,
		Hum:  entry.Humidity,
		Batt: battery,
		RSSI: entry.RSSI,
	})
	st.HasDBRow = true
	st.LastDBTemp = entry.Temp
	st.LastDBHum = entry.Humidity
	st.LastDBTS = now
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// RefreshConfigs reloads the config cache from the store and swaps both the
// config map and the paired-door blocklist atomically. On failure the
// previous cache is kept.
func (e *Engine) RefreshConfigs(ctx context.Context) error {
	rows, err := e.store.Configs.ListSensorConfigs(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Config refresh failed, keeping previous cache")
		return err
	}
	e.applyConfigs(rows)
	e.snapshotConfigs(rows)
	log.Info().Int("sensors", len(rows)).Msg("Config cache refreshed")
	return nil
}

// BootstrapConfigs loads the config cache at startup, falling back to the
// last snapshot when the store is unreachable.
func (e *Engine) BootstrapConfigs(ctx context.Context) error {
	if err := e.RefreshConfigs(ctx); err == nil {
		return nil
	}
	if e.snapshots == nil {
		return errNoConfigSource
	}
	data, ok := e.snapshots.Get(configSnapshotKey)
	if !ok {
		return errNoConfigSource
	}
	var rows []persistence.SensorConfig
	if err := json.Unmarshal(data, &rows); err != nil {
		log.Error().Err(err).Msg("Config snapshot unreadable")
		return errNoConfigSource
	}
	e.applyConfigs(rows)
	log.Warn().Int("sensors", len(rows)).Msg("Config cache bootstrapped from snapshot")
	return nil
}

func (e *Engine) applyConfigs(rows []persistence.SensorConfig) {
	configs := make(map[string]persistence.SensorConfig, len(rows))
	paired := make(map[string]bool)
	for _, row := range rows {
		row.MAC = canonicalMAC(row.MAC)
		configs[row.MAC] = row
		if row.PairedDoorMAC != nil && *row.PairedDoorMAC != "" {
			paired[canonicalMAC(*row.PairedDoorMAC)] = true
		}
	}
	e.mu.Lock()
	e.configs = configs
	e.pairedBlocklist = paired
	e.mu.Unlock()
}

func (e *Engine) snapshotConfigs(rows []persistence.SensorConfig) {
	if e.snapshots == nil {
		return
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return
	}
	e.snapshots.Set(configSnapshotKey, data, 24*time.Hour)
}

// SetConfigs injects a config map directly, for tests.
func (e *Engine) SetConfigs(rows []persistence.SensorConfig) {
	e.applyConfigs(rows)
}

// ReseedHeartbeats merges gateways recently seen in the store, so gateways
// active before process start are not flagged offline on boot.
func (e *Engine) ReseedHeartbeats(ctx context.Context) error {
	since := e.clock.Now().Add(-heartbeatTTL)
	seen, err := e.store.Telemetry.ActiveGateways(ctx, since)
	if err != nil {
		log.Error().Err(err).Msg("Heartbeat reseed failed")
		return err
	}
	e.mu.Lock()
	for gmac, last := range seen {
		gmac = canonicalMAC(gmac)
		hb, ok := e.heartbeats[gmac]
		if !ok || last.After(hb.LastSeen) {
			if ok && hb.Source == "LIVE" {
				continue
			}
			e.heartbeats[gmac] = &Heartbeat{LastSeen: last, Source: "DB"}
		}
	}
	e.mu.Unlock()
	log.Info().Int("gateways", len(seen)).Msg("Gateway heartbeats reseeded")
	return nil
}

// BootstrapDoorStates loads the last recorded door flag per sensor so a
// restart does not replay an "opened" transition.
func (e *Engine) BootstrapDoorStates(ctx context.Context) error {
	states, err := e.store.Doors.LastStates(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Door state bootstrap failed")
		return err
	}
	e.mu.Lock()
	for mac, open := range states {
		e.bootDoorStates[canonicalMAC(mac)] = open
	}
	e.mu.Unlock()
	log.Info().Int("sensors", len(states)).Msg("Door states bootstrapped")
	return nil
}

// CheckGateways enqueues a SYSTEM alert for each gateway silent beyond the
// offline threshold, at most once per dedup interval.
func (e *Engine) CheckGateways() {
	now := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()
	for gmac, hb := range e.heartbeats {
		silent := now.Sub(hb.LastSeen)
		if silent < e.settings.GatewayOfflineAfter {
			continue
		}
		if last, ok := e.lastSystemAlert[gmac]; ok && now.Sub(last) < e.settings.GatewayAlertDedup {
			continue
		}
		e.lastSystemAlert[gmac] = now
		e.AlertQ.Push(Alert{
			SensorName: "Gateway " + gmac,
			SensorMAC:  gmac,
			Priority:   PrioritySistema,
			Messages:   []string{"GATEWAY OFFLINE: sem dados há " + silent.Round(time.Minute).String()},
			Timestamp:  now.In(e.settings.Timezone).Format(time.RFC3339),
			Context: map[string]any{
				"ultimo_contato": hb.LastSeen.In(e.settings.Timezone).Format(time.RFC3339),
				"origem":         hb.Source,
			},
		})
		metricAlertsEmitted.WithLabelValues(string(PrioritySistema)).Inc()
		log.Warn().Str("gateway", gmac).Dur("silent", silent).Msg("Gateway offline alert enqueued")
	}
}

// GC evicts sensor state silent beyond 24 h and heartbeats beyond 48 h.
func (e *Engine) GC() (sensors, gateways int) {
	now := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()
	for mac, st := range e.states {
		if now.Sub(st.LastSeen) > stateTTL {
			delete(e.states, mac)
			sensors++
		}
	}
	for gmac, hb := range e.heartbeats {
		if now.Sub(hb.LastSeen) > heartbeatTTL {
			delete(e.heartbeats, gmac)
			delete(e.lastSystemAlert, gmac)
			gateways++
		}
	}
	if sensors > 0 || gateways > 0 {
		log.Info().Int("sensors", sensors).Int("gateways", gateways).Msg("State GC")
	}
	return sensors, gateways
}

func (e *Engine) publishQueueDepths() {
	metricQueueDepth.WithLabelValues("telemetry").Set(float64(e.TelemetryQ.Len()))
	metricQueueDepth.WithLabelValues("door").Set(float64(e.DoorQ.Len()))
	metricQueueDepth.WithLabelValues("alerts").Set(float64(e.AlertQ.Len()))

	e.mu.RLock()
	tracked := len(e.states)
	e.mu.RUnlock()
	metricTrackedSensors.Set(float64(tracked))
}

var errNoConfigSource = configBootstrapError{}

type configBootstrapError struct{}

func (configBootstrapError) Error() string {
	return "no sensor configuration available from store or snapshot"
}
