package application

import (
	"sort"
)

// SensorSummary is one sensor's slice of the health projection.
type SensorSummary struct {
	Name        string   `json:"name"`
	MAC         string   `json:"mac"`
	Gateway     string   `json:"gateway"`
	Temp        float64  `json:"temp"`
	Hum         float64  `json:"hum"`
	Battery     int      `json:"battery"`
	RSSI        int      `json:"rssi"`
	Status      string   `json:"status"`
	AgoSeconds  int64    `json:"ago_seconds"`
	Profile     string   `json:"profile"`
	WindowLen   int      `json:"window_len"`
	Defrosting  bool     `json:"defrosting"`
	DefrostFor  int64    `json:"defrost_for_seconds,omitempty"`
	DefrostPeak float64  `json:"defrost_peak,omitempty"`
	DoorOpen    bool     `json:"door_open"`
	DoorOpenFor int64    `json:"door_open_for_seconds,omitempty"`
	TempMax     *float64 `json:"temp_max"`
	TempMin     *float64 `json:"temp_min"`
	Maintenance bool     `json:"maintenance"`
}

// GatewaySummary is one gateway's slice of the health projection.
type GatewaySummary struct {
	MAC        string `json:"mac"`
	Source     string `json:"source"`
	AgoSeconds int64  `json:"ago_seconds"`
	Online     bool   `json:"online"`
}

// HealthSnapshot is the read-only projection served by the health endpoint.
type HealthSnapshot struct {
	Status        string           `json:"status"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	BusConnected  bool             `json:"bus_connected"`
	Sensors       []SensorSummary  `json:"sensors"`
	Gateways      []GatewaySummary `json:"gateways"`
	Buffers       map[string]int   `json:"buffers"`
	Defrosting    int              `json:"sensors_defrosting"`
	DoorsOpen     int              `json:"sensors_door_open"`
	Maintenance   int              `json:"sensors_maintenance"`
	Watchlist     int              `json:"watchlist_entries"`
}

// HealthSnapshot builds the projection. The map-wide read accepts a brief
// inconsistent view between sensors.
func (e *Engine) HealthSnapshot() HealthSnapshot {
	now := e.clock.Now()

	snap := HealthSnapshot{
		Status:        "ok",
		UptimeSeconds: int64(now.Sub(e.startedAt).Seconds()),
		Buffers: map[string]int{
			"telemetry": e.TelemetryQ.Len(),
			"door":      e.DoorQ.Len(),
			"alerts":    e.AlertQ.Len(),
		},
		Watchlist: e.alerts.WatchlistSize(),
	}
	if e.busProbe != nil {
		snap.BusConnected = e.busProbe()
		if !snap.BusConnected {
			snap.Status = "degraded"
		}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	snap.Sensors = make([]SensorSummary, 0, len(e.states))
	for mac, st := range e.states {
		cfg := e.configs[mac]
		s := SensorSummary{
			Name:        cfg.DisplayName,
			MAC:         mac,
			Gateway:     st.GatewayMAC,
			Temp:        st.LastTemp,
			Hum:         st.LastHum,
			Battery:     st.LastBattery,
			RSSI:        st.LastRSSI,
			Status:      operationalStatus(st),
			AgoSeconds:  int64(now.Sub(st.LastSeen).Seconds()),
			Profile:     string(st.Profile),
			WindowLen:   st.Window.Len(),
			Defrosting:  st.Defrost.Active,
			DoorOpen:    st.DoorOpen,
			TempMax:     cfg.TempMax,
			TempMin:     cfg.TempMin,
			Maintenance: cfg.Maintenance,
		}
		if st.Defrost.Active {
			s.DefrostFor = int64(now.Sub(st.Defrost.StartTS).Seconds())
			s.DefrostPeak = st.Defrost.PeakTemp
			snap.Defrosting++
		}
		if st.DoorOpen {
			if !st.DoorOpenedSince.IsZero() {
				s.DoorOpenFor = int64(now.Sub(st.DoorOpenedSince).Seconds())
			}
			snap.DoorsOpen++
		}
		snap.Sensors = append(snap.Sensors, s)
	}
	sort.Slice(snap.Sensors, func(i, j int) bool { return snap.Sensors[i].MAC < snap.Sensors[j].MAC })

	for _, cfg := range e.configs {
		if cfg.Maintenance {
			snap.Maintenance++
		}
	}

	snap.Gateways = make([]GatewaySummary, 0, len(e.heartbeats))
	for gmac, hb := range e.heartbeats {
		snap.Gateways = append(snap.Gateways, GatewaySummary{
			MAC:        gmac,
			Source:     hb.Source,
			AgoSeconds: int64(now.Sub(hb.LastSeen).Seconds()),
			Online:     now.Sub(hb.LastSeen) < e.settings.GatewayOfflineAfter,
		})
	}
	sort.Slice(snap.Gateways, func(i, j int) bool { return snap.Gateways[i].MAC < snap.Gateways[j].MAC })

	return snap
}
