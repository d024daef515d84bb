package application

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/frigosense/coldwatch/internal/domain/thermal"
	"github.com/frigosense/coldwatch/internal/persistence"
)

// Priority orders alert severity as the downstream webhook understands it.
type Priority string

const (
	PriorityPreditiva Priority = "PREDITIVA"
	PriorityAlta      Priority = "ALTA"
	PriorityCritica   Priority = "CRITICA"
	PrioritySistema   Priority = "SISTEMA"
)

// Problem kinds key the dedup watchlist together with the sensor MAC.
const (
	problemTempHigh = "TEMP_ALTA"
	problemTempLow  = "TEMP_BAIXA"
	problemHumHigh  = "UMIDADE_ALTA"
	problemHumLow   = "UMIDADE_BAIXA"
	problemDoorOpen = "PORTA_ABERTA"
	problemPredict  = "PREDITIVA"
)

// Alert is one outbound alert record.
type Alert struct {
	SensorName string         `json:"sensor_name"`
	SensorMAC  string         `json:"sensor_mac"`
	Priority   Priority       `json:"priority"`
	Messages   []string       `json:"messages"`
	Timestamp  string         `json:"timestamp"`
	Context    map[string]any `json:"context,omitempty"`
}

// AlertSettings holds every tunable the alert engine consults.
type AlertSettings struct {
	Timezone *time.Location

	// Fallback limits used when the sensor config leaves a bound null.
	FallbackTempMax     float64
	HighTrafficTempMax  float64
	HighTrafficWeekdays map[time.Weekday]bool
	FallbackTempMin     float64

	ExtremeMargin         float64
	SoakTime              time.Duration
	PredictiveSoak        time.Duration
	CooldownHard          time.Duration
	CooldownPredictive    time.Duration
	ExtremePromotionAfter time.Duration

	// PredictiveHorizonMinutes is how far ahead the slope is projected.
	PredictiveHorizonMinutes float64
	// TimeToLimitMaxMinutes bounds how imminent a projected breach must be.
	TimeToLimitMaxMinutes float64

	DoorOpenMax time.Duration

	// GatewayOfflineAfter is the silence window before a GATEWAY OFFLINE
	// system alert; GatewayAlertDedup spaces repeats for the same gateway.
	GatewayOfflineAfter time.Duration
	GatewayAlertDedup   time.Duration
}

// DefaultAlertSettings returns the production tuning.
func DefaultAlertSettings() AlertSettings {
	tz, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		log.Warn().Err(err).Msg("Timezone load failed, falling back to UTC")
		tz = time.UTC
	}
	return AlertSettings{
		Timezone:            tz,
		FallbackTempMax:     -5.0,
		HighTrafficTempMax:  -2.0,
		HighTrafficWeekdays: map[time.Weekday]bool{time.Wednesday: true, time.Thursday: true},
		FallbackTempMin:     -30.0,

		ExtremeMargin:         10.0,
		SoakTime:              10 * time.Minute,
		PredictiveSoak:        5 * time.Minute,
		CooldownHard:          15 * time.Minute,
		CooldownPredictive:    45 * time.Minute,
		ExtremePromotionAfter: 30 * time.Minute,

		PredictiveHorizonMinutes: 15.0,
		TimeToLimitMaxMinutes:    20.0,

		DoorOpenMax: 5 * time.Minute,

		GatewayOfflineAfter: 15 * time.Minute,
		GatewayAlertDedup:   time.Hour,
	}
}

type watchEntry struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Message   string
}

// AlertEngine applies threshold checks, defrost suppression, soak and
// cooldown. The watchlist is shared with the pruning scheduler, hence the
// mutex; evaluation itself runs on the single ingestion path.
type AlertEngine struct {
	settings AlertSettings

	mu        sync.Mutex
	watchlist map[string]*watchEntry
}

// NewAlertEngine creates an engine with an empty watchlist.
func NewAlertEngine(settings AlertSettings) *AlertEngine {
	return &AlertEngine{
		settings:  settings,
		watchlist: make(map[string]*watchEntry),
	}
}

// detectedProblem is one candidate alert before soak and cooldown.
type detectedProblem struct {
	kind     string
	priority Priority
	message  string
	extreme  bool
	context  map[string]any
}

// LimitTempMax resolves the effective upper bound for a sensor at a moment in
// time. The weekday fallback runs in the configured zone.
func (e *AlertEngine) LimitTempMax(cfg persistence.SensorConfig, now time.Time) float64 {
	if cfg.TempMax != nil {
		return *cfg.TempMax
	}
	if e.settings.HighTrafficWeekdays[now.In(e.settings.Timezone).Weekday()] {
		return e.settings.HighTrafficTempMax
	}
	return e.settings.FallbackTempMax
}

// LimitTempMin resolves the effective lower bound.
func (e *AlertEngine) LimitTempMin(cfg persistence.SensorConfig) float64 {
	if cfg.TempMin != nil {
		return *cfg.TempMin
	}
	return e.settings.FallbackTempMin
}

// Evaluate runs the full alert decision for one accepted sample. A nil
// return means no alert leaves the engine this sample.
func (e *AlertEngine) Evaluate(st *SensorState, cfg persistence.SensorConfig, m thermal.Metrics, ready bool, now time.Time) *Alert {
	limitMax := e.LimitTempMax(cfg, now)
	limitMin := e.LimitTempMin(cfg)
	temp := st.LastTemp

	if st.Defrost.Active {
		tol := thermal.TuningFor(st.Profile).SuppressionTolerance
		if temp > limitMax+tol+5.0 || temp < limitMin-5.0 {
			p := e.extremeDefrostProblem(temp, limitMax, limitMin, tol)
			return e.emit(st, cfg, p, now)
		}
		e.clearSensor(st.MAC)
		return nil
	}

	p := e.detect(st, cfg, m, ready, now, limitMax, limitMin)
	if p == nil {
		e.clearSensor(st.MAC)
		return nil
	}
	return e.emit(st, cfg, p, now)
}

func (e *AlertEngine) extremeDefrostProblem(temp, limitMax, limitMin, tol float64) *detectedProblem {
	kind, msg := problemTempHigh, fmt.Sprintf("Temperatura %.1f°C extrema durante degelo (limite %.1f°C)", temp, limitMax)
	if temp < limitMin-5.0 {
		kind = problemTempLow
		msg = fmt.Sprintf("Temperatura %.1f°C extrema durante degelo (limite %.1f°C)", temp, limitMin)
	}
	return &detectedProblem{
		kind:     kind,
		priority: PriorityAlta,
		message:  msg,
		extreme:  true,
		context: map[string]any{
			"temperatura": temp,
			"limite_max":  limitMax,
			"limite_min":  limitMin,
			"em_degelo":   true,
			"tolerancia":  tol,
			"status":      "DEGELO",
		},
	}
}

func (e *AlertEngine) detect(st *SensorState, cfg persistence.SensorConfig, m thermal.Metrics, ready bool, now time.Time, limitMax, limitMin float64) *detectedProblem {
	temp := st.LastTemp

	baseCtx := func() map[string]any {
		ctx := map[string]any{
			"temperatura": temp,
			"umidade":     st.LastHum,
			"limite_max":  limitMax,
			"limite_min":  limitMin,
			"status":      operationalStatus(st),
		}
		if ready {
			ctx["slope"] = m.Slope
			ctx["r2"] = m.R2
			ctx["variancia"] = m.Variance
		}
		return ctx
	}

	// Hard limits first.
	if temp < limitMin {
		return &detectedProblem{
			kind:     problemTempLow,
			priority: PriorityAlta,
			message:  fmt.Sprintf("Temperatura %.1f°C abaixo do limite de %.1f°C", temp, limitMin),
			extreme:  limitMin-temp > e.settings.ExtremeMargin,
			context:  baseCtx(),
		}
	}
	if temp > limitMax {
		return &detectedProblem{
			kind:     problemTempHigh,
			priority: PriorityAlta,
			message:  fmt.Sprintf("Temperatura %.1f°C acima do limite de %.1f°C", temp, limitMax),
			extreme:  temp-limitMax > e.settings.ExtremeMargin,
			context:  baseCtx(),
		}
	}

	// Predictive, only on a clean non-defrost rise.
	if ready && m.Slope > 0.1 && m.R2 > 0.6 && (m.Cycle == nil || !m.Cycle.IsDefrostShape) {
		future := temp + m.Slope*e.settings.PredictiveHorizonMinutes
		diff := future - limitMax
		if diff >= 5.0 {
			toLimit := (limitMax - temp) / m.Slope
			if toLimit > 0 && toLimit < e.settings.TimeToLimitMaxMinutes {
				prio := PriorityPreditiva
				if diff >= 10.0 {
					prio = PriorityCritica
				}
				ctx := baseCtx()
				ctx["temperatura_projetada"] = future
				ctx["minutos_ate_limite"] = toLimit
				return &detectedProblem{
					kind:     problemPredict,
					priority: prio,
					message: fmt.Sprintf("Temperatura %.1f°C subindo %.2f°C/min, projeção %.1f°C em %.0f min",
						temp, m.Slope, future, e.settings.PredictiveHorizonMinutes),
					context: ctx,
				}
			}
		}
	}

	// Humidity only when temperature is clean.
	if cfg.HumMax != nil && st.LastHum > *cfg.HumMax {
		return &detectedProblem{
			kind:     problemHumHigh,
			priority: PriorityAlta,
			message:  fmt.Sprintf("Umidade %.1f%% acima do limite de %.1f%%", st.LastHum, *cfg.HumMax),
			context:  baseCtx(),
		}
	}
	if cfg.HumMin != nil && st.LastHum < *cfg.HumMin {
		return &detectedProblem{
			kind:     problemHumLow,
			priority: PriorityAlta,
			message:  fmt.Sprintf("Umidade %.1f%% abaixo do limite de %.1f%%", st.LastHum, *cfg.HumMin),
			context:  baseCtx(),
		}
	}

	// Door left open.
	if st.DoorOpen && !st.DoorOpenedSince.IsZero() {
		openFor := now.Sub(st.DoorOpenedSince)
		if openFor > e.settings.DoorOpenMax {
			ctx := baseCtx()
			ctx["porta_aberta_min"] = int(openFor.Minutes())
			return &detectedProblem{
				kind:     problemDoorOpen,
				priority: PriorityAlta,
				message:  fmt.Sprintf("PORTA ABERTA há %d min", int(openFor.Minutes())),
				context:  ctx,
			}
		}
	}

	return nil
}

// emit applies soak, extreme promotion and cooldown to a detected problem.
func (e *AlertEngine) emit(st *SensorState, cfg persistence.SensorConfig, p *detectedProblem, now time.Time) *Alert {
	key := st.MAC + "|" + p.kind

	e.mu.Lock()
	entry, ok := e.watchlist[key]
	if !ok {
		e.watchlist[key] = &watchEntry{FirstSeen: now, LastSeen: now, Message: p.message}
		e.mu.Unlock()
		return nil
	}
	entry.LastSeen = now
	entry.Message = p.message
	firstSeen := entry.FirstSeen
	e.mu.Unlock()

	soak := e.settings.SoakTime
	if p.priority == PriorityPreditiva {
		soak = e.settings.PredictiveSoak
	}
	onList := now.Sub(firstSeen)
	if onList < soak {
		return nil
	}

	priority := p.priority
	if p.extreme && onList >= e.settings.ExtremePromotionAfter {
		priority = PriorityCritica
	}

	if !st.LastAlertSent.IsZero() {
		cooldown := e.settings.CooldownHard
		if st.LastAlertPriority == PriorityPreditiva {
			cooldown = e.settings.CooldownPredictive
		}
		if now.Sub(st.LastAlertSent) < cooldown {
			return nil
		}
	}

	st.LastAlertSent = now
	st.LastAlertPriority = priority

	name := cfg.DisplayName
	if name == "" {
		name = st.MAC
	}
	return &Alert{
		SensorName: name,
		SensorMAC:  st.MAC,
		Priority:   priority,
		Messages:   []string{p.message},
		Timestamp:  now.In(e.settings.Timezone).Format(time.RFC3339),
		Context:    p.context,
	}
}

// ClearSensor removes every watchlist entry for a sensor. Used on
// normalisation and when a sensor enters maintenance.
func (e *AlertEngine) ClearSensor(mac string) {
	e.clearSensor(mac)
}

func (e *AlertEngine) clearSensor(mac string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prefix := mac + "|"
	for k := range e.watchlist {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(e.watchlist, k)
		}
	}
}

// PruneWatchlist drops entries not re-confirmed within twice the soak time.
// FirstSeen is kept for entries still being confirmed so extreme promotion
// keeps its reference point.
func (e *AlertEngine) PruneWatchlist(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	cutoff := now.Add(-2 * e.settings.SoakTime)
	removed := 0
	for k, entry := range e.watchlist {
		if entry.LastSeen.Before(cutoff) {
			delete(e.watchlist, k)
			removed++
		}
	}
	return removed
}

// WatchlistSize reports the number of entries currently soaking.
func (e *AlertEngine) WatchlistSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.watchlist)
}

func operationalStatus(st *SensorState) string {
	switch {
	case st.Defrost.Active:
		return "DEGELO"
	case st.DoorOpen:
		return "PORTA_ABERTA"
	default:
		return "NORMAL"
	}
}
