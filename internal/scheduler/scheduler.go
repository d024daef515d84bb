package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/frigosense/coldwatch/internal/application"
	"github.com/frigosense/coldwatch/internal/infrastructure/webhook"
	"github.com/frigosense/coldwatch/internal/persistence"
)

// Intervals holds the periods of every maintenance task.
type Intervals struct {
	TelemetryDrain  time.Duration
	DoorDrain       time.Duration
	WebhookDrain    time.Duration
	GatewayCheck    time.Duration
	ConfigRefresh   time.Duration
	HeartbeatReseed time.Duration
	StateGC         time.Duration
	WatchlistGC     time.Duration
}

// DefaultIntervals returns the production schedule.
func DefaultIntervals() Intervals {
	return Intervals{
		TelemetryDrain:  10 * time.Second,
		DoorDrain:       10 * time.Second,
		WebhookDrain:    5 * time.Minute,
		GatewayCheck:    time.Minute,
		ConfigRefresh:   10 * time.Minute,
		HeartbeatReseed: 30 * time.Minute,
		StateGC:         24 * time.Hour,
		WatchlistGC:     30 * time.Minute,
	}
}

// Scheduler runs the timer-driven tasks: queue drains, config refresh,
// heartbeat reseed, gateway-offline checks and garbage collection. Ingestion
// never waits on any of these.
type Scheduler struct {
	engine    *application.Engine
	store     persistence.Store
	sender    webhook.Sender
	clock     application.Clock
	intervals Intervals
}

// New wires a scheduler around the engine and its sinks.
func New(engine *application.Engine, store persistence.Store, sender webhook.Sender, clock application.Clock, intervals Intervals) *Scheduler {
	return &Scheduler{
		engine:    engine,
		store:     store,
		sender:    sender,
		clock:     clock,
		intervals: intervals,
	}
}

// Run starts every periodic task and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	jobs := []struct {
		name  string
		every time.Duration
		fn    func(context.Context)
	}{
		{"telemetry-drain", s.intervals.TelemetryDrain, s.drainTelemetry},
		{"door-drain", s.intervals.DoorDrain, s.drainDoors},
		{"webhook-drain", s.intervals.WebhookDrain, s.drainAlerts},
		{"gateway-check", s.intervals.GatewayCheck, func(context.Context) { s.engine.CheckGateways() }},
		{"config-refresh", s.intervals.ConfigRefresh, func(ctx context.Context) { _ = s.engine.RefreshConfigs(ctx) }},
		{"heartbeat-reseed", s.intervals.HeartbeatReseed, func(ctx context.Context) { _ = s.engine.ReseedHeartbeats(ctx) }},
		{"state-gc", s.intervals.StateGC, func(context.Context) { s.engine.GC() }},
		{"watchlist-gc", s.intervals.WatchlistGC, s.pruneWatchlist},
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(name string, every time.Duration, fn func(context.Context)) {
			defer wg.Done()
			s.loop(ctx, every, fn)
		}(job.name, job.every, job.fn)
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, every time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (s *Scheduler) drainTelemetry(ctx context.Context) {
	batch := s.engine.TelemetryQ.DrainAll()
	if len(batch) == 0 {
		return
	}
	if err := s.store.Telemetry.InsertBatch(ctx, batch); err != nil {
		log.Error().Err(err).Int("rows", len(batch)).Msg("Telemetry flush failed")
		metricSinkFailures.WithLabelValues("telemetry").Inc()
		s.engine.TelemetryQ.Requeue(batch)
		return
	}
	s.engine.TelemetryQ.Delivered()
	log.Debug().Int("rows", len(batch)).Msg("Telemetry flushed")
}

func (s *Scheduler) drainDoors(ctx context.Context) {
	batch := s.engine.DoorQ.DrainAll()
	if len(batch) == 0 {
		return
	}
	if err := s.store.Doors.InsertBatch(ctx, batch); err != nil {
		log.Error().Err(err).Int("events", len(batch)).Msg("Door log flush failed")
		metricSinkFailures.WithLabelValues("door").Inc()
		s.engine.DoorQ.Requeue(batch)
		return
	}
	s.engine.DoorQ.Delivered()
	log.Debug().Int("events", len(batch)).Msg("Door events flushed")
}

func (s *Scheduler) drainAlerts(ctx context.Context) {
	batch := s.engine.AlertQ.DrainAll()
	if len(batch) == 0 {
		return
	}
	items := make([]any, len(batch))
	for i, a := range batch {
		items[i] = a
	}
	ts := s.clock.Now().Format(time.RFC3339)
	if err := s.sender.SendBatch(ctx, ts, items); err != nil {
		log.Error().Err(err).Int("alerts", len(batch)).Msg("Alert dispatch failed, re-queueing")
		metricSinkFailures.WithLabelValues("webhook").Inc()
		s.engine.AlertQ.Requeue(batch)
		return
	}
	s.engine.AlertQ.Delivered()
}

func (s *Scheduler) pruneWatchlist(context.Context) {
	if removed := s.engine.Alerts().PruneWatchlist(s.clock.Now()); removed > 0 {
		log.Debug().Int("removed", removed).Msg("Watchlist pruned")
	}
}

// Bootstrap runs the one-time startup loads: config cache, door states and
// gateway heartbeats. Only a missing config source is fatal.
func (s *Scheduler) Bootstrap(ctx context.Context) error {
	if err := s.engine.BootstrapConfigs(ctx); err != nil {
		return err
	}
	_ = s.engine.BootstrapDoorStates(ctx)
	_ = s.engine.ReseedHeartbeats(ctx)
	return nil
}

// Shutdown flushes the telemetry queue one last time. Alert and door queues
// are abandoned.
func (s *Scheduler) Shutdown(ctx context.Context) {
	s.drainTelemetry(ctx)
	log.Info().Msg("Final telemetry flush complete")
}
