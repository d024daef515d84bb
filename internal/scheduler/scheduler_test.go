package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frigosense/coldwatch/internal/application"
	"github.com/frigosense/coldwatch/internal/persistence"
)

type recordingConfigRepo struct{}

func (recordingConfigRepo) ListSensorConfigs(ctx context.Context) ([]persistence.SensorConfig, error) {
	return nil, nil
}

type recordingTelemetryRepo struct {
	mu      sync.Mutex
	batches [][]persistence.TelemetryRow
	fail    bool
}

func (r *recordingTelemetryRepo) InsertBatch(ctx context.Context, rows []persistence.TelemetryRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return fmt.Errorf("store down")
	}
	r.batches = append(r.batches, rows)
	return nil
}

func (r *recordingTelemetryRepo) ActiveGateways(ctx context.Context, since time.Time) (map[string]time.Time, error) {
	return nil, nil
}

type recordingDoorRepo struct {
	batches [][]persistence.DoorEvent
}

func (r *recordingDoorRepo) InsertBatch(ctx context.Context, events []persistence.DoorEvent) error {
	r.batches = append(r.batches, events)
	return nil
}

func (r *recordingDoorRepo) LastStates(ctx context.Context) (map[string]bool, error) {
	return nil, nil
}

type recordingSender struct {
	sent [][]any
	fail bool
}

func (r *recordingSender) SendBatch(ctx context.Context, timestamp string, alerts []any) error {
	if r.fail {
		return fmt.Errorf("webhook down")
	}
	r.sent = append(r.sent, alerts)
	return nil
}

func newTestScheduler(telemetry *recordingTelemetryRepo, doors *recordingDoorRepo, sender *recordingSender) (*Scheduler, *application.Engine) {
	clock := application.NewFakeClock(time.Date(2025, 3, 7, 15, 0, 0, 0, time.UTC))
	store := persistence.Store{
		Configs:   recordingConfigRepo{},
		Telemetry: telemetry,
		Doors:     doors,
	}
	engine := application.NewEngine(clock, application.DefaultAlertSettings(), store, nil)
	return New(engine, store, sender, clock, DefaultIntervals()), engine
}

func TestDrainTelemetry(t *testing.T) {
	telemetry := &recordingTelemetryRepo{}
	sched, engine := newTestScheduler(telemetry, &recordingDoorRepo{}, &recordingSender{})

	engine.TelemetryQ.Push(persistence.TelemetryRow{MAC: "AC:23:3F:01:02:03", Temp: -18.0})
	sched.drainTelemetry(context.Background())

	require.Len(t, telemetry.batches, 1)
	assert.Equal(t, 0, engine.TelemetryQ.Len())
}

func TestDrainTelemetry_FailureRequeues(t *testing.T) {
	telemetry := &recordingTelemetryRepo{fail: true}
	sched, engine := newTestScheduler(telemetry, &recordingDoorRepo{}, &recordingSender{})

	engine.TelemetryQ.Push(persistence.TelemetryRow{MAC: "AC:23:3F:01:02:03"})
	sched.drainTelemetry(context.Background())
	assert.Equal(t, 1, engine.TelemetryQ.Len(), "failed batch returns to the queue")

	telemetry.fail = false
	sched.drainTelemetry(context.Background())
	require.Len(t, telemetry.batches, 1)
	assert.Equal(t, 0, engine.TelemetryQ.Len())
}

func TestDrainDoors(t *testing.T) {
	doors := &recordingDoorRepo{}
	sched, engine := newTestScheduler(&recordingTelemetryRepo{}, doors, &recordingSender{})

	engine.DoorQ.Push(persistence.DoorEvent{SensorMAC: "AC:23:3F:01:02:03", IsOpen: true})
	sched.drainDoors(context.Background())

	require.Len(t, doors.batches, 1)
	assert.True(t, doors.batches[0][0].IsOpen)
}

func TestDrainAlerts(t *testing.T) {
	sender := &recordingSender{}
	sched, engine := newTestScheduler(&recordingTelemetryRepo{}, &recordingDoorRepo{}, sender)

	engine.AlertQ.Push(application.Alert{SensorMAC: "AC:23:3F:01:02:03", Priority: application.PriorityAlta})
	sched.drainAlerts(context.Background())

	require.Len(t, sender.sent, 1)
	require.Len(t, sender.sent[0], 1)
	assert.Equal(t, 0, engine.AlertQ.Len())
}

func TestDrainAlerts_FailureNeverDropsOnFirstTry(t *testing.T) {
	sender := &recordingSender{fail: true}
	sched, engine := newTestScheduler(&recordingTelemetryRepo{}, &recordingDoorRepo{}, sender)

	engine.AlertQ.Push(application.Alert{SensorMAC: "AC:23:3F:01:02:03"})
	sched.drainAlerts(context.Background())
	assert.Equal(t, 1, engine.AlertQ.Len())
}

func TestShutdownFlushesTelemetry(t *testing.T) {
	telemetry := &recordingTelemetryRepo{}
	sched, engine := newTestScheduler(telemetry, &recordingDoorRepo{}, &recordingSender{})

	engine.TelemetryQ.Push(persistence.TelemetryRow{MAC: "AC:23:3F:01:02:03"})
	sched.Shutdown(context.Background())

	require.Len(t, telemetry.batches, 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	telemetry := &recordingTelemetryRepo{}
	sched, engine := newTestScheduler(telemetry, &recordingDoorRepo{}, &recordingSender{})
	sched.intervals = Intervals{
		TelemetryDrain:  5 * time.Millisecond,
		DoorDrain:       time.Hour,
		WebhookDrain:    time.Hour,
		GatewayCheck:    time.Hour,
		ConfigRefresh:   time.Hour,
		HeartbeatReseed: time.Hour,
		StateGC:         time.Hour,
		WatchlistGC:     time.Hour,
	}
	engine.TelemetryQ.Push(persistence.TelemetryRow{MAC: "AC:23:3F:01:02:03"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		telemetry.mu.Lock()
		defer telemetry.mu.Unlock()
		return len(telemetry.batches) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
