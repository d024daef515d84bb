package application

import (
	"time"

	"github.com/frigosense/coldwatch/internal/domain/thermal"
	"github.com/frigosense/coldwatch/internal/domain/window"
)

const (
	// Door transitions below HIGH confidence need a second consistent
	// detection inside these windows before they commit.
	doorOpenQuorumWindow  = 30 * time.Second
	doorCloseQuorumWindow = 60 * time.Second

	stateTTL     = 24 * time.Hour
	heartbeatTTL = 48 * time.Hour
)

// SensorState is the per-sensor record mutated only by the ingestion path.
type SensorState struct {
	MAC        string
	GatewayMAC string
	Profile    thermal.Profile

	LastTemp    float64
	LastHum     float64
	LastRSSI    int
	LastBattery int
	LastSeen    time.Time

	// Last persisted reading, drives the deadband.
	LastDBTemp float64
	LastDBHum  float64
	LastDBTS   time.Time
	HasDBRow   bool

	Window  *window.Window
	Defrost thermal.DefrostState

	DoorOpen        bool
	DoorOpenedSince time.Time
	LastVariance    float64
	LastAnalysisTS  time.Time

	LastAlertSent     time.Time
	LastAlertPriority Priority

	pendingVerdict thermal.DoorVerdict
	pendingSince   time.Time
}

// NewSensorState creates the record on the first accepted reading.
func NewSensorState(mac, gatewayMAC string, profile thermal.Profile) *SensorState {
	return &SensorState{
		MAC:            mac,
		GatewayMAC:     gatewayMAC,
		Profile:        profile,
		Window:         window.New(),
		pendingVerdict: thermal.DoorNoChange,
	}
}

// commitDoor applies a door detector result with temporal quorum. HIGH
// confidence commits immediately; weaker signals need a second consistent
// detection within the quorum window. Returns whether the state flipped.
func (s *SensorState) commitDoor(res thermal.DoorResult, now time.Time) bool {
	switch res.Verdict {
	case thermal.DoorForcedClose:
		s.clearPendingDoor()
		if s.DoorOpen {
			s.setDoor(false, now)
			return true
		}
		return false

	case thermal.DoorOpenCandidate:
		if s.DoorOpen {
			s.clearPendingDoor()
			return false
		}
		if res.HighConfidence || s.pendingHit(thermal.DoorOpenCandidate, now, doorOpenQuorumWindow) {
			s.clearPendingDoor()
			s.setDoor(true, now)
			return true
		}
		s.setPendingDoor(thermal.DoorOpenCandidate, now)
		return false

	case thermal.DoorCloseCandidate:
		if !s.DoorOpen {
			s.clearPendingDoor()
			return false
		}
		if res.HighConfidence || s.pendingHit(thermal.DoorCloseCandidate, now, doorCloseQuorumWindow) {
			s.clearPendingDoor()
			s.setDoor(false, now)
			return true
		}
		s.setPendingDoor(thermal.DoorCloseCandidate, now)
		return false
	}

	// No change: a stale pending candidate expires here.
	if s.pendingVerdict != thermal.DoorNoChange && now.Sub(s.pendingSince) > doorCloseQuorumWindow {
		s.clearPendingDoor()
	}
	return false
}

func (s *SensorState) pendingHit(v thermal.DoorVerdict, now time.Time, win time.Duration) bool {
	return s.pendingVerdict == v && now.Sub(s.pendingSince) <= win
}

// setPendingDoor arms or re-arms the quorum candidate. A re-detection that
// missed its window restarts the clock; pinning pendingSince to the first
// detection would keep a flickering door from ever committing.
func (s *SensorState) setPendingDoor(v thermal.DoorVerdict, now time.Time) {
	s.pendingVerdict = v
	s.pendingSince = now
}

func (s *SensorState) clearPendingDoor() {
	s.pendingVerdict = thermal.DoorNoChange
	s.pendingSince = time.Time{}
}

func (s *SensorState) setDoor(open bool, now time.Time) {
	s.DoorOpen = open
	s.LastAnalysisTS = now
	if open {
		s.DoorOpenedSince = now
	} else {
		s.DoorOpenedSince = time.Time{}
	}
}

// Heartbeat records when a gateway was last observed and where the
// observation came from.
type Heartbeat struct {
	LastSeen time.Time
	Source   string // LIVE or DB
}
