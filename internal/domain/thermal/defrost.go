package thermal

import "time"

const (
	// defrostMinCycle is the minimum runtime before end criteria apply.
	defrostMinCycle = 2 * time.Minute
	// defrostMaxCycle force-ends a cycle that never showed a falling limb.
	defrostMaxCycle = 60 * time.Minute
	// defrostReturnMinCycle gates the returned-to-start end criterion.
	defrostReturnMinCycle = 5 * time.Minute
)

// DefrostState is the per-sensor defrost bookkeeping the detector reads.
type DefrostState struct {
	Active      bool
	JustStarted bool
	StartTS     time.Time
	StartTemp   float64
	PeakTemp    float64
}

// ShouldStartDefrost reports whether the window shows the beginning of a
// deliberate defrost cycle. Callers only invoke it while no cycle is active.
func ShouldStartDefrost(m Metrics, t Tuning, profile Profile) bool {
	// Stable linear rise: warming with a tight fit and calm variance.
	if m.Slope > t.DefrostMinSlope &&
		m.StdError < t.DefrostVarianceThreshold &&
		m.R2 > t.DefrostMinR2 &&
		m.Variance < t.DefrostVarianceThreshold {
		return true
	}

	// Whole-cycle shape: the window already carries a clean rising limb.
	if m.Cycle != nil && m.Cycle.Phase == PhaseRising && m.Cycle.RisingSlope > t.DefrostMinSlope {
		return true
	}

	// ULTRA cabinets defrost steeply; a very tight fast rise is enough.
	if profile == ProfileUltra && m.Slope > 0.3 && m.R2 > 0.88 && m.StdError < 0.6 {
		return true
	}

	// Ramp onset: a change point where the recent segment turned upward while
	// the overall fit stayed linear enough.
	if m.HasChange && m.Segment.SlopeChange > 0.5 && m.Slope > t.DefrostMinSlope && m.R2 > 0.75 {
		return true
	}

	return false
}

// ShouldEndDefrost reports whether an active cycle is over. now is the sample
// wall-clock time.
func ShouldEndDefrost(m Metrics, t Tuning, st DefrostState, currentTemp float64, now time.Time) bool {
	if !st.Active || st.JustStarted {
		return false
	}
	elapsed := now.Sub(st.StartTS)
	if elapsed < defrostMinCycle {
		return false
	}

	if m.Slope < -0.3 && m.R2 > 0.7 {
		return true
	}

	// The phase != RISING clause is redundant with phase == FALLING but is
	// kept: it guarded a mis-tagged cycle in an earlier analyzer revision.
	if m.Cycle != nil && m.Cycle.Phase == PhaseFalling &&
		m.Cycle.FallingSlope < -0.15 && m.Cycle.Phase != PhaseRising {
		return true
	}

	if elapsed > defrostMaxCycle {
		return true
	}

	if currentTemp <= st.StartTemp+t.DefrostEndDelta &&
		elapsed >= defrostReturnMinCycle &&
		m.Slope < -0.1 &&
		(m.Cycle == nil || m.Cycle.Phase != PhaseRising) {
		return true
	}

	if m.HasChange && m.Segment.SlopeChange < -0.3 && m.Slope < -0.15 && m.R2 > 0.6 {
		return true
	}

	return false
}
