package thermal

// DoorVerdict is the door detector's decision for one sample.
type DoorVerdict int

const (
	DoorNoChange DoorVerdict = iota
	DoorOpenCandidate
	DoorCloseCandidate
	DoorForcedClose
)

// DoorInput carries the sensor context the detector needs besides metrics.
type DoorInput struct {
	Temp          float64
	TempMin       *float64
	TempMax       *float64
	IsDefrosting  bool
	Open          bool    // prior virtual state
	PriorVariance float64 // variance recorded at the last open commit
}

// DoorResult is a candidate transition plus its supporting evidence.
// Criteria is how many independent criteria matched; HighConfidence commits
// immediately, anything else needs temporal confirmation by the caller.
type DoorResult struct {
	Verdict        DoorVerdict
	Criteria       int
	HighConfidence bool
}

// EvaluateDoor decides whether the window looks like a door transition.
// Defrost owns the sample entirely: while a cycle is active the door is
// forced closed and nothing else is evaluated.
func EvaluateDoor(m Metrics, t Tuning, in DoorInput) DoorResult {
	if in.IsDefrosting {
		return DoorResult{Verdict: DoorForcedClose}
	}

	if withinBounds(in.Temp, in.TempMin, in.TempMax) &&
		abs(m.Slope) < 0.1 &&
		m.Variance < 0.5*t.DoorVarianceThreshold &&
		m.R2 > 0.7 {
		return DoorResult{Verdict: DoorForcedClose}
	}

	if !in.Open {
		// A defrost-shaped window never opens the door: right after a cycle
		// ends the hump still dominates the window, with enough jerk and
		// residual slope to look like a spill.
		if m.Cycle != nil && m.Cycle.IsDefrostShape {
			return DoorResult{Verdict: DoorNoChange}
		}
		n := openCriteria(m, t)
		if n == 0 {
			return DoorResult{Verdict: DoorNoChange}
		}
		return DoorResult{Verdict: DoorOpenCandidate, Criteria: n, HighConfidence: n >= 3}
	}

	n := closeCriteria(m, t, in.PriorVariance)
	if n == 0 {
		return DoorResult{Verdict: DoorNoChange}
	}
	return DoorResult{Verdict: DoorCloseCandidate, Criteria: n, HighConfidence: n >= 2}
}

func openCriteria(m Metrics, t Tuning) int {
	n := 0
	if m.Acceleration > t.DoorAccel {
		n++
	}
	if m.Slope > t.DoorSlope {
		n++
	}
	// Turbulent rise: hot air spilling in raises variance and breaks the
	// linear fit at the same time.
	if m.Variance > t.DoorVarianceThreshold && m.Slope > 0.5 && m.R2 < 0.6 {
		n++
	}
	if m.HasChange && abs(m.Segment.SlopeChange) > 1.0 && m.Variance > t.DoorVarianceThreshold {
		n++
	}
	if abs(m.Jerk) > t.DoorJerk && m.Slope > 0.3 {
		n++
	}
	return n
}

func closeCriteria(m Metrics, t Tuning, priorVariance float64) int {
	n := 0
	if m.Slope < -0.1 && m.R2 > 0.5 {
		n++
	}
	if m.Slope < 0.1 && m.Acceleration < -0.1 {
		n++
	}
	if priorVariance > 0 &&
		m.Variance < 0.7*priorVariance &&
		m.Variance < 0.8*t.DoorVarianceThreshold {
		n++
	}
	return n
}

func withinBounds(temp float64, min, max *float64) bool {
	if min != nil && temp < *min {
		return false
	}
	if max != nil && temp > *max {
		return false
	}
	return true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
