package thermal

// Profile selects a tuning-constant bundle per sensor. A sensor whose
// configured minimum temperature is below -15 °C runs an ULTRA (low-temp)
// cabinet; denser air makes both defrost ramps and door spills steeper, so
// every ULTRA threshold sits higher.
type Profile string

const (
	ProfileNormal Profile = "NORMAL"
	ProfileUltra  Profile = "ULTRA"
)

// Tuning holds the numeric thresholds the detectors evaluate against.
// Slopes are °C per minute, accelerations are slope deltas across window
// segments, variances are °C².
type Tuning struct {
	EMAAlpha float64

	DoorAccel             float64
	DoorSlope             float64
	DoorVarianceThreshold float64
	DoorJerk              float64

	DefrostMinSlope          float64
	DefrostVarianceThreshold float64
	DefrostMinR2             float64

	// CycleMinRisingSlope is the minimum rising-limb slope for a window to
	// qualify as a defrost-shaped cycle.
	CycleMinRisingSlope float64

	// DefrostEndDelta is how close to the start temperature the cabinet must
	// return before end criterion 4 considers the cycle over.
	DefrostEndDelta float64

	// SuppressionTolerance widens the alert limits while a defrost cycle is
	// active; only readings beyond limit+tolerance+5 escape suppression.
	SuppressionTolerance float64
}

var normalTuning = Tuning{
	EMAAlpha:                 0.3,
	DoorAccel:                3.0,
	DoorSlope:                2.0,
	DoorVarianceThreshold:    3.0,
	DoorJerk:                 0.5,
	DefrostMinSlope:          0.15,
	DefrostVarianceThreshold: 1.0,
	DefrostMinR2:             0.80,
	CycleMinRisingSlope:      0.15,
	DefrostEndDelta:          2.0,
	SuppressionTolerance:     15.0,
}

var ultraTuning = Tuning{
	EMAAlpha:                 0.2,
	DoorAccel:                4.5,
	DoorSlope:                3.0,
	DoorVarianceThreshold:    5.0,
	DoorJerk:                 0.8,
	DefrostMinSlope:          0.20,
	DefrostVarianceThreshold: 1.5,
	DefrostMinR2:             0.85,
	CycleMinRisingSlope:      0.25,
	DefrostEndDelta:          3.0,
	SuppressionTolerance:     25.0,
}

// ProfileFor derives the profile from the configured minimum temperature.
// A nil minimum means the sensor was never bounded below, which only happens
// on chilled (non-frozen) cabinets.
func ProfileFor(tempMin *float64) Profile {
	if tempMin != nil && *tempMin < -15.0 {
		return ProfileUltra
	}
	return ProfileNormal
}

// TuningFor returns the constant bundle for a profile.
func TuningFor(p Profile) Tuning {
	if p == ProfileUltra {
		return ultraTuning
	}
	return normalTuning
}
