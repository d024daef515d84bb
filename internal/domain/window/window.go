package window

import (
	"time"
)

const (
	// MinSampleSpacing is the minimum gap between two retained samples.
	MinSampleSpacing = 10 * time.Second
	// Horizon is how far back the window keeps samples, relative to the newest.
	Horizon = 20 * time.Minute
)

// Sample is one timestamped temperature reading.
type Sample struct {
	TS   time.Time
	Temp float64
}

// Window is a bounded sliding buffer of temperature samples for one sensor.
// Samples closer than MinSampleSpacing to the previous one are rejected and
// everything older than Horizon behind the newest sample is pruned on append.
type Window struct {
	samples []Sample
}

// New returns an empty window.
func New() *Window {
	return &Window{samples: make([]Sample, 0, 128)}
}

// Append adds a sample, enforcing the spacing and horizon rules. It reports
// whether the sample was retained.
func (w *Window) Append(ts time.Time, temp float64) bool {
	if n := len(w.samples); n > 0 {
		if ts.Sub(w.samples[n-1].TS) < MinSampleSpacing {
			return false
		}
	}
	w.samples = append(w.samples, Sample{TS: ts, Temp: temp})

	cutoff := ts.Add(-Horizon)
	drop := 0
	for drop < len(w.samples) && w.samples[drop].TS.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		w.samples = append(w.samples[:0], w.samples[drop:]...)
	}
	return true
}

// Samples exposes the ordered underlying slice. Callers must not mutate it.
func (w *Window) Samples() []Sample {
	return w.samples
}

// Len returns the number of retained samples.
func (w *Window) Len() int {
	return len(w.samples)
}

// Newest returns the most recent sample, or a zero Sample when empty.
func (w *Window) Newest() (Sample, bool) {
	if len(w.samples) == 0 {
		return Sample{}, false
	}
	return w.samples[len(w.samples)-1], true
}
