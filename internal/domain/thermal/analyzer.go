package thermal

import (
	"math"

	"github.com/frigosense/coldwatch/internal/domain/window"
)

// minReadySamples gates the analyzer: below this the regression is noise.
const minReadySamples = 10

// CyclePhase tags where in a defrost-shaped cycle the window currently sits.
type CyclePhase string

const (
	PhaseRising  CyclePhase = "RISING"
	PhaseFalling CyclePhase = "FALLING"
	PhasePeak    CyclePhase = "PEAK"
	PhaseUnknown CyclePhase = "UNKNOWN"
)

// Cycle describes the rise/fall shape of the window around its hottest point.
type Cycle struct {
	Phase        CyclePhase
	PeakIndex    int
	TroughIndex  int
	RisingSlope  float64 // regression start → peak, °C/min
	FallingSlope float64 // regression peak → end, °C/min
	// IsDefrostShape is the full defrost tag: peak past 30% of the window,
	// before the last three points, rising limb above the profile minimum and
	// falling limb below -0.1.
	IsDefrostShape bool
}

// Segment holds the regression slopes either side of the change point.
type Segment struct {
	LeftSlope   float64
	RightSlope  float64
	SlopeChange float64
}

// Metrics is the analyzer output for one window snapshot.
type Metrics struct {
	Slope     float64 // °C per minute
	Intercept float64
	R2        float64
	StdError  float64
	Variance  float64
	StdDev    float64
	// Acceleration is slope(last 30%) minus slope(first 70%).
	Acceleration float64
	// Jerk is the change in acceleration across window thirds.
	Jerk float64
	EMA  float64

	Cycle *Cycle

	// ChangePoint is the index splitting the window into the two most
	// internally-consistent segments, when one exists.
	ChangePoint int
	HasChange   bool
	Segment     Segment
}

// Analyze computes the full metric record over a window. ready is false when
// the window holds fewer than 10 samples.
func Analyze(samples []window.Sample, tuning Tuning) (Metrics, bool) {
	n := len(samples)
	if n < minReadySamples {
		return Metrics{}, false
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	t0 := samples[0].TS
	for i, s := range samples {
		xs[i] = s.TS.Sub(t0).Minutes()
		ys[i] = s.Temp
	}

	var m Metrics
	m.Slope, m.Intercept, m.R2 = regress(xs, ys)
	m.StdError = stdError(xs, ys, m.Slope, m.Intercept)
	m.Variance, m.StdDev = variance(ys)
	m.Acceleration = acceleration(xs, ys)
	m.Jerk = jerk(xs, ys)
	m.EMA = ema(ys, tuning.EMAAlpha)
	m.Cycle = cycle(xs, ys, tuning)
	m.ChangePoint, m.HasChange = changePoint(ys)
	if m.HasChange {
		m.Segment = segment(xs, ys, m.ChangePoint)
	}
	return m, true
}

// regress is ordinary least squares of y against x, returning slope,
// intercept and the squared sample correlation.
func regress(xs, ys []float64) (slope, intercept, r2 float64) {
	n := float64(len(xs))
	if len(xs) < 2 {
		return 0, 0, 0
	}
	var sx, sy float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
	}
	mx, my := sx/n, sy/n

	var sxy, sxx, syy float64
	for i := range xs {
		dx := xs[i] - mx
		dy := ys[i] - my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 {
		return 0, my, 0
	}
	slope = sxy / sxx
	intercept = my - slope*mx
	if syy == 0 {
		return slope, intercept, 0
	}
	r2 = (sxy * sxy) / (sxx * syy)
	return slope, intercept, r2
}

func stdError(xs, ys []float64, slope, intercept float64) float64 {
	var sum float64
	for i := range xs {
		r := ys[i] - (slope*xs[i] + intercept)
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(xs)))
}

func variance(ys []float64) (v, sd float64) {
	n := float64(len(ys))
	var sum float64
	for _, y := range ys {
		sum += y
	}
	mean := sum / n
	var ss float64
	for _, y := range ys {
		d := y - mean
		ss += d * d
	}
	v = ss / n
	return v, math.Sqrt(v)
}

// acceleration compares the trend of the recent 30% of the window against the
// first 70%. Zero when either subset is too small to regress.
func acceleration(xs, ys []float64) float64 {
	n := len(xs)
	split := int(float64(n) * 0.7)
	if split < 2 || n-split < 2 {
		return 0
	}
	early, _, _ := regress(xs[:split], ys[:split])
	late, _, _ := regress(xs[split:], ys[split:])
	return late - early
}

// jerk is the second difference of the slopes over window thirds. Zero when
// the window has fewer than 9 points.
func jerk(xs, ys []float64) float64 {
	n := len(xs)
	if n < 9 {
		return 0
	}
	a, b := n/3, 2*n/3
	s1, _, _ := regress(xs[:a], ys[:a])
	s2, _, _ := regress(xs[a:b], ys[a:b])
	s3, _, _ := regress(xs[b:], ys[b:])
	return (s3 - s2) - (s2 - s1)
}

func ema(ys []float64, alpha float64) float64 {
	e := ys[0]
	for _, y := range ys[1:] {
		e = alpha*y + (1-alpha)*e
	}
	return e
}

// cycle locates the window extremes and classifies the rise/fall shape.
func cycle(xs, ys []float64, tuning Tuning) *Cycle {
	n := len(ys)
	peak, trough := 0, 0
	for i := 1; i < n; i++ {
		if ys[i] > ys[peak] {
			peak = i
		}
		if ys[i] < ys[trough] {
			trough = i
		}
	}

	c := &Cycle{Phase: PhaseUnknown, PeakIndex: peak, TroughIndex: trough}
	var risingR2 float64
	if peak >= 2 {
		c.RisingSlope, _, risingR2 = regress(xs[:peak+1], ys[:peak+1])
	}
	if n-peak >= 3 {
		c.FallingSlope, _, _ = regress(xs[peak:], ys[peak:])
	}

	// A rising limb only counts when it is actually linear; a turbulent door
	// spill also climbs into a peak but never fits a line.
	hasRising := peak >= 2 && c.RisingSlope > tuning.CycleMinRisingSlope && risingR2 >= 0.75
	hasFalling := n-peak >= 3 && c.FallingSlope < -0.1

	switch {
	case peak >= n-3 && hasRising:
		// Still climbing into the peak.
		c.Phase = PhaseRising
	case hasRising && hasFalling:
		if peak >= int(float64(n)*0.7) {
			c.Phase = PhasePeak
		} else {
			c.Phase = PhaseFalling
		}
	case hasFalling:
		c.Phase = PhaseFalling
	case hasRising:
		c.Phase = PhaseRising
	}

	c.IsDefrostShape = peak > int(float64(n)*0.3) && peak < n-3 && hasRising && hasFalling
	return c
}

// changePoint finds the index in [3, n-3] minimising the summed variance of
// the two sides. Reported only when the split beats the whole-window variance.
func changePoint(ys []float64) (int, bool) {
	n := len(ys)
	if n < 7 {
		return 0, false
	}
	whole, _ := variance(ys)
	best, bestScore := 0, math.Inf(1)
	for i := 3; i <= n-3; i++ {
		lv, _ := variance(ys[:i])
		rv, _ := variance(ys[i:])
		if s := lv + rv; s < bestScore {
			bestScore = s
			best = i
		}
	}
	if bestScore >= whole {
		return 0, false
	}
	return best, true
}

func segment(xs, ys []float64, cp int) Segment {
	var s Segment
	if cp >= 2 {
		s.LeftSlope, _, _ = regress(xs[:cp], ys[:cp])
	}
	if len(xs)-cp >= 2 {
		s.RightSlope, _, _ = regress(xs[cp:], ys[cp:])
	}
	s.SlopeChange = s.RightSlope - s.LeftSlope
	return s
}
