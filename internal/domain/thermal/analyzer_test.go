package thermal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frigosense/coldwatch/internal/domain/window"
)

var testBase = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// series builds samples spaced 10 s apart.
func series(temps ...float64) []window.Sample {
	out := make([]window.Sample, len(temps))
	for i, t := range temps {
		out[i] = window.Sample{TS: testBase.Add(time.Duration(i*10) * time.Second), Temp: t}
	}
	return out
}

// steadyThen prefixes n steady samples at temp before the tail.
func steadyThen(n int, temp float64, tail ...float64) []window.Sample {
	temps := make([]float64, 0, n+len(tail))
	for i := 0; i < n; i++ {
		temps = append(temps, temp)
	}
	temps = append(temps, tail...)
	return series(temps...)
}

// ramp appends count samples climbing by step from start (exclusive).
func ramp(start, step float64, count int) []float64 {
	out := make([]float64, count)
	for i := range out {
		out[i] = start + step*float64(i+1)
	}
	return out
}

func TestAnalyze_NotReadyBelowTenSamples(t *testing.T) {
	_, ready := Analyze(series(-18, -18, -18, -18, -18, -18, -18, -18, -18), normalTuning)
	assert.False(t, ready)
}

func TestAnalyze_LinearRise(t *testing.T) {
	// +0.3 °C per 10 s sample is 1.8 °C/min.
	m, ready := Analyze(series(ramp(-18.3, 0.3, 12)...), normalTuning)
	require.True(t, ready)

	assert.InDelta(t, 1.8, m.Slope, 0.01)
	assert.InDelta(t, 1.0, m.R2, 0.001)
	assert.InDelta(t, 0.0, m.StdError, 0.01)
	// A pure line has identical segment slopes.
	assert.InDelta(t, 0.0, m.Acceleration, 0.05)
}

func TestAnalyze_SteadyWindow(t *testing.T) {
	m, ready := Analyze(steadyThen(20, -18.0), normalTuning)
	require.True(t, ready)

	assert.InDelta(t, 0.0, m.Slope, 0.001)
	assert.InDelta(t, 0.0, m.Variance, 0.001)
	assert.InDelta(t, -18.0, m.EMA, 0.001)
	assert.False(t, m.HasChange)
}

func TestAnalyze_RampOnsetHasChangePoint(t *testing.T) {
	m, ready := Analyze(steadyThen(10, -18.0, ramp(-18.0, 0.3, 12)...), normalTuning)
	require.True(t, ready)

	require.True(t, m.HasChange)
	assert.Greater(t, m.Segment.SlopeChange, 0.5)
	assert.Greater(t, m.R2, 0.75)
	assert.Less(t, m.Variance, 3.0)

	require.NotNil(t, m.Cycle)
	assert.Equal(t, PhaseRising, m.Cycle.Phase)
}

func TestAnalyze_TurbulentSpikeIsNotLinear(t *testing.T) {
	m, ready := Analyze(steadyThen(10, -18.0, -17.0, -15.5, -13.0, -11.0), normalTuning)
	require.True(t, ready)

	assert.Greater(t, m.Slope, 2.0)
	assert.Less(t, m.R2, 0.75)
	assert.Greater(t, m.Variance, 3.0)
	assert.Greater(t, m.Acceleration, 3.0)

	// The climb is not linear, so it must not tag as a rising defrost limb.
	require.NotNil(t, m.Cycle)
	assert.NotEqual(t, PhaseRising, m.Cycle.Phase)
}

func TestAnalyze_FullCycleShape(t *testing.T) {
	temps := append(ramp(-18.0, 0.3, 20), ramp(-12.0, -0.4, 15)...)
	m, ready := Analyze(steadyThen(10, -18.0, temps...), normalTuning)
	require.True(t, ready)

	require.NotNil(t, m.Cycle)
	assert.Equal(t, PhaseFalling, m.Cycle.Phase)
	assert.True(t, m.Cycle.IsDefrostShape)
	assert.Greater(t, m.Cycle.RisingSlope, normalTuning.CycleMinRisingSlope)
	assert.Less(t, m.Cycle.FallingSlope, -0.15)
}

func TestProfileFor(t *testing.T) {
	ultra := -25.0
	chilled := -10.0
	assert.Equal(t, ProfileUltra, ProfileFor(&ultra))
	assert.Equal(t, ProfileNormal, ProfileFor(&chilled))
	assert.Equal(t, ProfileNormal, ProfileFor(nil))
}
