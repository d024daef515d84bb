package thermal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldStartDefrost_RampOnset(t *testing.T) {
	m, ready := Analyze(steadyThen(10, -18.0, ramp(-18.0, 0.3, 12)...), normalTuning)
	require.True(t, ready)

	assert.True(t, ShouldStartDefrost(m, normalTuning, ProfileNormal))
}

func TestShouldStartDefrost_PureLinearRise(t *testing.T) {
	m, ready := Analyze(series(ramp(-18.3, 0.1, 15)...), normalTuning)
	require.True(t, ready)

	// 0.6 °C/min, R² ≈ 1, no variance to speak of: stable linear rise.
	assert.True(t, ShouldStartDefrost(m, normalTuning, ProfileNormal))
}

func TestShouldStartDefrost_RejectsTurbulentSpike(t *testing.T) {
	m, ready := Analyze(steadyThen(10, -18.0, -17.0, -15.5, -13.0, -11.0), normalTuning)
	require.True(t, ready)

	assert.False(t, ShouldStartDefrost(m, normalTuning, ProfileNormal))
	assert.False(t, ShouldStartDefrost(m, ultraTuning, ProfileUltra))
}

func TestShouldStartDefrost_UltraShortcut(t *testing.T) {
	// A clean 0.6 °C/min rise: fast enough for the ULTRA shortcut.
	m, ready := Analyze(series(ramp(-25.1, 0.1, 20)...), ultraTuning)
	require.True(t, ready)

	assert.True(t, ShouldStartDefrost(m, ultraTuning, ProfileUltra))
}

func TestShouldEndDefrost_Guards(t *testing.T) {
	temps := append(ramp(-18.0, 0.3, 20), ramp(-12.0, -0.4, 15)...)
	m, ready := Analyze(steadyThen(10, -18.0, temps...), normalTuning)
	require.True(t, ready)

	now := testBase.Add(10 * time.Minute)
	st := DefrostState{Active: true, StartTS: now.Add(-5 * time.Minute), StartTemp: -18.0}

	assert.False(t, ShouldEndDefrost(m, normalTuning, DefrostState{}, -18.0, now),
		"inactive cycle never ends")
	assert.False(t, ShouldEndDefrost(m, normalTuning,
		DefrostState{Active: true, JustStarted: true, StartTS: st.StartTS}, -18.0, now),
		"just-started guard holds for one sample")
	assert.False(t, ShouldEndDefrost(m, normalTuning,
		DefrostState{Active: true, StartTS: now.Add(-time.Minute)}, -18.0, now),
		"cycles shorter than two minutes never end")

	assert.True(t, ShouldEndDefrost(m, normalTuning, st, -18.0, now),
		"falling phase past the peak ends the cycle")
}

func TestShouldEndDefrost_SafetyTimeout(t *testing.T) {
	// Still rising: no end criterion matches except the timeout.
	m, ready := Analyze(steadyThen(10, -18.0, ramp(-18.0, 0.3, 12)...), normalTuning)
	require.True(t, ready)

	now := testBase.Add(2 * time.Hour)
	st := DefrostState{Active: true, StartTS: now.Add(-61 * time.Minute), StartTemp: -18.0}
	assert.True(t, ShouldEndDefrost(m, normalTuning, st, -14.4, now))

	st.StartTS = now.Add(-30 * time.Minute)
	assert.False(t, ShouldEndDefrost(m, normalTuning, st, -14.4, now))
}

func TestShouldEndDefrost_ReturnedToStartTemp(t *testing.T) {
	// Long past the peak: gentle fall back near the start temperature.
	temps := append(ramp(-18.0, 0.3, 20), ramp(-12.0, -0.4, 14)...)
	m, ready := Analyze(steadyThen(10, -18.0, temps...), normalTuning)
	require.True(t, ready)
	require.NotEqual(t, PhaseRising, m.Cycle.Phase)

	now := testBase.Add(20 * time.Minute)
	st := DefrostState{Active: true, StartTS: now.Add(-6 * time.Minute), StartTemp: -18.0, PeakTemp: -12.0}
	assert.True(t, ShouldEndDefrost(m, normalTuning, st, -17.6, now))
}
