package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_RejectsSamplesCloserThanSpacing(t *testing.T) {
	w := New()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.True(t, w.Append(base, -18.0))
	assert.False(t, w.Append(base.Add(5*time.Second), -18.1))
	assert.Equal(t, 1, w.Len())

	assert.True(t, w.Append(base.Add(10*time.Second), -18.1))
	assert.Equal(t, 2, w.Len())
}

func TestWindow_PrunesBeyondHorizon(t *testing.T) {
	w := New()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// 30 minutes of samples at 60 s spacing; only the last 20 min survive.
	for i := 0; i <= 30; i++ {
		w.Append(base.Add(time.Duration(i)*time.Minute), -18.0)
	}

	newest, ok := w.Newest()
	require.True(t, ok)
	cutoff := newest.TS.Add(-Horizon)
	for _, s := range w.Samples() {
		assert.False(t, s.TS.Before(cutoff), "sample %v older than horizon", s.TS)
	}
	assert.Equal(t, 21, w.Len())
}

func TestWindow_NeverHoldsTwoSamplesWithinSpacing(t *testing.T) {
	w := New()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 500; i++ {
		w.Append(base.Add(time.Duration(i*3)*time.Second), float64(i))
	}
	samples := w.Samples()
	for i := 1; i < len(samples); i++ {
		assert.GreaterOrEqual(t, samples[i].TS.Sub(samples[i-1].TS), MinSampleSpacing)
	}
}
