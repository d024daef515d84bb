package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload_SingleObject(t *testing.T) {
	payload := []byte(`{"gmac":"AC233FA00001","obj":[{"dmac":"AC233F010203","type":1,"temp":-18.2,"humidity":55.0,"vbatt":3100,"rssi":-68}]}`)

	gws, err := decodePayload(payload)
	require.NoError(t, err)
	require.Len(t, gws, 1)
	assert.Equal(t, "AC233FA00001", gws[0].GMAC)
	require.Len(t, gws[0].Obj, 1)
	assert.Equal(t, -18.2, gws[0].Obj[0].Temp)
}

func TestDecodePayload_Array(t *testing.T) {
	payload := []byte(`[{"gmac":"AA","obj":[]},{"gmac":"BB","obj":[]}]`)

	gws, err := decodePayload(payload)
	require.NoError(t, err)
	require.Len(t, gws, 2)
	assert.Equal(t, "BB", gws[1].GMAC)
}

func TestDecodePayload_NestedArrayForm(t *testing.T) {
	payload := []byte(`[[{"gmac":"AC233FA00001","obj":[{"dmac":"AC233F010203","type":1,"temp":-18.0,"humidity":50,"vbatt":3000,"rssi":-70}]}]]`)

	gws, err := decodePayload(payload)
	require.NoError(t, err)
	require.Len(t, gws, 1)
	assert.Equal(t, "AC233FA00001", gws[0].GMAC)
}

func TestDecodePayload_Garbage(t *testing.T) {
	_, err := decodePayload([]byte(`not json`))
	assert.Error(t, err)

	_, err = decodePayload([]byte(``))
	assert.Error(t, err)
}

func TestCanonicalMAC(t *testing.T) {
	assert.Equal(t, "AC:23:3F:01:02:03", canonicalMAC("ac233f010203"))
	assert.Equal(t, "AC:23:3F:01:02:03", canonicalMAC("AC:23:3f:01:02:03"))

	// Idempotence.
	once := canonicalMAC("ac233f010203")
	assert.Equal(t, once, canonicalMAC(once))
}

func TestBatteryPercent(t *testing.T) {
	assert.Equal(t, 0, batteryPercent(2500))
	assert.Equal(t, 100, batteryPercent(3600))

	// Saturating at both ends.
	assert.Equal(t, 0, batteryPercent(1000))
	assert.Equal(t, 100, batteryPercent(5000))

	// Monotone in between.
	prev := -1
	for mv := 2400; mv <= 3700; mv += 50 {
		pct := batteryPercent(mv)
		assert.GreaterOrEqual(t, pct, prev)
		assert.GreaterOrEqual(t, pct, 0)
		assert.LessOrEqual(t, pct, 100)
		prev = pct
	}
}

func TestPersistTimestamp(t *testing.T) {
	assert.Equal(t, "2025-03-01T12:00:00.000", persistTimestamp("2025-03-01 12:00:00.000", "fallback"))
	assert.Equal(t, "fallback", persistTimestamp("", "fallback"))
}
