package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := New()

	c.Set("snapshot", []byte(`{"macs":1}`), 0)
	v, ok := c.Get("snapshot")
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"macs":1}`), v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	c := New()

	c.Set("short", []byte("x"), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	_, ok := c.Get("short")
	assert.False(t, ok)
}

func TestMemoryCache_CopiesValue(t *testing.T) {
	c := New()

	buf := []byte("original")
	c.Set("k", buf, 0)
	buf[0] = 'X'

	v, _ := c.Get("k")
	assert.Equal(t, []byte("original"), v)
}
