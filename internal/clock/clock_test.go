package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTickAdvances(t *testing.T) {
	c := New()
	assert.Equal(t, uint32(0), c.Now())
	c.Tick()
	c.Tick()
	c.Tick()
	assert.Equal(t, uint32(3), c.Now())
}

func TestSinceWraps(t *testing.T) {
	c := &Clock{ms: 5}
	assert.Equal(t, uint32(0), Since(c, 5))

	c2 := &Clock{ms: 2}
	// earlier occurred "before" the wrap, now sits just after it.
	assert.Equal(t, uint32(3), Since(c2, 0xFFFFFFFF-0))
}

func TestElapsed(t *testing.T) {
	assert.True(t, Elapsed(1000, 0, 1000))
	assert.False(t, Elapsed(999, 0, 1000))
	// wrap-around: now has wrapped past 0, mark was near the top.
	assert.True(t, Elapsed(5, 0xFFFFFFFE, 7))
}
