package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConversions(t *testing.T) {
	// 1 GHz: one cycle per nanosecond
	assert.InDelta(t, 5.0, ToMsec(5_000_000, 1.0), 1e-9)
	assert.InDelta(t, 5.0, ToUsec(5_000, 1.0), 1e-9)
	assert.InDelta(t, 1.0, ToSec(1_000_000_000, 1.0), 1e-9)

	// 2 GHz: twice the cycles per unit of time
	assert.InDelta(t, 2.5, ToMsec(5_000_000, 2.0), 1e-9)
}

func TestMonotonicClockAdvances(t *testing.T) {
	c := NewMonotonicClock()
	assert.Equal(t, 1.0, c.FreqGHz())

	a := c.Cycles()
	time.Sleep(2 * time.Millisecond)
	b := c.Cycles()

	assert.Greater(t, b, a)
	assert.GreaterOrEqual(t, ToMsec(b-a, c.FreqGHz()), 1.0)
}

func TestManualClock(t *testing.T) {
	c := NewManualClock()
	assert.EqualValues(t, 0, c.Cycles())

	c.Advance(6 * time.Millisecond)
	assert.InDelta(t, 6.0, ToMsec(c.Cycles(), c.FreqGHz()), 1e-9)

	c.Advance(44 * time.Millisecond)
	assert.InDelta(t, 50.0, ToMsec(c.Cycles(), c.FreqGHz()), 1e-9)
}
