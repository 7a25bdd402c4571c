package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClockAdvanceIsMonotonic(t *testing.T) {
	c := NewClock(10)
	assert.Equal(t, Ticks(0), c.Now())
	for i := 1; i <= 5; i++ {
		assert.Equal(t, Ticks(i), c.Advance())
	}
	assert.Equal(t, Ticks(5), c.Now())
}

func TestClockZeroPeriodFallsBackToDefault(t *testing.T) {
	c := NewClock(0)
	assert.Equal(t, uint32(DefaultTickPeriodMS), c.TicksToMS(1))
}

func TestClockMSToTicksRoundsUp(t *testing.T) {
	c := NewClock(10)
	assert.Equal(t, Ticks(0), c.MSToTicks(0))
	assert.Equal(t, Ticks(1), c.MSToTicks(1), "1ms at a 10ms period rounds up to 1 tick, never 0")
	assert.Equal(t, Ticks(1), c.MSToTicks(10))
	assert.Equal(t, Ticks(2), c.MSToTicks(11))
}

func TestClockTicksToMS(t *testing.T) {
	c := NewClock(10)
	assert.Equal(t, uint32(0), c.TicksToMS(0))
	assert.Equal(t, uint32(50), c.TicksToMS(5))
}

func TestClockSecondsAndTimestamp(t *testing.T) {
	c := NewClock(100)
	for i := 0; i < 15; i++ {
		c.Advance()
	}
	// 15 ticks * 100ms = 1500ms = 1 whole second, 500ms remainder.
	assert.Equal(t, uint64(1), c.Seconds())
	assert.Equal(t, "1s500ms", c.Timestamp())
}
