package ipd

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestInitialTargetAndCurrent(t *testing.T) {
	// block_size=1024 bytes, target_rate=10_000_000 bps ->
	// ipd_target = 1e6 * 8 * 1024 / 1e7 = 819.2us, ipd_current = 3x that.
	c := New(10_000_000, 1024, 10000, Ratio{11, 10}, Ratio{9, 10}, nil)
	assert.InDelta(t, 819.2, c.Target(), 0.01)
	assert.InDelta(t, 2457.6, c.Current(), 0.01)
}

func TestErrorRateFeedbackScenario(t *testing.T) {
	c := &Controller{
		targetMicros:   100,
		currentMicros:  300,
		errorThreshold: 10000,
		slower:         Ratio{11, 10},
		faster:         Ratio{9, 10},
	}

	for i := 0; i < 5; i++ {
		c.OnErrorRate(0)
	}
	assert.True(t, almostEqual(c.Current(), 177.15, 0.1), "got %f", c.Current())

	c.OnErrorRate(50000)
	assert.True(t, almostEqual(c.Current(), 185.02, 0.1), "got %f", c.Current())
}

func TestClampNeverBelowTargetOrAboveMax(t *testing.T) {
	c := &Controller{
		targetMicros:   50,
		currentMicros:  51,
		errorThreshold: 10000,
		slower:         Ratio{11, 10},
		faster:         Ratio{1, 1000}, // absurdly aggressive speedup
	}
	for i := 0; i < 50; i++ {
		c.OnErrorRate(0)
		assert.GreaterOrEqual(t, c.Current(), c.targetMicros)
	}

	c2 := &Controller{
		targetMicros:   50,
		currentMicros:  9999,
		errorThreshold: 0,
		slower:         Ratio{100, 1}, // absurdly aggressive slowdown
		faster:         Ratio{9, 10},
	}
	for i := 0; i < 50; i++ {
		c2.OnErrorRate(100000)
		assert.LessOrEqual(t, c2.Current(), float64(MaxMicros))
	}
}
