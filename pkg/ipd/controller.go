// Package ipd implements the sender's inter-packet-delay controller: a
// ratio-based multiplicative increase/decrease driven by the receiver's
// error-rate feedback (spec.md §4.6).
package ipd

import log "github.com/sirupsen/logrus"

// MaxMicros is the upper clamp on the inter-packet delay -- beyond this
// the transfer would crawl too slowly to be useful (spec.md §4.6).
const MaxMicros = 10000

// Ratio is a numerator/denominator pair, e.g. slowdown 11/10 or
// speedup 9/10, as negotiated in spec.md §3's session parameters.
type Ratio struct {
	Num uint16
	Den uint16
}

func (r Ratio) float() float64 {
	return float64(r.Num) / float64(r.Den)
}

// Controller tracks the sender-side inter-packet delay state.
type Controller struct {
	log *log.Entry

	targetMicros   float64 // ipd_target: floor set by the negotiated target bitrate
	currentMicros  float64 // ipd_current: the delay actually applied between sends
	errorThreshold uint32  // T, in per-mille x100 (0..100000)
	slower         Ratio   // applied (as a multiplicative increase) when e > T
	faster         Ratio   // applied (as a multiplicative decrease) when e <= T
}

// New creates a controller for a given target bitrate (bits/sec) and
// negotiated block size (bytes). ipd_current starts at 3x ipd_target,
// matching the original implementation's conservative ramp-up.
func New(targetRateBps uint32, blockSize uint32, errorThreshold uint32, slower, faster Ratio, logger *log.Entry) *Controller {
	target := 1_000_000.0 * 8.0 * float64(blockSize) / float64(targetRateBps)
	c := &Controller{
		log:            logger,
		targetMicros:   target,
		currentMicros:  target * 3,
		errorThreshold: errorThreshold,
		slower:         slower,
		faster:         faster,
	}
	if c.log != nil {
		c.log.Debugf("[IPD] init target=%.1fus current=%.1fus", c.targetMicros, c.currentMicros)
	}
	return c
}

// Current returns the inter-packet delay in microseconds to apply before
// the next send.
func (c *Controller) Current() float64 {
	return c.currentMicros
}

// Target returns the floor IPD computed from the negotiated target rate.
func (c *Controller) Target() float64 {
	return c.targetMicros
}

// OnErrorRate applies one feedback update from a reported error rate e
// (per-mille x100, 0..100000), per spec.md §4.6.
func (c *Controller) OnErrorRate(e uint32) {
	t := c.errorThreshold
	switch {
	case e > t:
		// Multiplicative increase, scaled by how far above threshold we are.
		span := 100000 - t
		if span == 0 {
			span = 1
		}
		factor := 1 + (c.slower.float()-1)*(float64(1+e-t)/float64(span))
		c.currentMicros *= factor
	default:
		c.currentMicros *= c.faster.float()
	}
	c.clamp()
	if c.log != nil {
		c.log.Debugf("[IPD] error_rate=%d ipd_current=%.2fus", e, c.currentMicros)
	}
}

func (c *Controller) clamp() {
	if c.currentMicros < c.targetMicros {
		c.currentMicros = c.targetMicros
	}
	if c.currentMicros > MaxMicros {
		c.currentMicros = MaxMicros
	}
}
