package feed

import (
	"math/rand"
	"time"
)

// Reconnect delays grow from reconnectMin to reconnectMax, doubling each
// attempt, with up to ±25% jitter.
const (
	reconnectMin    = time.Second
	reconnectMax    = time.Minute
	reconnectFactor = 2
	reconnectJitter = 0.25
)

// backoff produces reconnect delays. unit returns a value in [0, 1); 0.5
// yields no jitter.
type backoff struct {
	base time.Duration
	unit func() float64
}

func newBackoff() *backoff {
	return &backoff{base: reconnectMin, unit: rand.Float64} //nolint:gosec // not crypto
}

// next returns the jittered delay for this attempt and doubles the base for
// the following one.
func (b *backoff) next() time.Duration {
	spread := (b.unit()*2 - 1) * reconnectJitter
	d := b.base + time.Duration(float64(b.base)*spread)

	b.base *= reconnectFactor
	if b.base > reconnectMax {
		b.base = reconnectMax
	}
	if d < 0 {
		return 0
	}
	return d
}

// reset is called once a consumer is attached again.
func (b *backoff) reset() { b.base = reconnectMin }
