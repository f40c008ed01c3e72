package master

import "time"

// Backoff computes the retry delay sequence for link/I-O failures:
// exponential, starting at Min, doubling each attempt, and never
// exceeding Max. Application-level task failures (e.g. an outstation
// returning IIN2.2 PARAMETER_ERROR) are not retried by this
// mechanism; only transport-level failures (timeout, link reject) are.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64

	attempt int
}

// DefaultBackoff returns the standard 1s-to-10s doubling backoff.
func DefaultBackoff() Backoff {
	return Backoff{Min: 1 * time.Second, Max: 10 * time.Second, Factor: 2}
}

// Next returns the delay for the current attempt and advances the
// internal attempt counter.
func (b *Backoff) Next() time.Duration {
	d := b.Min
	for i := 0; i < b.attempt; i++ {
		d = time.Duration(float64(d) * b.Factor)
		if d > b.Max {
			d = b.Max
			break
		}
	}
	b.attempt++
	return d
}

// Reset clears the attempt counter after a successful exchange.
func (b *Backoff) Reset() { b.attempt = 0 }
