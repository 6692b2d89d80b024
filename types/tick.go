package types

import "strconv"

// Tick is the discrete unit of time at which price accrues and subscriptions
// start and end. Ticks only move forward and are supplied by the caller; the
// engine never derives them from a clock.
type Tick int64

// Next returns the tick immediately after t.
func (t Tick) Next() (Tick, error) {
	n, err := AddInt64(int64(t), 1)
	return Tick(n), err
}

// Plus returns t advanced by n ticks.
func (t Tick) Plus(n int64) (Tick, error) {
	sum, err := AddInt64(int64(t), n)
	return Tick(sum), err
}

// Since returns the number of ticks elapsed from earlier to t.
func (t Tick) Since(earlier Tick) (int64, error) {
	return SubInt64(int64(t), int64(earlier))
}

// String formats the tick as a decimal number.
func (t Tick) String() string { return strconv.FormatInt(int64(t), 10) }

// MaxTick returns the later of a and b.
func MaxTick(a, b Tick) Tick {
	if a > b {
		return a
	}
	return b
}
