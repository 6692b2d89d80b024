package driver

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/xraph/tickledger"
)

// TickSource reports the environment's current tick.
type TickSource interface {
	Now(ctx context.Context) (tickledger.Tick, error)
}

// TickSourceFunc adapts a function to the TickSource interface.
type TickSourceFunc func(ctx context.Context) (tickledger.Tick, error)

// Now calls f.
func (f TickSourceFunc) Now(ctx context.Context) (tickledger.Tick, error) {
	return f(ctx)
}

// ManualSource is a TickSource moved by hand.
type ManualSource struct {
	tick atomic.Int64
}

// NewManualSource returns a source at start.
func NewManualSource(start tickledger.Tick) *ManualSource {
	s := &ManualSource{}
	s.tick.Store(int64(start))
	return s
}

// Now implements TickSource.
func (s *ManualSource) Now(context.Context) (tickledger.Tick, error) {
	return tickledger.Tick(s.tick.Load()), nil
}

// Set moves the source to t.
func (s *ManualSource) Set(t tickledger.Tick) { s.tick.Store(int64(t)) }

// Add moves the source forward by n ticks and returns the new tick.
func (s *ManualSource) Add(n int64) tickledger.Tick {
	return tickledger.Tick(s.tick.Add(n))
}

// ErrBeforeOrigin is returned by a WallClock read before its origin.
var ErrBeforeOrigin = errors.New("driver: wall clock before origin")

// WallClock maps wall time to ticks of a fixed period counted from origin.
type WallClock struct {
	origin time.Time
	period time.Duration
	now    func() time.Time
}

// NewWallClock returns a source where tick n spans
// [origin + n*period, origin + (n+1)*period).
func NewWallClock(origin time.Time, period time.Duration) *WallClock {
	if period <= 0 {
		period = time.Second
	}
	return &WallClock{origin: origin, period: period, now: time.Now}
}

// Now implements TickSource.
func (w *WallClock) Now(context.Context) (tickledger.Tick, error) {
	elapsed := w.now().Sub(w.origin)
	if elapsed < 0 {
		return 0, ErrBeforeOrigin
	}
	return tickledger.Tick(elapsed / w.period), nil
}
