// Package driver advances an engine from an external tick source and keeps
// its settlement current.
//
// The engine never reads a clock. A Driver owns that concern: each Tick call
// asks its TickSource for the environment's current tick, moves the engine
// forward when the source moved, runs bounded Collect rounds and optionally
// checkpoints. Start runs Tick on a cron schedule.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/xraph/tickledger"
	"github.com/xraph/tickledger/types"
)

// DefaultMaxRounds bounds the Collect calls made by one Tick.
const DefaultMaxRounds = 16

// ErrAlreadyRunning is returned by Start on a running driver.
var ErrAlreadyRunning = errors.New("driver: already running")

// Engine is the part of *tickledger.Engine a Driver uses.
type Engine interface {
	CurrentTime() tickledger.Tick
	AdvanceTime(ctx context.Context, t tickledger.Tick) error
	Collect(ctx context.Context) (*tickledger.Settlement, error)
	Checkpoint(ctx context.Context) error
}

// Result summarizes one Tick.
type Result struct {
	From     tickledger.Tick
	To       tickledger.Tick
	Advanced bool

	Rounds   int
	Fee      int64
	Complete bool
}

// Driver feeds ticks into an engine and collects.
type Driver struct {
	engine     Engine
	source     TickSource
	logger     *slog.Logger
	maxRounds  int
	checkpoint bool

	mu sync.Mutex // serializes Tick

	cronMu sync.Mutex
	cron   *cron.Cron
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// WithMaxRounds bounds the Collect calls per Tick. Non-positive values keep
// the default.
func WithMaxRounds(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.maxRounds = n
		}
	}
}

// WithCheckpoint makes every Tick end with an engine checkpoint.
func WithCheckpoint(enabled bool) Option {
	return func(d *Driver) {
		d.checkpoint = enabled
	}
}

// New creates a Driver for engine reading ticks from source.
func New(engine Engine, source TickSource, opts ...Option) *Driver {
	d := &Driver{
		engine:    engine,
		source:    source,
		logger:    slog.Default(),
		maxRounds: DefaultMaxRounds,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Tick advances the engine to the source's tick when it moved forward and
// collects until a sweep completes or MaxRounds is reached. A source that
// lags the engine is not an error; the engine simply does not move.
func (d *Driver) Tick(ctx context.Context) (*Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now, err := d.source.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("driver: read tick source: %w", err)
	}

	cur := d.engine.CurrentTime()
	res := &Result{From: cur, To: cur}
	if now > cur {
		if err := d.engine.AdvanceTime(ctx, now); err != nil {
			return nil, fmt.Errorf("driver: advance to %d: %w", now, err)
		}
		res.To = now
		res.Advanced = true
	}

	for res.Rounds < d.maxRounds {
		s, err := d.engine.Collect(ctx)
		if err != nil {
			return res, fmt.Errorf("driver: collect round %d: %w", res.Rounds+1, err)
		}
		res.Rounds++
		if res.Fee, err = types.AddInt64(res.Fee, s.Fee.Amount); err != nil {
			return res, fmt.Errorf("driver: fee total: %w", err)
		}
		if s.Complete {
			res.Complete = true
			break
		}
	}

	if d.checkpoint {
		if err := d.engine.Checkpoint(ctx); err != nil {
			return res, fmt.Errorf("driver: checkpoint: %w", err)
		}
	}

	d.logger.Debug("driver tick",
		"from", res.From,
		"to", res.To,
		"rounds", res.Rounds,
		"fee", res.Fee,
		"complete", res.Complete,
	)
	if !res.Complete {
		d.logger.Warn("driver: settlement still behind after max rounds",
			"rounds", res.Rounds,
			"current_time", res.To,
		)
	}
	return res, nil
}

// Start runs Tick on schedule, a standard five-field cron spec or a
// descriptor such as "@every 10s". Overlapping runs are skipped.
func (d *Driver) Start(schedule string) error {
	d.cronMu.Lock()
	defer d.cronMu.Unlock()

	if d.cron != nil {
		return ErrAlreadyRunning
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() {
		if _, err := d.Tick(context.Background()); err != nil {
			d.logger.Error("driver: scheduled tick failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("driver: schedule %q: %w", schedule, err)
	}

	c.Start()
	d.cron = c
	d.logger.Info("driver started", "schedule", schedule, "max_rounds", d.maxRounds)
	return nil
}

// Stop halts the schedule and waits for a running Tick to finish or ctx to
// end.
func (d *Driver) Stop(ctx context.Context) error {
	d.cronMu.Lock()
	c := d.cron
	d.cron = nil
	d.cronMu.Unlock()

	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		d.logger.Info("driver stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
