package extension

import (
	"time"

	"github.com/xraph/tickledger"
	"github.com/xraph/tickledger/driver"
	"github.com/xraph/tickledger/plugin"
	"github.com/xraph/tickledger/store"
)

// Option configures the tickledger Forge extension.
type Option func(*Extension)

// WithStore sets the snapshot store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a tickledger.Option through to the underlying engine.
func WithEngineOption(opt tickledger.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a tickledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, tickledger.WithPlugin(p))
	}
}

// WithTickSource sets the source the collect driver reads ticks from,
// replacing the wall clock derived from TickPeriod.
func WithTickSource(src driver.TickSource) Option {
	return func(e *Extension) {
		e.source = src
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithInstanceID sets the instance snapshots are saved under.
func WithInstanceID(instanceID string) Option {
	return func(e *Extension) { e.config.InstanceID = instanceID }
}

// WithCurrency sets the engine currency.
func WithCurrency(currency string) Option {
	return func(e *Extension) { e.config.Currency = currency }
}

// WithInitialPrice sets the per-unit price applied on start when none is
// stored.
func WithInitialPrice(minorUnits int64) Option {
	return func(e *Extension) { e.config.InitialPrice = minorUnits }
}

// WithMaxSweepEntries bounds the timeline entries folded by one collect.
func WithMaxSweepEntries(n int) Option {
	return func(e *Extension) { e.config.MaxSweepEntries = n }
}

// WithHookTimeout bounds each plugin hook call.
func WithHookTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.HookTimeout = d }
}

// WithPrometheus registers the prometheus metrics plugin.
func WithPrometheus() Option {
	return func(e *Extension) { e.config.EnablePrometheus = true }
}

// WithCollectSchedule runs the collect driver on a cron schedule.
func WithCollectSchedule(schedule string) Option {
	return func(e *Extension) { e.config.CollectSchedule = schedule }
}

// WithTickPeriod sets the wall-clock length of one tick.
func WithTickPeriod(d time.Duration) Option {
	return func(e *Extension) { e.config.TickPeriod = d }
}
