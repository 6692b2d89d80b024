package tickledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/xraph/tickledger/collector"
	"github.com/xraph/tickledger/id"
	"github.com/xraph/tickledger/plugin"
	"github.com/xraph/tickledger/store"
	"github.com/xraph/tickledger/subscription"
	"github.com/xraph/tickledger/timeline"
	"github.com/xraph/tickledger/types"
)

const (
	// DefaultMaxSweepEntries bounds the timeline entries one Collect folds.
	DefaultMaxSweepEntries = 64

	// DefaultCurrency is the engine currency when none is configured.
	DefaultCurrency = "usd"
)

// Engine is the subscription manager. It owns the delta timeline, the fee
// collector and the subscription ledger of one instance, and serializes
// every public operation behind a single mutex.
type Engine struct {
	mu   sync.Mutex
	cpMu sync.Mutex // orders checkpoints

	instanceID id.InstanceID
	store      store.Store
	plugins    *plugin.Registry
	logger     *slog.Logger
	authorizer Authorizer

	// Configuration
	currency         string
	maxSweepEntries  int
	checkpointOnStop bool
	autoMigrate      bool

	// Accounting state
	now       types.Tick
	price     int64
	timeline  *timeline.Timeline
	collector *collector.Collector
	ledger    *subscription.Ledger
}

// New creates an engine at tick zero (or the WithStartTime tick) with no
// price set and empty balances.
func New(opts ...Option) *Engine {
	e := &Engine{
		instanceID:       id.NewInstanceID(),
		plugins:          plugin.NewRegistry(),
		logger:           slog.Default(),
		authorizer:       DefaultAuthorizer,
		currency:         DefaultCurrency,
		maxSweepEntries:  DefaultMaxSweepEntries,
		checkpointOnStop: true,
		autoMigrate:      true,
		timeline:         timeline.New(),
		ledger:           subscription.NewLedger(),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.collector = collector.New(e.now)
	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithHookTimeout bounds each plugin hook call.
func WithHookTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.plugins.WithTimeout(d)
	}
}

// WithStore sets the snapshot store used by Start, Checkpoint and Stop.
func WithStore(s store.Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithInstanceID fixes the instance identifier. Snapshots are saved and
// loaded under it.
func WithInstanceID(instanceID id.InstanceID) Option {
	return func(e *Engine) {
		if !instanceID.IsNil() {
			e.instanceID = instanceID
		}
	}
}

// WithCurrency sets the ISO 4217 currency every amount must be given in.
func WithCurrency(currency string) Option {
	return func(e *Engine) {
		if currency != "" {
			e.currency = strings.ToLower(currency)
		}
	}
}

// WithMaxSweepEntries bounds the timeline entries folded by one Collect.
// Non-positive values keep the default.
func WithMaxSweepEntries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSweepEntries = n
		}
	}
}

// WithAuthorizer replaces DefaultAuthorizer.
func WithAuthorizer(a Authorizer) Option {
	return func(e *Engine) {
		if a != nil {
			e.authorizer = a
		}
	}
}

// WithStartTime sets the initial current tick. Collection starts there too.
func WithStartTime(t types.Tick) Option {
	return func(e *Engine) {
		e.now = t
	}
}

// WithCheckpointOnStop controls whether Stop saves a final snapshot.
func WithCheckpointOnStop(enabled bool) Option {
	return func(e *Engine) {
		e.checkpointOnStop = enabled
	}
}

// WithAutoMigrate controls whether Start runs store migrations.
func WithAutoMigrate(enabled bool) Option {
	return func(e *Engine) {
		e.autoMigrate = enabled
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start migrates the store, restores the instance's last snapshot when one
// exists and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if e.store != nil {
		if e.autoMigrate {
			if err := e.store.Migrate(ctx); err != nil {
				return fmt.Errorf("tickledger: migrate: %w", err)
			}
		}

		snap, err := e.store.LoadSnapshot(ctx, e.instanceID)
		switch {
		case err == nil:
			if err := e.Restore(snap); err != nil {
				return err
			}
		case errors.Is(err, ErrSnapshotNotFound):
		default:
			return fmt.Errorf("tickledger: load snapshot: %w", err)
		}
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("tickledger started",
		"instance_id", e.instanceID.String(),
		"currency", e.currency,
		"current_time", e.CurrentTime(),
		"max_sweep_entries", e.maxSweepEntries,
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop saves a final snapshot, shuts plugins down and closes the store.
func (e *Engine) Stop(ctx context.Context) error {
	var errs []error
	if e.store != nil && e.checkpointOnStop {
		if err := e.Checkpoint(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	e.plugins.EmitShutdown(ctx)

	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tickledger: close store: %w", err))
		}
	}

	e.logger.Info("tickledger stopped", "instance_id", e.instanceID.String())
	return errors.Join(errs...)
}

// Checkpoint saves the current state to the store.
func (e *Engine) Checkpoint(ctx context.Context) error {
	if e.store == nil {
		return ErrStoreNotConfigured
	}

	e.cpMu.Lock()
	defer e.cpMu.Unlock()

	snap := e.Snapshot()
	err := e.store.SaveSnapshot(ctx, snap)
	e.plugins.EmitCheckpoint(ctx, e.instanceID.String(), err)
	if err != nil {
		return fmt.Errorf("tickledger: checkpoint: %w", err)
	}

	e.logger.Debug("checkpoint saved",
		"instance_id", e.instanceID.String(),
		"current_time", snap.CurrentTime,
		"subscriptions", len(snap.Subscriptions),
		"pending_entries", len(snap.Timeline),
	)
	return nil
}

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Store returns the configured store, or nil.
func (e *Engine) Store() store.Store { return e.store }

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }
