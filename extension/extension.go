// Package extension provides the Forge extension adapter for tickledger.
//
// It implements the forge.Extension interface to integrate the engine
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management. When a collect schedule is
// configured the extension also runs a driver that advances time and
// collects fees in the background.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.tickledger" or
// "tickledger" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/tickledger"
	"github.com/xraph/tickledger/driver"
	"github.com/xraph/tickledger/id"
	"github.com/xraph/tickledger/observability"
	"github.com/xraph/tickledger/store"
	"github.com/xraph/tickledger/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "tickledger"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Pay-per-tick subscription billing engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts tickledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *tickledger.Engine
	driver     *driver.Driver
	store      store.Store
	source     driver.TickSource
	engineOpts []tickledger.Option
}

// New creates a new tickledger Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *tickledger.Engine { return e.engine }

// Driver returns the collect driver, or nil when no schedule is configured.
func (e *Extension) Driver() *driver.Driver { return e.driver }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.build(); err != nil {
		return err
	}

	return vessel.Provide(fapp.Container(), func() (*tickledger.Engine, error) {
		return e.engine, nil
	})
}

// build constructs the engine and, when scheduled, the driver from the
// resolved config.
func (e *Extension) build() error {
	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	// A persistent store without a fixed instance would get a fresh random
	// instance on every boot and never find its saved state.
	if _, ephemeral := e.store.(*memory.Store); !ephemeral && e.config.InstanceID == "" {
		return ErrInstanceIDRequired
	}

	opts, err := e.buildEngineOpts()
	if err != nil {
		return err
	}
	e.engine = tickledger.New(opts...)

	if e.config.CollectSchedule != "" {
		src := e.source
		if src == nil {
			src = driver.NewWallClock(time.Unix(0, 0).UTC(), e.config.TickPeriod)
		}
		e.driver = driver.New(e.engine, src,
			driver.WithLogger(e.engine.Logger()),
			driver.WithMaxRounds(e.config.MaxCollectRounds),
			driver.WithCheckpoint(e.config.CheckpointOnCollect),
		)
	}
	return nil
}

// ErrInstanceIDRequired is returned when a persistent store is configured
// without instance_id.
var ErrInstanceIDRequired = errors.New("tickledger: instance_id is required with a persistent store")

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("tickledger: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	if e.config.InitialPrice > 0 {
		if _, ok := e.engine.PricePerUnit(); !ok {
			price := tickledger.Money{Amount: e.config.InitialPrice, Currency: e.engine.Currency()}
			if err := e.engine.SetPricePerUnit(ctx, tickledger.RoleOperator, price); err != nil {
				return fmt.Errorf("tickledger: initial price: %w", err)
			}
		}
	}

	if e.driver != nil {
		if err := e.driver.Start(e.config.CollectSchedule); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	var errs []error
	if e.driver != nil {
		if err := e.driver.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if e.engine != nil {
		if err := e.engine.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	e.MarkStopped()
	return errors.Join(errs...)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("tickledger: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs tickledger.Option values from the resolved config.
func (e *Extension) buildEngineOpts() ([]tickledger.Option, error) {
	opts := make([]tickledger.Option, 0, len(e.engineOpts)+8)

	opts = append(opts,
		tickledger.WithStore(e.store),
		tickledger.WithAutoMigrate(!e.config.DisableMigrate),
		tickledger.WithCheckpointOnStop(!e.config.DisableCheckpointOnStop),
		tickledger.WithCurrency(e.config.Currency),
		tickledger.WithMaxSweepEntries(e.config.MaxSweepEntries),
	)

	if e.config.HookTimeout > 0 {
		opts = append(opts, tickledger.WithHookTimeout(e.config.HookTimeout))
	}

	if e.config.InstanceID != "" {
		instanceID, err := id.ParseInstanceID(e.config.InstanceID)
		if err != nil {
			return nil, fmt.Errorf("tickledger: instance_id: %w", err)
		}
		opts = append(opts, tickledger.WithInstanceID(instanceID))
	}

	if e.config.EnablePrometheus {
		factory := observability.NewPrometheusFactory(nil)
		opts = append(opts, tickledger.WithPlugin(observability.NewMetricsExtension(factory)))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts, nil
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("tickledger: configuration is required but not found in config files; " +
				"ensure 'extensions.tickledger' or 'tickledger' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("tickledger: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("instance_id", e.config.InstanceID),
		forge.F("currency", e.config.Currency),
		forge.F("initial_price", e.config.InitialPrice),
		forge.F("max_sweep_entries", e.config.MaxSweepEntries),
		forge.F("collect_schedule", e.config.CollectSchedule),
		forge.F("enable_prometheus", e.config.EnablePrometheus),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.tickledger", "tickledger"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("tickledger: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("tickledger: loaded config from file",
			forge.F("key", key),
		)
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.MaxSweepEntries <= 0 {
		cfg.MaxSweepEntries = defaults.MaxSweepEntries
	}
	if cfg.HookTimeout == 0 {
		cfg.HookTimeout = defaults.HookTimeout
	}
	if cfg.MaxCollectRounds <= 0 {
		cfg.MaxCollectRounds = defaults.MaxCollectRounds
	}
	if cfg.TickPeriod <= 0 {
		cfg.TickPeriod = defaults.TickPeriod
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableCheckpointOnStop {
		yamlConfig.DisableCheckpointOnStop = true
	}
	if programmaticConfig.EnablePrometheus {
		yamlConfig.EnablePrometheus = true
	}
	if programmaticConfig.CheckpointOnCollect {
		yamlConfig.CheckpointOnCollect = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.InstanceID == "" {
		yamlConfig.InstanceID = programmaticConfig.InstanceID
	}
	if yamlConfig.Currency == "" {
		yamlConfig.Currency = programmaticConfig.Currency
	}
	if yamlConfig.CollectSchedule == "" {
		yamlConfig.CollectSchedule = programmaticConfig.CollectSchedule
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.InitialPrice == 0 {
		yamlConfig.InitialPrice = programmaticConfig.InitialPrice
	}
	if yamlConfig.MaxSweepEntries == 0 {
		yamlConfig.MaxSweepEntries = programmaticConfig.MaxSweepEntries
	}
	if yamlConfig.HookTimeout == 0 {
		yamlConfig.HookTimeout = programmaticConfig.HookTimeout
	}
	if yamlConfig.MaxCollectRounds == 0 {
		yamlConfig.MaxCollectRounds = programmaticConfig.MaxCollectRounds
	}
	if yamlConfig.TickPeriod == 0 {
		yamlConfig.TickPeriod = programmaticConfig.TickPeriod
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
