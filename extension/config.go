package extension

import "time"

// Config holds the tickledger extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.tickledger" or "tickledger" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// InstanceID is the TypeID ("inst_...") snapshots are saved under.
	// When empty a new instance is created on every boot.
	InstanceID string `json:"instance_id" mapstructure:"instance_id" yaml:"instance_id"`

	// Currency every price and top-off must be given in (default: "usd").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// InitialPrice is the per-unit price, in minor units, set on start when
	// the restored state has none. Zero leaves the price unset.
	InitialPrice int64 `json:"initial_price" mapstructure:"initial_price" yaml:"initial_price"`

	// MaxSweepEntries bounds the timeline entries folded by one collect
	// (default: 64).
	MaxSweepEntries int `json:"max_sweep_entries" mapstructure:"max_sweep_entries" yaml:"max_sweep_entries"`

	// DisableCheckpointOnStop skips the final snapshot on shutdown.
	DisableCheckpointOnStop bool `json:"disable_checkpoint_on_stop" mapstructure:"disable_checkpoint_on_stop" yaml:"disable_checkpoint_on_stop"`

	// HookTimeout bounds each plugin hook call (default: 5s).
	HookTimeout time.Duration `json:"hook_timeout" mapstructure:"hook_timeout" yaml:"hook_timeout"`

	// EnablePrometheus registers the metrics plugin on the default
	// prometheus registerer.
	EnablePrometheus bool `json:"enable_prometheus" mapstructure:"enable_prometheus" yaml:"enable_prometheus"`

	// CollectSchedule is a cron spec ("@every 30s", "*/5 * * * *") on which
	// time is advanced and fees collected. Empty disables the driver.
	CollectSchedule string `json:"collect_schedule" mapstructure:"collect_schedule" yaml:"collect_schedule"`

	// MaxCollectRounds bounds the collect calls made per scheduled run
	// (default: 16).
	MaxCollectRounds int `json:"max_collect_rounds" mapstructure:"max_collect_rounds" yaml:"max_collect_rounds"`

	// CheckpointOnCollect saves a snapshot after every scheduled run.
	CheckpointOnCollect bool `json:"checkpoint_on_collect" mapstructure:"checkpoint_on_collect" yaml:"checkpoint_on_collect"`

	// TickPeriod is the wall-clock length of one tick, counted from the Unix
	// epoch, used when no tick source is given programmatically (default: 1s).
	TickPeriod time.Duration `json:"tick_period" mapstructure:"tick_period" yaml:"tick_period"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Currency:         "usd",
		MaxSweepEntries:  64,
		HookTimeout:      5 * time.Second,
		MaxCollectRounds: 16,
		TickPeriod:       time.Second,
	}
}
