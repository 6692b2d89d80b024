package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix         = "TICKLEDGER"
	defaultConfigName = "tickledger"
	defaultDataDir    = ".tickledger"
)

// Config keys.
const (
	keyInstance        = "instance"
	keyDataDir         = "data_dir"
	keyRedisURL        = "redis_url"
	keyCurrency        = "currency"
	keyMaxSweepEntries = "max_sweep_entries"
	keyAuditLog        = "audit_log"
	keyVerbose         = "verbose"
)

type cli struct {
	v          *viper.Viper
	configFile string
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "tickledger",
		Short:         "Pay-per-tick subscription billing engine",
		Long:          "tickledger keeps a pooled balance of prepaid subscriptions, advances discrete time and collects the fees earned, persisting the engine state between runs.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return c.loadConfig()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "config file (default ./tickledger.toml)")
	flags.String("instance", "", "engine instance id (inst_...)")
	flags.String("data-dir", defaultDataDir, "directory holding snapshot files")
	flags.String("redis-url", "", "store snapshots in redis instead of files")
	flags.String("currency", "usd", "engine currency")
	flags.Int("max-sweep-entries", 64, "timeline entries folded per collect")
	flags.String("audit-log", "", "append JSON audit events to this file")
	flags.BoolP("verbose", "v", false, "log engine activity to stderr")

	for key, flag := range map[string]string{
		keyInstance:        "instance",
		keyDataDir:         "data-dir",
		keyRedisURL:        "redis-url",
		keyCurrency:        "currency",
		keyMaxSweepEntries: "max-sweep-entries",
		keyAuditLog:        "audit-log",
		keyVerbose:         "verbose",
	} {
		_ = c.v.BindPFlag(key, flags.Lookup(flag)) //nolint:errcheck // flags are defined above
	}

	rootCmd.AddCommand(
		newInitCmd(c),
		newPriceCmd(c),
		newAdvanceCmd(c),
		newTopOffCmd(c),
		newCollectCmd(c),
		newStatusCmd(c),
		newHistoryCmd(c),
	)

	return rootCmd
}

// loadConfig reads the config file, if any, and the TICKLEDGER_* environment.
func (c *cli) loadConfig() error {
	c.v.SetEnvPrefix(envPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	c.v.AutomaticEnv()

	if c.configFile != "" {
		c.v.SetConfigFile(c.configFile)
	} else {
		c.v.SetConfigName(defaultConfigName)
		c.v.SetConfigType("toml")
		c.v.AddConfigPath(".")
	}

	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		// An explicit --config that does not exist yet is created by init.
		if c.configFile != "" && isNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// configPath is where init writes the instance id.
func (c *cli) configPath() string {
	if c.configFile != "" {
		return c.configFile
	}
	if used := c.v.ConfigFileUsed(); used != "" {
		return used
	}
	return defaultConfigName + ".toml"
}
