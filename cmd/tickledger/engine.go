package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/xraph/tickledger"
	audithook "github.com/xraph/tickledger/audit_hook"
	"github.com/xraph/tickledger/id"
	"github.com/xraph/tickledger/store"
	"github.com/xraph/tickledger/store/file"
	"github.com/xraph/tickledger/store/redis"
)

var errNoInstance = errors.New("no instance configured; run `tickledger init` or pass --instance")

func isNotExist(err error) bool { return errors.Is(err, fs.ErrNotExist) }

// openStore returns a redis store when redis_url is set, otherwise a file
// store under data_dir.
func (c *cli) openStore(ctx context.Context) (store.Store, error) {
	if url := c.v.GetString(keyRedisURL); url != "" {
		s, err := redis.New(ctx, redis.Config{URL: url})
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return s, nil
	}
	s, err := file.New(c.v.GetString(keyDataDir))
	if err != nil {
		return nil, fmt.Errorf("open file store: %w", err)
	}
	return s, nil
}

func (c *cli) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if c.v.GetBool(keyVerbose) {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// withEngine starts the configured instance, runs fn and stops the engine,
// which saves the resulting state.
func (c *cli) withEngine(cmd *cobra.Command, instanceID id.InstanceID, fn func(*tickledger.Engine) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := c.openStore(ctx)
	if err != nil {
		return err
	}

	logger := c.logger(cmd)
	opts := []tickledger.Option{
		tickledger.WithStore(st),
		tickledger.WithInstanceID(instanceID),
		tickledger.WithLogger(logger),
		tickledger.WithCurrency(c.v.GetString(keyCurrency)),
		tickledger.WithMaxSweepEntries(c.v.GetInt(keyMaxSweepEntries)),
	}

	if path := c.v.GetString(keyAuditLog); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			_ = st.Close() //nolint:errcheck // best-effort cleanup
			return fmt.Errorf("open audit log: %w", err)
		}
		defer closeQuietly(f)
		opts = append(opts, tickledger.WithPlugin(audithook.New(
			audithook.NewJSONRecorder(f),
			audithook.WithLogger(logger),
		)))
	}

	eng := tickledger.New(opts...)
	if err := eng.Start(ctx); err != nil {
		_ = st.Close() //nolint:errcheck // best-effort cleanup
		return err
	}

	runErr := fn(eng)
	return errors.Join(runErr, eng.Stop(ctx))
}

// instanceID resolves the configured instance.
func (c *cli) instanceID() (id.InstanceID, error) {
	raw := c.v.GetString(keyInstance)
	if raw == "" {
		return id.Nil, errNoInstance
	}
	instanceID, err := id.ParseInstanceID(raw)
	if err != nil {
		return id.Nil, fmt.Errorf("invalid instance %q: %w", raw, err)
	}
	return instanceID, nil
}

// run opens the configured instance for fn.
func (c *cli) run(cmd *cobra.Command, fn func(*tickledger.Engine) error) error {
	instanceID, err := c.instanceID()
	if err != nil {
		return err
	}
	return c.withEngine(cmd, instanceID, fn)
}

func closeQuietly(c io.Closer) {
	_ = c.Close() //nolint:errcheck // nothing to do on close failure
}
