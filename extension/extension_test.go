package extension

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tickledger"
	"github.com/xraph/tickledger/driver"
	"github.com/xraph/tickledger/id"
	"github.com/xraph/tickledger/store/file"
	"github.com/xraph/tickledger/store/memory"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{MaxSweepEntries: 8})
	defaults := DefaultConfig()

	assert.Equal(t, 8, cfg.MaxSweepEntries)
	assert.Equal(t, defaults.Currency, cfg.Currency)
	assert.Equal(t, defaults.HookTimeout, cfg.HookTimeout)
	assert.Equal(t, defaults.MaxCollectRounds, cfg.MaxCollectRounds)
	assert.Equal(t, defaults.TickPeriod, cfg.TickPeriod)
}

func TestMergeConfigurations(t *testing.T) {
	yaml := Config{
		Currency:        "eur",
		MaxSweepEntries: 32,
		CollectSchedule: "@every 1m",
	}
	programmatic := Config{
		Currency:         "usd",
		MaxSweepEntries:  4,
		InitialPrice:     25,
		DisableMigrate:   true,
		EnablePrometheus: true,
		TickPeriod:       time.Minute,
	}

	cfg := mergeConfigurations(yaml, programmatic)
	assert.Equal(t, "eur", cfg.Currency)
	assert.Equal(t, 32, cfg.MaxSweepEntries)
	assert.Equal(t, "@every 1m", cfg.CollectSchedule)
	assert.Equal(t, int64(25), cfg.InitialPrice)
	assert.True(t, cfg.DisableMigrate)
	assert.True(t, cfg.EnablePrometheus)
	assert.False(t, cfg.DisableCheckpointOnStop)
	assert.Equal(t, time.Minute, cfg.TickPeriod)
	assert.Equal(t, DefaultConfig().MaxCollectRounds, cfg.MaxCollectRounds)
}

func TestBuildEngineFromConfig(t *testing.T) {
	instanceID := id.NewInstanceID()
	st := memory.New()
	e := New(
		WithStore(st),
		WithInstanceID(instanceID.String()),
		WithCurrency("EUR"),
		WithMaxSweepEntries(2),
	)
	e.config = mergeWithDefaults(e.config)
	require.NoError(t, e.build())

	eng := e.Engine()
	require.NotNil(t, eng)
	assert.Equal(t, instanceID, eng.InstanceID())
	assert.Equal(t, "eur", eng.Currency())
	assert.Equal(t, 2, eng.MaxSweepEntries())
	assert.Same(t, st, eng.Store())
	assert.Nil(t, e.Driver())
	require.NoError(t, e.Health(context.Background()))
}

func TestBuildRejectsBadInstanceID(t *testing.T) {
	e := New(WithInstanceID("sub_01h455vb4pex5vsknk084sn02q"))
	e.config = mergeWithDefaults(e.config)
	require.Error(t, e.build())
}

func TestBuildRequiresInstanceIDForPersistentStore(t *testing.T) {
	st, err := file.New(t.TempDir())
	require.NoError(t, err)

	e := New(WithStore(st))
	e.config = mergeWithDefaults(e.config)
	require.ErrorIs(t, e.build(), ErrInstanceIDRequired)
	assert.Nil(t, e.Engine())

	instanceID := id.NewInstanceID()
	e = New(WithStore(st), WithInstanceID(instanceID.String()))
	e.config = mergeWithDefaults(e.config)
	require.NoError(t, e.build())
	assert.Equal(t, instanceID, e.Engine().InstanceID())
}

func TestBuildWithScheduleCreatesDriver(t *testing.T) {
	src := driver.NewManualSource(7)
	e := New(
		WithCollectSchedule("@every 1m"),
		WithTickSource(src),
		WithEngineOption(tickledger.WithStartTime(2)),
	)
	e.config = mergeWithDefaults(e.config)
	require.NoError(t, e.build())
	require.NotNil(t, e.Driver())

	ctx := context.Background()
	require.NoError(t, e.Engine().Start(ctx))
	res, err := e.Driver().Tick(ctx)
	require.NoError(t, err)
	assert.True(t, res.Advanced)
	assert.Equal(t, tickledger.Tick(7), e.Engine().CurrentTime())
}

func TestBuildWithPrometheus(t *testing.T) {
	e := New(WithPrometheus(), WithHookTimeout(time.Second))
	e.config = mergeWithDefaults(e.config)
	require.NoError(t, e.build())
	assert.Equal(t, 1, e.Engine().Plugins().Count())
}
