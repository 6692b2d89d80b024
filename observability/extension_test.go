package observability_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tickledger"
	"github.com/xraph/tickledger/observability"
)

func value(t *testing.T, c observability.Counter) float64 {
	t.Helper()
	collector, ok := c.(prometheus.Collector)
	require.True(t, ok)
	return testutil.ToFloat64(collector)
}

func TestMetricsExtensionRecordsEngineEvents(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	e := tickledger.New(tickledger.WithPlugin(m), tickledger.WithMaxSweepEntries(1))
	require.NoError(t, e.SetPricePerUnit(ctx, tickledger.RoleOperator, tickledger.USD(10)))
	_, err := e.TopOff(ctx, "alice", tickledger.USD(105))
	require.NoError(t, err)
	_, err = e.TopOff(ctx, "bob", tickledger.USD(3))
	require.Error(t, err)
	require.NoError(t, e.AdvanceTime(ctx, 20))
	for {
		s, err := e.Collect(ctx)
		require.NoError(t, err)
		if s.Complete {
			break
		}
	}

	assert.Equal(t, 1.0, value(t, m.PriceChanged))
	assert.Equal(t, 1.0, value(t, m.TimeAdvanced))
	assert.Equal(t, 20.0, value(t, m.TicksElapsed))
	assert.Equal(t, 1.0, value(t, m.TopOffAccepted))
	assert.Equal(t, 1.0, value(t, m.TopOffRejected))
	assert.Equal(t, 10.0, value(t, m.UnitsPurchased))
	assert.Equal(t, 105.0, value(t, m.AmountAccepted))
	assert.Equal(t, 5.0, value(t, m.RemainderPooled))
	assert.Equal(t, 2.0, value(t, m.Sweeps))
	assert.Equal(t, 1.0, value(t, m.SweepsDeferred))
	assert.Equal(t, 2.0, value(t, m.EntriesFolded))
	assert.Equal(t, 100.0, value(t, m.FeesCollected))

	count, err := testutil.GatherAndCount(reg, "tickledger_collect_sweep_size")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetricsExtensionCheckpoints(t *testing.T) {
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(prometheus.NewRegistry()))
	ctx := context.Background()

	require.NoError(t, m.OnCheckpoint(ctx, "inst", nil))
	require.NoError(t, m.OnCheckpoint(ctx, "inst", errors.New("down")))
	require.NoError(t, m.OnCheckpoint(ctx, "inst", nil))

	assert.Equal(t, 2.0, value(t, m.Checkpoints))
	assert.Equal(t, 1.0, value(t, m.StoreErrors))
}

func TestMetricsExtensionIgnoresForeignPayloads(t *testing.T) {
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(prometheus.NewRegistry()))
	ctx := context.Background()

	require.NoError(t, m.OnToppedOff(ctx, "not a purchase"))
	require.NoError(t, m.OnCollected(ctx, nil))

	assert.Equal(t, 1.0, value(t, m.TopOffAccepted))
	assert.Equal(t, 0.0, value(t, m.UnitsPurchased))
	assert.Equal(t, 1.0, value(t, m.Sweeps))
}

func TestPrometheusFactoryReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := observability.NewPrometheusFactory(reg)

	a := f.Counter("tickledger.collect.sweeps")
	b := f.Counter("tickledger.collect.sweeps")
	a.Inc()
	b.Inc()

	assert.Equal(t, 2.0, value(t, a))
	assert.Equal(t, 1, testutil.CollectAndCount(a.(prometheus.Collector), "tickledger_collect_sweeps_total"))

	// a second extension on the same registry shares its series
	observability.NewMetricsExtension(f)
	observability.NewMetricsExtension(f)
}
