// Package observability provides a metrics extension for tickledger that
// records accounting event counts via a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/tickledger"
	"github.com/xraph/tickledger/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin           = (*MetricsExtension)(nil)
	_ plugin.OnInit           = (*MetricsExtension)(nil)
	_ plugin.OnCheckpoint     = (*MetricsExtension)(nil)
	_ plugin.OnPriceChanged   = (*MetricsExtension)(nil)
	_ plugin.OnTimeAdvanced   = (*MetricsExtension)(nil)
	_ plugin.OnToppedOff      = (*MetricsExtension)(nil)
	_ plugin.OnTopOffRejected = (*MetricsExtension)(nil)
	_ plugin.OnCollected      = (*MetricsExtension)(nil)
	_ plugin.OnSweepDeferred  = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records engine-wide accounting metrics.
// Register it as an engine plugin to track billing activity.
type MetricsExtension struct {
	factory MetricFactory

	// Operator metrics
	PriceChanged Counter
	TimeAdvanced Counter
	TicksElapsed Counter

	// Purchase metrics
	TopOffAccepted  Counter
	TopOffRejected  Counter
	UnitsPurchased  Counter
	AmountAccepted  Counter
	RemainderPooled Counter
	PurchaseAmount  Histogram

	// Settlement metrics
	Sweeps         Counter
	SweepsDeferred Counter
	EntriesFolded  Counter
	FeesCollected  Counter
	SweepSize      Histogram

	// Persistence metrics
	Checkpoints Counter
	StoreErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions or NewPrometheusFactory elsewhere.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Operator metrics
		PriceChanged: factory.Counter("tickledger.price.changed"),
		TimeAdvanced: factory.Counter("tickledger.time.advanced"),
		TicksElapsed: factory.Counter("tickledger.time.ticks"),

		// Purchase metrics
		TopOffAccepted:  factory.Counter("tickledger.topoff.accepted"),
		TopOffRejected:  factory.Counter("tickledger.topoff.rejected"),
		UnitsPurchased:  factory.Counter("tickledger.topoff.units"),
		AmountAccepted:  factory.Counter("tickledger.topoff.amount"),
		RemainderPooled: factory.Counter("tickledger.topoff.remainder"),
		PurchaseAmount:  factory.Histogram("tickledger.topoff.amount.distribution"),

		// Settlement metrics
		Sweeps:         factory.Counter("tickledger.collect.sweeps"),
		SweepsDeferred: factory.Counter("tickledger.collect.deferred"),
		EntriesFolded:  factory.Counter("tickledger.collect.entries"),
		FeesCollected:  factory.Counter("tickledger.collect.fees"),
		SweepSize:      factory.Histogram("tickledger.collect.sweep.size"),

		// Persistence metrics
		Checkpoints: factory.Counter("tickledger.checkpoint.saved"),
		StoreErrors: factory.Counter("tickledger.store.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// OnCheckpoint implements plugin.OnCheckpoint.
func (m *MetricsExtension) OnCheckpoint(_ context.Context, _ string, err error) error {
	if err != nil {
		m.StoreErrors.Inc()
		return nil
	}
	m.Checkpoints.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Operator hooks
// ──────────────────────────────────────────────────

// OnPriceChanged implements plugin.OnPriceChanged.
func (m *MetricsExtension) OnPriceChanged(_ context.Context, _, _ interface{}) error {
	m.PriceChanged.Inc()
	return nil
}

// OnTimeAdvanced implements plugin.OnTimeAdvanced.
func (m *MetricsExtension) OnTimeAdvanced(_ context.Context, from, to int64) error {
	m.TimeAdvanced.Inc()
	m.TicksElapsed.Add(float64(to - from))
	return nil
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnToppedOff implements plugin.OnToppedOff.
func (m *MetricsExtension) OnToppedOff(_ context.Context, purchase interface{}) error {
	m.TopOffAccepted.Inc()
	p, ok := purchase.(*tickledger.Purchase)
	if !ok {
		return nil
	}
	m.UnitsPurchased.Add(float64(p.Units))
	m.AmountAccepted.Add(float64(p.Accepted.Amount))
	m.RemainderPooled.Add(float64(p.Remainder.Amount))
	m.PurchaseAmount.Observe(float64(p.Accepted.Amount))
	return nil
}

// OnTopOffRejected implements plugin.OnTopOffRejected.
func (m *MetricsExtension) OnTopOffRejected(_ context.Context, _ string, _ interface{}, _ error) error {
	m.TopOffRejected.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnCollected implements plugin.OnCollected.
func (m *MetricsExtension) OnCollected(_ context.Context, settlement interface{}) error {
	m.Sweeps.Inc()
	s, ok := settlement.(*tickledger.Settlement)
	if !ok {
		return nil
	}
	m.EntriesFolded.Add(float64(s.Processed))
	m.FeesCollected.Add(float64(s.Fee.Amount))
	m.SweepSize.Observe(float64(s.Processed))
	return nil
}

// OnSweepDeferred implements plugin.OnSweepDeferred.
func (m *MetricsExtension) OnSweepDeferred(_ context.Context, _ interface{}, _ int) error {
	m.SweepsDeferred.Inc()
	return nil
}
