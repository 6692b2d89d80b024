// Package storetest is a conformance suite for store.Store implementations.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tickledger"
	"github.com/xraph/tickledger/collector"
	"github.com/xraph/tickledger/id"
	"github.com/xraph/tickledger/store"
	"github.com/xraph/tickledger/subscription"
	"github.com/xraph/tickledger/timeline"
)

// Factory returns a migrated, empty store. Cleanup is the caller's concern.
type Factory func(t *testing.T) store.Store

// Run exercises s against the store.Store contract.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("LoadMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.LoadSnapshot(context.Background(), id.NewInstanceID())
		require.ErrorIs(t, err, tickledger.ErrSnapshotNotFound)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		snap := Sample()

		require.NoError(t, s.SaveSnapshot(ctx, snap))
		got, err := s.LoadSnapshot(ctx, snap.InstanceID)
		require.NoError(t, err)
		RequireEqual(t, snap, got)
	})

	t.Run("SaveIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		snap := Sample()

		require.NoError(t, s.SaveSnapshot(ctx, snap))
		require.NoError(t, s.SaveSnapshot(ctx, snap))
		got, err := s.LoadSnapshot(ctx, snap.InstanceID)
		require.NoError(t, err)
		RequireEqual(t, snap, got)
	})

	t.Run("SaveAfterSettlement", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		snap := Sample()
		require.NoError(t, s.SaveSnapshot(ctx, snap))

		next := Settled(snap)
		require.NoError(t, s.SaveSnapshot(ctx, next))

		got, err := s.LoadSnapshot(ctx, snap.InstanceID)
		require.NoError(t, err)
		RequireEqual(t, next, got)
	})

	t.Run("InstancesAreIsolated", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a, b := Sample(), Sample()
		b.PricePerUnit = 99

		require.NoError(t, s.SaveSnapshot(ctx, a))
		require.NoError(t, s.SaveSnapshot(ctx, b))

		got, err := s.LoadSnapshot(ctx, a.InstanceID)
		require.NoError(t, err)
		RequireEqual(t, a, got)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		snap := Sample()
		require.NoError(t, s.SaveSnapshot(ctx, snap))

		require.NoError(t, s.DeleteSnapshot(ctx, snap.InstanceID))
		_, err := s.LoadSnapshot(ctx, snap.InstanceID)
		require.ErrorIs(t, err, tickledger.ErrSnapshotNotFound)
		require.ErrorIs(t, s.DeleteSnapshot(ctx, snap.InstanceID), tickledger.ErrSnapshotNotFound)
	})

	t.Run("RejectsNilInstance", func(t *testing.T) {
		s := newStore(t)
		snap := Sample()
		snap.InstanceID = id.ID{}
		require.Error(t, s.SaveSnapshot(context.Background(), snap))
	})

	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, newStore(t).Ping(context.Background()))
	})
}

// Sample returns a consistent snapshot at tick 12: price 10, alice bought
// [6,16) at tick 5, bob bought [11,31) at tick 10, settled through tick 11.
func Sample() *store.Snapshot {
	return &store.Snapshot{
		InstanceID:   id.NewInstanceID(),
		Currency:     "usd",
		CurrentTime:  12,
		PricePerUnit: 10,
		Collector: collector.State{
			LastSettled: 11,
			Rate:        20,
			Pooled:      250,
			Service:     50,
		},
		Subscriptions: []*subscription.Subscription{
			{ID: id.NewSubscriptionID(), Account: "alice", Start: 6, End: 16, PricePerUnit: 10, PurchasedAt: 5},
			{ID: id.NewSubscriptionID(), Account: "bob", Start: 11, End: 31, PricePerUnit: 10, PurchasedAt: 10},
		},
		Timeline: []timeline.Entry{
			{Time: 16, Delta: -10},
			{Time: 31, Delta: -10},
		},
	}
}

// Settled returns snap advanced and collected to tick 20, after which the
// price was raised to 25 and alice bought two more ticks.
func Settled(snap *store.Snapshot) *store.Snapshot {
	next := snap.Clone()
	next.CurrentTime = 20
	next.PricePerUnit = 25
	next.Collector = collector.State{LastSettled: 20, Rate: 10, Pooled: 110, Service: 190}
	next.Subscriptions = append(next.Subscriptions, &subscription.Subscription{
		ID: id.NewSubscriptionID(), Account: "alice", Start: 21, End: 23, PricePerUnit: 25, PurchasedAt: 20,
	})
	next.Collector.Pooled += 50
	next.Timeline = []timeline.Entry{
		{Time: 21, Delta: 25},
		{Time: 23, Delta: -25},
		{Time: 31, Delta: -10},
	}
	return next
}

// RequireEqual compares snapshots by value, ignoring subscription order
// across accounts.
func RequireEqual(t *testing.T, want, got *store.Snapshot) {
	t.Helper()

	w, g := want.Clone(), got.Clone()
	w.Normalize()
	g.Normalize()

	assert.Equal(t, w.InstanceID.String(), g.InstanceID.String())
	assert.Equal(t, w.Currency, g.Currency)
	assert.Equal(t, w.CurrentTime, g.CurrentTime)
	assert.Equal(t, w.PricePerUnit, g.PricePerUnit)
	assert.Equal(t, w.Collector, g.Collector)
	assert.Equal(t, w.Timeline, g.Timeline)

	require.Len(t, g.Subscriptions, len(w.Subscriptions))
	for i := range w.Subscriptions {
		ws, gs := w.Subscriptions[i], g.Subscriptions[i]
		assert.Equal(t, ws.ID.String(), gs.ID.String())
		assert.Equal(t, ws.Account, gs.Account)
		assert.Equal(t, ws.Start, gs.Start)
		assert.Equal(t, ws.End, gs.End)
		assert.Equal(t, ws.PricePerUnit, gs.PricePerUnit)
		assert.Equal(t, ws.PurchasedAt, gs.PurchasedAt)
	}
}
