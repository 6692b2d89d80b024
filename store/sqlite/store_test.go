package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/tickledger"
	"github.com/xraph/tickledger/id"
	"github.com/xraph/tickledger/store"
	"github.com/xraph/tickledger/store/sqlite"
	"github.com/xraph/tickledger/store/storetest"
)

// openStore opens a migrated store on the database file at path.
func openStore(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	ctx := context.Background()

	drv := sqlitedriver.New()
	require.NoError(t, drv.Open(ctx, path))
	db, err := grove.Open(drv)
	require.NoError(t, err)

	s := sqlite.New(db)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s := openStore(t, filepath.Join(t.TempDir(), "tickledger.db"))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newStore(t)
	})
}

func TestMigrateIsRepeatable(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestTimelineUpsertReplacesDelta(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	snap := storetest.Sample()
	require.NoError(t, s.SaveSnapshot(ctx, snap))

	snap.Timeline[1].Delta = -30
	require.NoError(t, s.SaveSnapshot(ctx, snap))

	got, err := s.LoadSnapshot(ctx, snap.InstanceID)
	require.NoError(t, err)
	require.Len(t, got.Timeline, 2)
	assert.EqualValues(t, -30, got.Timeline[1].Delta)
}

func TestFailedSaveKeepsPreviousSnapshot(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	sdb := sqlitedriver.Unwrap(s.DB())

	snap := storetest.Sample()
	require.NoError(t, s.SaveSnapshot(ctx, snap))

	_, err := sdb.Exec(ctx, `
CREATE TRIGGER refuse_state_update BEFORE UPDATE ON tickledger_state
BEGIN
    SELECT RAISE(ABORT, 'state update refused');
END;`)
	require.NoError(t, err)

	// The settled snapshot adds a subscription, rewrites the timeline and
	// prunes tick 16 before the state write is refused.
	next := storetest.Settled(snap)
	err = s.SaveSnapshot(ctx, next)
	require.ErrorContains(t, err, "state update refused")

	got, err := s.LoadSnapshot(ctx, snap.InstanceID)
	require.NoError(t, err)
	storetest.RequireEqual(t, snap, got)

	_, err = sdb.Exec(ctx, `DROP TRIGGER refuse_state_update`)
	require.NoError(t, err)
	require.NoError(t, s.SaveSnapshot(ctx, next))

	got, err = s.LoadSnapshot(ctx, snap.InstanceID)
	require.NoError(t, err)
	storetest.RequireEqual(t, next, got)
}

func TestEngineResumesFromDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tickledger.db")
	instanceID := id.NewInstanceID()
	usd := func(n int64) tickledger.Money { return tickledger.Money{Amount: n, Currency: "usd"} }

	first := tickledger.New(
		tickledger.WithStore(openStore(t, path)),
		tickledger.WithInstanceID(instanceID),
	)
	require.NoError(t, first.Start(ctx))
	require.NoError(t, first.SetPricePerUnit(ctx, tickledger.RoleOperator, usd(10)))
	_, err := first.TopOff(ctx, "alice", usd(100))
	require.NoError(t, err)
	require.NoError(t, first.AdvanceTime(ctx, 5))
	_, err = first.Collect(ctx)
	require.NoError(t, err)
	want := first.Balances()
	require.NoError(t, first.Stop(ctx))

	second := tickledger.New(
		tickledger.WithStore(openStore(t, path)),
		tickledger.WithInstanceID(instanceID),
	)
	require.NoError(t, second.Start(ctx))
	t.Cleanup(func() { _ = second.Stop(ctx) })

	assert.Equal(t, tickledger.Tick(5), second.CurrentTime())
	assert.Equal(t, want, second.Balances())
	assert.True(t, second.IsActive("alice"))
	price, ok := second.PricePerUnit()
	require.True(t, ok)
	assert.Equal(t, usd(10), price)
}
