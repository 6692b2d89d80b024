package tickledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tickledger"
	"github.com/xraph/tickledger/store/memory"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []string

	engine     *tickledger.Engine
	purchases  []*tickledger.Purchase
	rejections []error
	sweeps     []*tickledger.Settlement
	balances   []tickledger.Balances
}

func (r *eventRecorder) Name() string { return "recorder" }

func (r *eventRecorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) OnInit(_ context.Context, e interface{}) error {
	r.engine = e.(*tickledger.Engine)
	r.add("init")
	return nil
}

func (r *eventRecorder) OnShutdown(context.Context) error {
	r.add("shutdown")
	return nil
}

func (r *eventRecorder) OnCheckpoint(_ context.Context, _ string, err error) error {
	if err != nil {
		r.add("checkpoint-failed")
		return nil
	}
	r.add("checkpoint")
	return nil
}

func (r *eventRecorder) OnPriceChanged(_ context.Context, _, _ interface{}) error {
	r.add("price")
	return nil
}

func (r *eventRecorder) OnTimeAdvanced(_ context.Context, _, _ int64) error {
	r.add("advance")
	return nil
}

func (r *eventRecorder) OnToppedOff(_ context.Context, p interface{}) error {
	r.purchases = append(r.purchases, p.(*tickledger.Purchase))
	r.add("topoff")
	return nil
}

func (r *eventRecorder) OnTopOffRejected(_ context.Context, _ string, _ interface{}, reason error) error {
	r.rejections = append(r.rejections, reason)
	r.add("rejected")
	return nil
}

func (r *eventRecorder) OnCollected(_ context.Context, s interface{}) error {
	r.sweeps = append(r.sweeps, s.(*tickledger.Settlement))
	// hooks run outside the engine lock
	r.balances = append(r.balances, r.engine.Balances())
	r.add("collected")
	return nil
}

func (r *eventRecorder) OnSweepDeferred(_ context.Context, _ interface{}, remaining int) error {
	r.add("deferred")
	return nil
}

type failingStore struct{ *memory.Store }

func (failingStore) SaveSnapshot(context.Context, *tickledger.Snapshot) error {
	return errors.New("disk full")
}

func TestPluginEvents(t *testing.T) {
	ctx := context.Background()
	rec := &eventRecorder{}
	e := tickledger.New(
		tickledger.WithPlugin(rec),
		tickledger.WithStore(memory.New()),
		tickledger.WithMaxSweepEntries(1),
		tickledger.WithHookTimeout(time.Second),
	)

	require.NoError(t, e.Start(ctx))
	require.NoError(t, e.SetPricePerUnit(ctx, tickledger.RoleOperator, tickledger.USD(10)))
	require.Error(t, e.SetPricePerUnit(ctx, tickledger.RoleSubscriber, tickledger.USD(10)))
	topOff(t, e, "alice", 50)
	_, err := e.TopOff(ctx, "bob", tickledger.USD(5))
	require.Error(t, err)
	advance(t, e, 10)
	collect(t, e)
	require.NoError(t, e.Stop(ctx))

	assert.Equal(t, []string{
		"init", "price", "topoff", "rejected", "advance",
		"collected", "deferred", "checkpoint", "shutdown",
	}, rec.events)

	require.Len(t, rec.purchases, 1)
	assert.Equal(t, tickledger.Account("alice"), rec.purchases[0].Subscription.Account)
	require.Len(t, rec.rejections, 1)
	assert.ErrorIs(t, rec.rejections[0], tickledger.ErrSubMinimumPurchase)
	require.Len(t, rec.sweeps, 1)
	assert.False(t, rec.sweeps[0].Complete)
	assert.Equal(t, tickledger.USD(50), rec.balances[0].Pooled)
}

func TestCheckpointFailureIsReported(t *testing.T) {
	ctx := context.Background()
	rec := &eventRecorder{}
	e := tickledger.New(
		tickledger.WithPlugin(rec),
		tickledger.WithStore(failingStore{memory.New()}),
	)

	err := e.Checkpoint(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, []string{"checkpoint-failed"}, rec.events)
}
