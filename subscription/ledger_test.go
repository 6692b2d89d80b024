package subscription_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tickledger/id"
	"github.com/xraph/tickledger/subscription"
	"github.com/xraph/tickledger/types"
)

func sub(account subscription.Account, start, end types.Tick, price int64) *subscription.Subscription {
	return &subscription.Subscription{
		ID:           id.NewSubscriptionID(),
		Account:      account,
		Start:        start,
		End:          end,
		PricePerUnit: price,
		PurchasedAt:  start - 1,
	}
}

func TestIsActiveBoundaries(t *testing.T) {
	l := subscription.NewLedger()
	l.Record(sub("alice", 6, 16, 10))

	assert.False(t, l.IsActive("alice", 5))
	for at := types.Tick(6); at <= 15; at++ {
		assert.True(t, l.IsActive("alice", at), "tick %d", at)
	}
	assert.False(t, l.IsActive("alice", 16))
	assert.False(t, l.IsActive("bob", 10))
}

func TestIsActiveNewestFirst(t *testing.T) {
	l := subscription.NewLedger()
	l.Record(sub("alice", 2, 5, 10))
	l.Record(sub("alice", 8, 12, 10))

	tests := []struct {
		at   types.Tick
		want bool
	}{
		{1, false},
		{4, true},
		{5, false},
		{7, false},
		{8, true},
		{11, true},
		{12, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, l.IsActive("alice", tt.at), "tick %d", tt.at)
	}
}

func TestSubscriptionDerived(t *testing.T) {
	s := sub("alice", 6, 16, 10)
	assert.Equal(t, int64(10), s.Units())
	cost, err := s.Cost()
	require.NoError(t, err)
	assert.Equal(t, int64(100), cost)

	assert.Equal(t, subscription.StatusPending, s.StatusAt(5))
	assert.Equal(t, subscription.StatusActive, s.StatusAt(6))
	assert.Equal(t, subscription.StatusExpired, s.StatusAt(16))
	assert.True(t, s.Covers(15))
	assert.False(t, s.Covers(16))
}

func TestLastAndHistory(t *testing.T) {
	l := subscription.NewLedger()
	_, err := l.Last("alice")
	require.ErrorIs(t, err, subscription.ErrUnknownAccount)

	first := sub("alice", 2, 5, 10)
	second := sub("alice", 5, 9, 10)
	third := sub("alice", 9, 20, 10)
	l.Record(first)
	l.Record(second)
	l.Record(third)
	l.Record(sub("bob", 3, 4, 10))

	last, err := l.Last("alice")
	require.NoError(t, err)
	assert.Same(t, third, last)

	assert.Equal(t, []*subscription.Subscription{first, second, third}, l.History("alice", subscription.ListOpts{}))
	assert.Equal(t, []*subscription.Subscription{second}, l.History("alice", subscription.ListOpts{Offset: 1, Limit: 1}))
	assert.Nil(t, l.History("alice", subscription.ListOpts{Offset: 5}))
	at := types.Tick(7)
	assert.Equal(t, []*subscription.Subscription{first}, l.History("alice", subscription.ListOpts{
		Status: subscription.StatusExpired, At: &at,
	}))
	assert.Equal(t, []*subscription.Subscription{first, second, third}, l.History("alice", subscription.ListOpts{
		Status: subscription.StatusPending,
	}))

	assert.Equal(t, []subscription.Account{"alice", "bob"}, l.Accounts())
	assert.Equal(t, 4, l.Len())
	assert.Len(t, l.All(), 4)
}

func TestRestore(t *testing.T) {
	good := []*subscription.Subscription{sub("alice", 2, 5, 10), sub("alice", 5, 9, 10), sub("bob", 3, 4, 7)}
	l, err := subscription.Restore(good)
	require.NoError(t, err)
	assert.Equal(t, 3, l.Len())
	assert.True(t, l.IsActive("bob", 3))

	dup := sub("alice", 2, 5, 10)
	tests := []struct {
		name string
		subs []*subscription.Subscription
	}{
		{"overlap", []*subscription.Subscription{sub("alice", 2, 6, 10), sub("alice", 5, 9, 10)}},
		{"empty interval", []*subscription.Subscription{sub("alice", 5, 5, 10)}},
		{"zero price", []*subscription.Subscription{sub("alice", 2, 5, 0)}},
		{"empty account", []*subscription.Subscription{sub("", 2, 5, 10)}},
		{"duplicate id", []*subscription.Subscription{dup, dup}},
		{"start at purchase tick", []*subscription.Subscription{{
			ID: id.NewSubscriptionID(), Account: "alice", Start: 3, End: 5, PricePerUnit: 1, PurchasedAt: 3,
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := subscription.Restore(tt.subs)
			assert.Error(t, err)
		})
	}
}
