package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/tickledger/store/storetest"
	"github.com/xraph/tickledger/timeline"
)

func TestUnpersistedSubscriptionsSkipsStoredIDs(t *testing.T) {
	snap := storetest.Settled(storetest.Sample())
	instanceID := snap.InstanceID.String()
	require.Len(t, snap.Subscriptions, 3)

	persisted := map[string]struct{}{
		snap.Subscriptions[0].ID.String(): {},
		snap.Subscriptions[1].ID.String(): {},
	}
	docs := unpersistedSubscriptions(instanceID, snap.Subscriptions, persisted)
	require.Len(t, docs, 1)

	doc, ok := docs[0].(bson.D)
	require.True(t, ok)
	fields := make(map[string]any, len(doc))
	for _, e := range doc {
		fields[e.Key] = e.Value
	}
	assert.Equal(t, snap.Subscriptions[2].ID.String(), fields["_id"])
	assert.Equal(t, instanceID, fields["instance_id"])
	assert.Equal(t, "alice", fields["account"])
	assert.EqualValues(t, 21, fields["start_tick"])
	assert.EqualValues(t, 23, fields["end_tick"])
	assert.EqualValues(t, 25, fields["price_per_unit"])
	assert.EqualValues(t, 20, fields["purchased_at"])
}

func TestUnpersistedSubscriptionsAllStored(t *testing.T) {
	snap := storetest.Sample()
	persisted := map[string]struct{}{}
	for _, sub := range snap.Subscriptions {
		persisted[sub.ID.String()] = struct{}{}
	}
	assert.Empty(t, unpersistedSubscriptions(snap.InstanceID.String(), snap.Subscriptions, persisted))
}

func TestTimelineWritesUpsertByKey(t *testing.T) {
	writes := timelineWrites("inst_a", []timeline.Entry{
		{Time: 16, Delta: -10},
		{Time: 31, Delta: 0},
	})
	require.Len(t, writes, 2)

	for i, want := range []struct {
		key   string
		tick  int64
		delta int64
	}{
		{"inst_a:16", 16, -10},
		{"inst_a:31", 31, 0},
	} {
		w, ok := writes[i].(*mongo.UpdateOneModel)
		require.True(t, ok)
		require.NotNil(t, w.Upsert)
		assert.True(t, *w.Upsert)
		assert.Equal(t, bson.M{"_id": want.key}, w.Filter)
		assert.Equal(t, bson.M{"$set": bson.M{
			"instance_id": "inst_a",
			"tick":        want.tick,
			"delta":       want.delta,
		}}, w.Update)
	}
}

func TestTimelineWritesEmpty(t *testing.T) {
	assert.Empty(t, timelineWrites("inst_a", nil))
}
