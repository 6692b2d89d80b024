package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/tickledger"
	"github.com/xraph/tickledger/id"
	"github.com/xraph/tickledger/store"
	"github.com/xraph/tickledger/subscription"
	"github.com/xraph/tickledger/timeline"
)

// Collection name constants.
const (
	colState         = "tickledger_state"
	colSubscriptions = "tickledger_subscriptions"
	colTimeline      = "tickledger_timeline"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all tickledger collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("tickledger/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Snapshot Store ====================

// SaveSnapshot writes snap in a session transaction, so a failed write leaves
// the previously saved snapshot intact. Transactions need a replica set or
// sharded cluster.
func (s *Store) SaveSnapshot(ctx context.Context, snap *store.Snapshot) error {
	if snap.InstanceID.IsNil() {
		return tickledger.ErrInvalidInput
	}
	return s.inTransaction(ctx, func(ctx context.Context) error {
		return s.writeSnapshot(ctx, snap)
	})
}

func (s *Store) writeSnapshot(ctx context.Context, snap *store.Snapshot) error {
	instanceID := snap.InstanceID.String()

	if len(snap.Subscriptions) > 0 {
		persisted, err := s.persistedSubscriptions(ctx, snap.Subscriptions)
		if err != nil {
			return err
		}
		if docs := unpersistedSubscriptions(instanceID, snap.Subscriptions, persisted); len(docs) > 0 {
			_, err := s.mdb.Collection(colSubscriptions).
				InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
			if err != nil {
				return fmt.Errorf("tickledger/mongo: save subscriptions: %w", err)
			}
		}
	}

	if writes := timelineWrites(instanceID, snap.Timeline); len(writes) > 0 {
		_, err := s.mdb.Collection(colTimeline).
			BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
		if err != nil {
			return fmt.Errorf("tickledger/mongo: save timeline: %w", err)
		}
	}

	if _, err := s.mdb.Collection(colTimeline).DeleteMany(ctx, bson.M{
		"instance_id": instanceID,
		"tick":        bson.M{"$lte": int64(snap.Collector.LastSettled)},
	}); err != nil {
		return fmt.Errorf("tickledger/mongo: prune timeline: %w", err)
	}

	m := toStateModel(snap)
	_, err := s.mdb.Collection(colState).UpdateOne(ctx,
		bson.M{"_id": m.InstanceID},
		bson.M{"$set": bson.M{
			"currency":       m.Currency,
			"now_tick":       m.NowTick,
			"price_per_unit": m.PricePerUnit,
			"last_settled":   m.LastSettled,
			"rate":           m.Rate,
			"pooled":         m.Pooled,
			"service":        m.Service,
			"updated_at":     m.UpdatedAt,
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("tickledger/mongo: save state: %w", err)
	}
	return nil
}

// persistedSubscriptions returns the ids among subs that are already stored.
func (s *Store) persistedSubscriptions(ctx context.Context, subs []*subscription.Subscription) (map[string]struct{}, error) {
	ids := make([]string, len(subs))
	for i, sub := range subs {
		ids[i] = sub.ID.String()
	}

	cur, err := s.mdb.Collection(colSubscriptions).Find(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"_id": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("tickledger/mongo: find subscriptions: %w", err)
	}
	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("tickledger/mongo: find subscriptions: %w", err)
	}

	persisted := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		persisted[r.ID] = struct{}{}
	}
	return persisted, nil
}

func (s *Store) LoadSnapshot(ctx context.Context, instanceID id.InstanceID) (*store.Snapshot, error) {
	var m stateModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": instanceID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tickledger.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("tickledger/mongo: load state: %w", err)
	}
	snap, err := fromStateModel(&m)
	if err != nil {
		return nil, fmt.Errorf("tickledger/mongo: load state: %w", err)
	}

	var subs []subscriptionModel
	err = s.mdb.NewFind(&subs).
		Filter(bson.M{"instance_id": instanceID.String()}).
		Sort(bson.D{
			{Key: "account", Value: 1},
			{Key: "purchased_at", Value: 1},
			{Key: "start_tick", Value: 1},
		}).
		Scan(ctx)
	if err != nil && !isNoDocuments(err) {
		return nil, fmt.Errorf("tickledger/mongo: load subscriptions: %w", err)
	}
	for i := range subs {
		sub, err := fromSubscriptionModel(&subs[i])
		if err != nil {
			return nil, fmt.Errorf("tickledger/mongo: load subscriptions: %w", err)
		}
		snap.Subscriptions = append(snap.Subscriptions, sub)
	}

	var entries []timelineModel
	err = s.mdb.NewFind(&entries).
		Filter(bson.M{"instance_id": instanceID.String()}).
		Sort(bson.D{{Key: "tick", Value: 1}}).
		Scan(ctx)
	if err != nil && !isNoDocuments(err) {
		return nil, fmt.Errorf("tickledger/mongo: load timeline: %w", err)
	}
	for i := range entries {
		snap.Timeline = append(snap.Timeline, fromTimelineModel(&entries[i]))
	}

	return snap, nil
}

func (s *Store) DeleteSnapshot(ctx context.Context, instanceID id.InstanceID) error {
	return s.inTransaction(ctx, func(ctx context.Context) error {
		res, err := s.mdb.Collection(colState).DeleteOne(ctx, bson.M{"_id": instanceID.String()})
		if err != nil {
			return fmt.Errorf("tickledger/mongo: delete state: %w", err)
		}
		if res.DeletedCount == 0 {
			return tickledger.ErrSnapshotNotFound
		}

		filter := bson.M{"instance_id": instanceID.String()}
		if _, err := s.mdb.Collection(colSubscriptions).DeleteMany(ctx, filter); err != nil {
			return fmt.Errorf("tickledger/mongo: delete subscriptions: %w", err)
		}
		if _, err := s.mdb.Collection(colTimeline).DeleteMany(ctx, filter); err != nil {
			return fmt.Errorf("tickledger/mongo: delete timeline: %w", err)
		}
		return nil
	})
}

// inTransaction runs fn in a session transaction. fn must use the context it
// is given so its operations join the transaction.
func (s *Store) inTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	sess, err := s.mdb.Collection(colState).Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("tickledger/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// unpersistedSubscriptions returns insert documents for the subscriptions
// whose ids are not in persisted.
func unpersistedSubscriptions(instanceID string, subs []*subscription.Subscription, persisted map[string]struct{}) []any {
	var docs []any
	for _, sub := range subs {
		if _, ok := persisted[sub.ID.String()]; ok {
			continue
		}
		m := toSubscriptionModel(instanceID, sub)
		docs = append(docs, bson.D{
			{Key: "_id", Value: m.ID},
			{Key: "instance_id", Value: m.InstanceID},
			{Key: "account", Value: m.Account},
			{Key: "start_tick", Value: m.StartTick},
			{Key: "end_tick", Value: m.EndTick},
			{Key: "price_per_unit", Value: m.PricePerUnit},
			{Key: "purchased_at", Value: m.PurchasedAt},
			{Key: "created_at", Value: m.CreatedAt},
		})
	}
	return docs
}

// timelineWrites returns one upsert per entry.
func timelineWrites(instanceID string, entries []timeline.Entry) []mongo.WriteModel {
	writes := make([]mongo.WriteModel, 0, len(entries))
	for _, e := range entries {
		m := toTimelineModel(instanceID, e)
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": m.Key}).
			SetUpdate(bson.M{"$set": bson.M{
				"instance_id": m.InstanceID,
				"tick":        m.Tick,
				"delta":       m.Delta,
			}}).
			SetUpsert(true))
	}
	return writes
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all tickledger collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colSubscriptions: {
			{Keys: bson.D{
				{Key: "instance_id", Value: 1},
				{Key: "account", Value: 1},
				{Key: "purchased_at", Value: 1},
				{Key: "start_tick", Value: 1},
			}},
		},
		colTimeline: {
			{
				Keys:    bson.D{{Key: "instance_id", Value: 1}, {Key: "tick", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colState: {},
	}
}
