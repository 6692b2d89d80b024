package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the pg migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/tickledger"
	"github.com/xraph/tickledger/id"
	"github.com/xraph/tickledger/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
//
// Snapshots are written incrementally inside one transaction: subscriptions
// are append-only and inserted once, timeline rows are upserted and pruned
// once folded, and the state row is written last.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("tickledger/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("tickledger/postgres: migration failed: %w", err)
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

// SaveSnapshot writes snap in one transaction, so a failed write leaves the
// previously saved snapshot intact.
func (s *Store) SaveSnapshot(ctx context.Context, snap *store.Snapshot) error {
	if snap.InstanceID.IsNil() {
		return tickledger.ErrInvalidInput
	}
	instanceID := snap.InstanceID.String()

	tx, err := s.pg.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("tickledger/postgres: begin save: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if len(snap.Subscriptions) > 0 {
		subs := make([]subscriptionModel, len(snap.Subscriptions))
		for i, sub := range snap.Subscriptions {
			subs[i] = toSubscriptionModel(instanceID, sub)
		}
		if _, err := tx.NewInsert(&subs).
			MultiRow().
			OnConflict("(id) DO NOTHING").
			Exec(ctx); err != nil {
			return fmt.Errorf("tickledger/postgres: save subscriptions: %w", err)
		}
	}

	if len(snap.Timeline) > 0 {
		entries := make([]timelineModel, len(snap.Timeline))
		for i, e := range snap.Timeline {
			entries[i] = toTimelineModel(instanceID, e)
		}
		if _, err := tx.NewInsert(&entries).
			MultiRow().
			OnConflict("(instance_id, tick) DO UPDATE").
			Set("delta = EXCLUDED.delta").
			Exec(ctx); err != nil {
			return fmt.Errorf("tickledger/postgres: save timeline: %w", err)
		}
	}

	if _, err := tx.NewDelete((*timelineModel)(nil)).
		Where("instance_id = $1", instanceID).
		Where("tick <= $2", int64(snap.Collector.LastSettled)).
		Exec(ctx); err != nil {
		return fmt.Errorf("tickledger/postgres: prune timeline: %w", err)
	}

	if _, err := tx.NewInsert(toStateModel(snap)).
		OnConflict("(instance_id) DO UPDATE").
		Set("currency = EXCLUDED.currency").
		Set("now_tick = EXCLUDED.now_tick").
		Set("price_per_unit = EXCLUDED.price_per_unit").
		Set("last_settled = EXCLUDED.last_settled").
		Set("rate = EXCLUDED.rate").
		Set("pooled = EXCLUDED.pooled").
		Set("service = EXCLUDED.service").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("tickledger/postgres: save state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("tickledger/postgres: commit save: %w", err)
	}
	return nil
}

func (s *Store) LoadSnapshot(ctx context.Context, instanceID id.InstanceID) (*store.Snapshot, error) {
	m := new(stateModel)
	err := s.pg.NewSelect(m).
		Where("instance_id = $1", instanceID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tickledger.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("tickledger/postgres: load state: %w", err)
	}
	snap, err := fromStateModel(m)
	if err != nil {
		return nil, fmt.Errorf("tickledger/postgres: load state: %w", err)
	}

	var subs []subscriptionModel
	if err := s.pg.NewSelect(&subs).
		Where("instance_id = $1", instanceID.String()).
		OrderExpr("account ASC, purchased_at ASC, start_tick ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("tickledger/postgres: load subscriptions: %w", err)
	}
	for i := range subs {
		sub, err := fromSubscriptionModel(&subs[i])
		if err != nil {
			return nil, fmt.Errorf("tickledger/postgres: load subscriptions: %w", err)
		}
		snap.Subscriptions = append(snap.Subscriptions, sub)
	}

	var entries []timelineModel
	if err := s.pg.NewSelect(&entries).
		Where("instance_id = $1", instanceID.String()).
		OrderExpr("tick ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("tickledger/postgres: load timeline: %w", err)
	}
	for i := range entries {
		snap.Timeline = append(snap.Timeline, fromTimelineModel(&entries[i]))
	}

	return snap, nil
}

func (s *Store) DeleteSnapshot(ctx context.Context, instanceID id.InstanceID) error {
	tx, err := s.pg.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("tickledger/postgres: begin delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.NewDelete((*stateModel)(nil)).
		Where("instance_id = $1", instanceID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tickledger.ErrSnapshotNotFound
	}

	if _, err := tx.NewDelete((*subscriptionModel)(nil)).
		Where("instance_id = $1", instanceID.String()).
		Exec(ctx); err != nil {
		return err
	}
	if _, err := tx.NewDelete((*timelineModel)(nil)).
		Where("instance_id = $1", instanceID.String()).
		Exec(ctx); err != nil {
		return err
	}
	return tx.Commit()
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
