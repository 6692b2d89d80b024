// Package store defines the persistence contract for engine snapshots.
//
// A snapshot is everything needed to rebuild an engine exactly: current
// tick, price, collector state, every recorded subscription and every
// unfolded timeline entry. Backends live in sub-packages.
package store

import (
	"context"
	"sort"

	"github.com/xraph/tickledger/collector"
	"github.com/xraph/tickledger/id"
	"github.com/xraph/tickledger/subscription"
	"github.com/xraph/tickledger/timeline"
	"github.com/xraph/tickledger/types"
)

// Snapshot is the serializable state of one engine instance.
type Snapshot struct {
	InstanceID  id.InstanceID `json:"instance_id"`
	Currency    string        `json:"currency"`
	CurrentTime types.Tick    `json:"current_time"`

	// PricePerUnit is zero while no price has been set.
	PricePerUnit int64 `json:"price_per_unit"`

	Collector     collector.State              `json:"collector"`
	Subscriptions []*subscription.Subscription `json:"subscriptions"`
	Timeline      []timeline.Entry             `json:"timeline"`
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	cp := *s
	cp.Subscriptions = make([]*subscription.Subscription, len(s.Subscriptions))
	for i, sub := range s.Subscriptions {
		c := *sub
		cp.Subscriptions[i] = &c
	}
	cp.Timeline = append([]timeline.Entry(nil), s.Timeline...)
	return &cp
}

// Normalize orders subscriptions by account then purchase tick, and timeline
// entries by tick. Backends that do not preserve insertion order call it
// after loading.
func (s *Snapshot) Normalize() {
	sort.SliceStable(s.Subscriptions, func(i, j int) bool {
		a, b := s.Subscriptions[i], s.Subscriptions[j]
		if a.Account != b.Account {
			return a.Account < b.Account
		}
		if a.PurchasedAt != b.PurchasedAt {
			return a.PurchasedAt < b.PurchasedAt
		}
		return a.Start < b.Start
	})
	sort.Slice(s.Timeline, func(i, j int) bool {
		return s.Timeline[i].Time < s.Timeline[j].Time
	})
}

// Store persists engine snapshots keyed by instance ID.
//
// SaveSnapshot must be idempotent: saving the same snapshot twice leaves the
// store in the same state as saving it once. LoadSnapshot returns
// tickledger.ErrSnapshotNotFound when nothing was saved for the instance.
type Store interface {
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	LoadSnapshot(ctx context.Context, instanceID id.InstanceID) (*Snapshot, error)
	DeleteSnapshot(ctx context.Context, instanceID id.InstanceID) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
