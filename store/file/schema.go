package file

import (
	"fmt"

	"github.com/xraph/tickledger/collector"
	"github.com/xraph/tickledger/id"
	"github.com/xraph/tickledger/store"
	"github.com/xraph/tickledger/subscription"
	"github.com/xraph/tickledger/timeline"
	"github.com/xraph/tickledger/types"
)

const currentSchemaVersion = 1

type fileSchema struct {
	Version       int                  `toml:"version"`
	InstanceID    string               `toml:"instance_id"`
	Currency      string               `toml:"currency"`
	CurrentTime   int64                `toml:"current_time"`
	PricePerUnit  int64                `toml:"price_per_unit"`
	Collector     collectorSchema      `toml:"collector"`
	Subscriptions []subscriptionSchema `toml:"subscriptions"`
	Timeline      []entrySchema        `toml:"timeline"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported snapshot schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type collectorSchema struct {
	LastSettled int64 `toml:"last_settled"`
	Rate        int64 `toml:"rate"`
	Pooled      int64 `toml:"pooled"`
	Service     int64 `toml:"service"`
}

type subscriptionSchema struct {
	ID           string `toml:"id"`
	Account      string `toml:"account"`
	Start        int64  `toml:"start"`
	End          int64  `toml:"end"`
	PricePerUnit int64  `toml:"price_per_unit"`
	PurchasedAt  int64  `toml:"purchased_at"`
}

type entrySchema struct {
	Time  int64 `toml:"time"`
	Delta int64 `toml:"delta"`
}

func toSchema(snap *store.Snapshot) fileSchema {
	file := fileSchema{
		Version:      currentSchemaVersion,
		InstanceID:   snap.InstanceID.String(),
		Currency:     snap.Currency,
		CurrentTime:  int64(snap.CurrentTime),
		PricePerUnit: snap.PricePerUnit,
		Collector: collectorSchema{
			LastSettled: int64(snap.Collector.LastSettled),
			Rate:        snap.Collector.Rate,
			Pooled:      snap.Collector.Pooled,
			Service:     snap.Collector.Service,
		},
		Subscriptions: make([]subscriptionSchema, 0, len(snap.Subscriptions)),
		Timeline:      make([]entrySchema, 0, len(snap.Timeline)),
	}
	for _, sub := range snap.Subscriptions {
		file.Subscriptions = append(file.Subscriptions, subscriptionSchema{
			ID:           sub.ID.String(),
			Account:      string(sub.Account),
			Start:        int64(sub.Start),
			End:          int64(sub.End),
			PricePerUnit: sub.PricePerUnit,
			PurchasedAt:  int64(sub.PurchasedAt),
		})
	}
	for _, e := range snap.Timeline {
		file.Timeline = append(file.Timeline, entrySchema{Time: int64(e.Time), Delta: e.Delta})
	}
	return file
}

func fromSchema(file fileSchema) (*store.Snapshot, error) {
	instanceID, err := id.ParseInstanceID(file.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("decode instance id: %w", err)
	}

	snap := &store.Snapshot{
		InstanceID:   instanceID,
		Currency:     file.Currency,
		CurrentTime:  types.Tick(file.CurrentTime),
		PricePerUnit: file.PricePerUnit,
		Collector: collector.State{
			LastSettled: types.Tick(file.Collector.LastSettled),
			Rate:        file.Collector.Rate,
			Pooled:      file.Collector.Pooled,
			Service:     file.Collector.Service,
		},
		Subscriptions: make([]*subscription.Subscription, 0, len(file.Subscriptions)),
		Timeline:      make([]timeline.Entry, 0, len(file.Timeline)),
	}
	for _, entry := range file.Subscriptions {
		subID, err := id.ParseSubscriptionID(entry.ID)
		if err != nil {
			return nil, fmt.Errorf("decode subscription id: %w", err)
		}
		snap.Subscriptions = append(snap.Subscriptions, &subscription.Subscription{
			ID:           subID,
			Account:      subscription.Account(entry.Account),
			Start:        types.Tick(entry.Start),
			End:          types.Tick(entry.End),
			PricePerUnit: entry.PricePerUnit,
			PurchasedAt:  types.Tick(entry.PurchasedAt),
		})
	}
	for _, entry := range file.Timeline {
		snap.Timeline = append(snap.Timeline, timeline.Entry{Time: types.Tick(entry.Time), Delta: entry.Delta})
	}
	return snap, nil
}
