package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/tickledger/collector"
	"github.com/xraph/tickledger/id"
	"github.com/xraph/tickledger/store"
	"github.com/xraph/tickledger/subscription"
	"github.com/xraph/tickledger/timeline"
	"github.com/xraph/tickledger/types"
)

// ==================== State models ====================

type stateModel struct {
	grove.BaseModel `grove:"table:tickledger_state"`

	InstanceID   string    `grove:"id,pk"          bson:"_id"`
	Currency     string    `grove:"currency"       bson:"currency"`
	NowTick      int64     `grove:"now_tick"       bson:"now_tick"`
	PricePerUnit int64     `grove:"price_per_unit" bson:"price_per_unit"`
	LastSettled  int64     `grove:"last_settled"   bson:"last_settled"`
	Rate         int64     `grove:"rate"           bson:"rate"`
	Pooled       int64     `grove:"pooled"         bson:"pooled"`
	Service      int64     `grove:"service"        bson:"service"`
	UpdatedAt    time.Time `grove:"updated_at"     bson:"updated_at"`
}

func toStateModel(snap *store.Snapshot) *stateModel {
	return &stateModel{
		InstanceID:   snap.InstanceID.String(),
		Currency:     snap.Currency,
		NowTick:      int64(snap.CurrentTime),
		PricePerUnit: snap.PricePerUnit,
		LastSettled:  int64(snap.Collector.LastSettled),
		Rate:         snap.Collector.Rate,
		Pooled:       snap.Collector.Pooled,
		Service:      snap.Collector.Service,
		UpdatedAt:    now(),
	}
}

func fromStateModel(m *stateModel) (*store.Snapshot, error) {
	instanceID, err := id.ParseInstanceID(m.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("parse instance id: %w", err)
	}
	return &store.Snapshot{
		InstanceID:   instanceID,
		Currency:     m.Currency,
		CurrentTime:  types.Tick(m.NowTick),
		PricePerUnit: m.PricePerUnit,
		Collector: collector.State{
			LastSettled: types.Tick(m.LastSettled),
			Rate:        m.Rate,
			Pooled:      m.Pooled,
			Service:     m.Service,
		},
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:tickledger_subscriptions"`

	ID           string    `grove:"id,pk"          bson:"_id"`
	InstanceID   string    `grove:"instance_id"    bson:"instance_id"`
	Account      string    `grove:"account"        bson:"account"`
	StartTick    int64     `grove:"start_tick"     bson:"start_tick"`
	EndTick      int64     `grove:"end_tick"       bson:"end_tick"`
	PricePerUnit int64     `grove:"price_per_unit" bson:"price_per_unit"`
	PurchasedAt  int64     `grove:"purchased_at"   bson:"purchased_at"`
	CreatedAt    time.Time `grove:"created_at"     bson:"created_at"`
}

func toSubscriptionModel(instanceID string, s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:           s.ID.String(),
		InstanceID:   instanceID,
		Account:      string(s.Account),
		StartTick:    int64(s.Start),
		EndTick:      int64(s.End),
		PricePerUnit: s.PricePerUnit,
		PurchasedAt:  int64(s.PurchasedAt),
		CreatedAt:    now(),
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription id: %w", err)
	}
	return &subscription.Subscription{
		ID:           subID,
		Account:      subscription.Account(m.Account),
		Start:        types.Tick(m.StartTick),
		End:          types.Tick(m.EndTick),
		PricePerUnit: m.PricePerUnit,
		PurchasedAt:  types.Tick(m.PurchasedAt),
	}, nil
}

// ==================== Timeline models ====================

type timelineModel struct {
	grove.BaseModel `grove:"table:tickledger_timeline"`

	Key        string `grove:"id,pk"       bson:"_id"`
	InstanceID string `grove:"instance_id" bson:"instance_id"`
	Tick       int64  `grove:"tick"        bson:"tick"`
	Delta      int64  `grove:"delta"       bson:"delta"`
}

// timelineKey is the document id of the entry for tick within an instance.
func timelineKey(instanceID string, tick int64) string {
	return fmt.Sprintf("%s:%d", instanceID, tick)
}

func toTimelineModel(instanceID string, e timeline.Entry) *timelineModel {
	return &timelineModel{
		Key:        timelineKey(instanceID, int64(e.Time)),
		InstanceID: instanceID,
		Tick:       int64(e.Time),
		Delta:      e.Delta,
	}
}

func fromTimelineModel(m *timelineModel) timeline.Entry {
	return timeline.Entry{Time: types.Tick(m.Tick), Delta: m.Delta}
}
