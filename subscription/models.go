package subscription

import (
	"fmt"

	"github.com/xraph/tickledger/id"
	"github.com/xraph/tickledger/types"
)

// Account identifies the paying party. The engine treats it as opaque.
type Account string

// Status is the state of a subscription relative to a given tick.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

// Subscription is a purchased, immutable interval [Start, End) at a fixed
// per-unit price.
type Subscription struct {
	ID           id.SubscriptionID `json:"id"`
	Account      Account           `json:"account"`
	Start        types.Tick        `json:"start"`
	End          types.Tick        `json:"end"`
	PricePerUnit int64             `json:"price_per_unit"`
	PurchasedAt  types.Tick        `json:"purchased_at"`
}

// Units returns the number of ticks covered.
func (s *Subscription) Units() int64 {
	return int64(s.End - s.Start)
}

// Cost returns Units × PricePerUnit.
func (s *Subscription) Cost() (int64, error) {
	return types.MulInt64(s.Units(), s.PricePerUnit)
}

// Covers reports whether at lies in [Start, End).
func (s *Subscription) Covers(at types.Tick) bool {
	return s.Start <= at && at < s.End
}

// StatusAt returns the subscription's status at tick at.
func (s *Subscription) StatusAt(at types.Tick) Status {
	switch {
	case at < s.Start:
		return StatusPending
	case at < s.End:
		return StatusActive
	default:
		return StatusExpired
	}
}

// Validate checks the fields of a single subscription.
func (s *Subscription) Validate() error {
	if s.Account == "" {
		return fmt.Errorf("subscription %s: empty account", s.ID)
	}
	if s.End <= s.Start {
		return fmt.Errorf("subscription %s: end %d not after start %d", s.ID, s.End, s.Start)
	}
	if s.PricePerUnit <= 0 {
		return fmt.Errorf("subscription %s: non-positive price %d", s.ID, s.PricePerUnit)
	}
	if s.Start <= s.PurchasedAt {
		return fmt.Errorf("subscription %s: start %d not after purchase tick %d", s.ID, s.Start, s.PurchasedAt)
	}
	if _, err := s.Cost(); err != nil {
		return fmt.Errorf("subscription %s: cost: %w", s.ID, err)
	}
	return nil
}

// ListOpts filters History results.
type ListOpts struct {
	// Status keeps only subscriptions with this status at tick At.
	Status Status
	// At is the tick Status is evaluated at. The engine uses its current
	// tick when At is nil; the ledger uses tick zero.
	At     *types.Tick
	Limit  int
	Offset int
}
