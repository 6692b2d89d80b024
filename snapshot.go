package tickledger

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/xraph/tickledger/collector"
	"github.com/xraph/tickledger/store"
	"github.com/xraph/tickledger/subscription"
	"github.com/xraph/tickledger/timeline"
	"github.com/xraph/tickledger/types"
)

// Snapshot returns a deep copy of the engine state.
func (e *Engine) Snapshot() *store.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	return &store.Snapshot{
		InstanceID:    e.instanceID,
		Currency:      e.currency,
		CurrentTime:   e.now,
		PricePerUnit:  e.price,
		Collector:     e.collector.State(),
		Subscriptions: copySubscriptions(e.ledger.All()),
		Timeline:      e.timeline.Entries(),
	}
}

// Restore replaces the engine state with snap. Every ledger invariant is
// checked first; on any violation Restore returns ErrCorruptSnapshot listing
// all of them and the engine is left unchanged.
func (e *Engine) Restore(snap *store.Snapshot) error {
	if snap == nil {
		return ValidationError{Field: "snapshot", Message: "must not be nil"}
	}
	if snap.InstanceID.String() != e.instanceID.String() {
		return fmt.Errorf("%w: snapshot %s, engine %s", ErrInstanceMismatch, snap.InstanceID, e.instanceID)
	}
	if snap.Currency != e.currency {
		return fmt.Errorf("%w: snapshot in %q, engine in %q", ErrCurrencyMismatch, snap.Currency, e.currency)
	}

	r, err := rebuild(snap)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.now = snap.CurrentTime
	e.price = snap.PricePerUnit
	e.collector = r.collector
	e.timeline = r.timeline
	e.ledger = r.ledger
	e.mu.Unlock()

	e.logger.Info("snapshot restored",
		"instance_id", snap.InstanceID.String(),
		"current_time", snap.CurrentTime,
		"subscriptions", len(snap.Subscriptions),
		"pending_entries", len(snap.Timeline),
	)
	return nil
}

type rebuilt struct {
	collector *collector.Collector
	timeline  *timeline.Timeline
	ledger    *subscription.Ledger
}

func rebuild(snap *store.Snapshot) (*rebuilt, error) {
	var errs MultiError
	settled := snap.Collector.LastSettled

	if snap.PricePerUnit < 0 {
		errs.Add(fmt.Errorf("price per unit %d is negative", snap.PricePerUnit))
	}
	if settled > snap.CurrentTime {
		errs.Add(fmt.Errorf("last settled tick %d after current tick %d", settled, snap.CurrentTime))
	}

	c, err := collector.Restore(snap.Collector)
	errs.Add(err)

	tl, err := timeline.Restore(snap.Timeline)
	errs.Add(err)
	for _, entry := range snap.Timeline {
		if entry.Time <= settled {
			errs.Add(fmt.Errorf("timeline entry at tick %d not after last settled tick %d", entry.Time, settled))
		}
	}
	if tl != nil {
		sum, err := tl.Sum()
		if err == nil {
			sum, err = types.AddInt64(sum, snap.Collector.Rate)
		}
		switch {
		case err != nil:
			errs.Add(fmt.Errorf("rate plus pending deltas: %w", err))
		case sum != 0:
			errs.Add(fmt.Errorf("rate %d plus pending deltas is %d, want 0", snap.Collector.Rate, sum))
		}
	}

	var l *subscription.Ledger
	if slices.Contains(snap.Subscriptions, nil) {
		errs.Add(errors.New("nil subscription"))
	} else {
		l, err = subscription.Restore(snap.Subscriptions)
		errs.Add(err)
		for _, s := range snap.Subscriptions {
			if s.PurchasedAt > snap.CurrentTime {
				errs.Add(fmt.Errorf("subscription %s purchased at %d after current tick %d", s.ID, s.PurchasedAt, snap.CurrentTime))
			}
		}
		errs.Add(checkSchedule(snap))
	}

	if errs.HasErrors() {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, errs)
	}
	return &rebuilt{collector: c, timeline: tl, ledger: l}, nil
}

// checkSchedule recomputes the rate, pending deltas and prepaid balance the
// subscriptions imply and compares them with the snapshot.
func checkSchedule(snap *store.Snapshot) error {
	settled := snap.Collector.LastSettled

	var (
		rate int64
		owed int64
		want = make(map[types.Tick]int64)
	)
	for _, s := range snap.Subscriptions {
		if s.End <= settled {
			continue
		}
		left, err := s.End.Since(types.MaxTick(s.Start, settled))
		var cost int64
		if err == nil {
			cost, err = types.MulInt64(s.PricePerUnit, left)
		}
		if err == nil {
			owed, err = types.AddInt64(owed, cost)
		}
		if err == nil {
			if s.Start <= settled {
				rate, err = types.AddInt64(rate, s.PricePerUnit)
			} else {
				want[s.Start], err = types.AddInt64(want[s.Start], s.PricePerUnit)
			}
		}
		if err == nil {
			want[s.End], err = types.SubInt64(want[s.End], s.PricePerUnit)
		}
		if err != nil {
			return fmt.Errorf("subscription %s: %w", s.ID, err)
		}
	}

	var errs MultiError
	if rate != snap.Collector.Rate {
		errs.Add(fmt.Errorf("collector rate %d, subscriptions in progress pay %d", snap.Collector.Rate, rate))
	}
	if owed > snap.Collector.Pooled {
		errs.Add(fmt.Errorf("pooled balance %d does not cover %d owed for unsettled ticks", snap.Collector.Pooled, owed))
	}

	got := make(map[types.Tick]int64, len(snap.Timeline))
	for _, entry := range snap.Timeline {
		got[entry.Time] = entry.Delta
	}
	for _, t := range slices.Sorted(maps.Keys(want)) {
		if d, ok := got[t]; !ok || d != want[t] {
			errs.Add(fmt.Errorf("timeline delta at tick %d is %d, subscriptions imply %d", t, d, want[t]))
		}
	}
	for _, t := range slices.Sorted(maps.Keys(got)) {
		if _, ok := want[t]; !ok {
			errs.Add(fmt.Errorf("timeline entry at tick %d matches no subscription boundary", t))
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
