package tickledger

import (
	"context"
	"fmt"

	"github.com/xraph/tickledger/id"
	"github.com/xraph/tickledger/subscription"
	"github.com/xraph/tickledger/timeline"
	"github.com/xraph/tickledger/types"
)

// Purchase is the outcome of an accepted TopOff.
type Purchase struct {
	ID           id.PurchaseID
	Subscription *Subscription
	Units        int64

	// Accepted is the full amount added to the pooled balance.
	Accepted Money
	// Cost is Units × price; Accepted − Cost is Remainder.
	Cost Money
	// Remainder is the part of Accepted that bought no whole unit. It stays
	// pooled; callers may refund it.
	Remainder Money
}

// Settlement is the outcome of one Collect call.
type Settlement struct {
	ID id.SettlementID

	// From and To are the last settled ticks before and after the sweep.
	From Tick
	To   Tick
	// At is the current tick when the sweep ran.
	At Tick

	// Processed counts the timeline entries folded.
	Processed int
	// Deferred counts due entries left for the next call, at most
	// MaxSweepEntries. It is zero when Complete.
	Deferred int
	Complete bool

	Fee  Money
	Rate Money
}

// Balances is a read-only view of the collector.
type Balances struct {
	Pooled      Money
	Service     Money
	Rate        Money
	LastSettled Tick
}

// ──────────────────────────────────────────────────
// Operator
// ──────────────────────────────────────────────────

// SetPricePerUnit sets the price charged per tick for future purchases.
// Existing intervals keep the price they were bought at.
func (e *Engine) SetPricePerUnit(ctx context.Context, role Role, price Money) error {
	if err := e.authorize(ctx, role, ActionSetPrice); err != nil {
		e.logger.Warn("set price refused", "role", role, "error", err)
		return err
	}
	if price.Currency != e.currency {
		return fmt.Errorf("%w: price in %q, engine in %q", ErrCurrencyMismatch, price.Currency, e.currency)
	}
	if !price.IsPositive() {
		return ValidationError{Field: "price", Message: "must be positive"}
	}

	e.mu.Lock()
	old := e.money(e.price)
	e.price = price.Amount
	e.mu.Unlock()

	e.logger.Debug("price per unit set", "old", old, "new", price)
	e.plugins.EmitPriceChanged(ctx, old, price)
	return nil
}

// AdvanceTime moves current time forward to t. Time never moves backwards
// and never stands still.
func (e *Engine) AdvanceTime(ctx context.Context, t Tick) error {
	e.mu.Lock()
	from := e.now
	if t <= from {
		e.mu.Unlock()
		return fmt.Errorf("%w: %d is not after %d", ErrNonMonotonicTime, t, from)
	}
	e.now = t
	e.mu.Unlock()

	e.logger.Debug("time advanced", "from", from, "to", t)
	e.plugins.EmitTimeAdvanced(ctx, int64(from), int64(t))
	return nil
}

// ──────────────────────────────────────────────────
// Subscriber
// ──────────────────────────────────────────────────

// TopOff buys as many whole ticks as amount covers at the current price and
// appends them to account's coverage, starting at the next tick or where the
// account's last interval ends, whichever is later.
func (e *Engine) TopOff(ctx context.Context, account Account, amount Money) (*Purchase, error) {
	p, err := e.topOff(account, amount)
	if err != nil {
		e.logger.Debug("top-off rejected", "account", account, "amount", amount, "error", err)
		e.plugins.EmitTopOffRejected(ctx, string(account), amount, err)
		return nil, err
	}

	e.logger.Debug("top-off accepted",
		"account", account,
		"purchase_id", p.ID.String(),
		"start", p.Subscription.Start,
		"end", p.Subscription.End,
		"units", p.Units,
		"remainder", p.Remainder,
	)
	e.plugins.EmitToppedOff(ctx, p)
	return p, nil
}

func (e *Engine) topOff(account Account, amount Money) (*Purchase, error) {
	if account == "" {
		return nil, ValidationError{Field: "account", Message: "must not be empty"}
	}
	if amount.Currency != e.currency {
		return nil, fmt.Errorf("%w: amount in %q, engine in %q", ErrCurrencyMismatch, amount.Currency, e.currency)
	}
	if amount.IsNegative() {
		return nil, ValidationError{Field: "amount", Message: "must not be negative"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.price == 0 {
		return nil, ErrPriceNotSet
	}
	price := e.money(e.price)

	units, remainder, err := amount.Quotient(price)
	if err != nil {
		return nil, fmt.Errorf("tickledger: units for %s: %w", amount, err)
	}
	if units == 0 {
		return nil, fmt.Errorf("%w: %s at %s per unit", ErrSubMinimumPurchase, amount, price)
	}
	cost, err := price.Multiply(units)
	if err != nil {
		return nil, fmt.Errorf("tickledger: cost: %w", err)
	}

	start, err := e.now.Next()
	if err != nil {
		return nil, fmt.Errorf("tickledger: interval start: %w", err)
	}
	if last, err := e.ledger.Last(account); err == nil {
		start = types.MaxTick(start, last.End)
	}
	end, err := start.Plus(units)
	if err != nil {
		return nil, fmt.Errorf("tickledger: interval end: %w", err)
	}

	c := e.collector.Clone()
	if err := c.Deposit(amount.Amount); err != nil {
		return nil, fmt.Errorf("tickledger: deposit: %w", err)
	}
	tl := e.timeline.Clone()
	if err := tl.Accumulate(start, e.price); err != nil {
		return nil, err
	}
	if err := tl.Accumulate(end, -e.price); err != nil {
		return nil, err
	}

	sub := &subscription.Subscription{
		ID:           id.NewSubscriptionID(),
		Account:      account,
		Start:        start,
		End:          end,
		PricePerUnit: e.price,
		PurchasedAt:  e.now,
	}
	e.ledger.Record(sub)
	e.collector, e.timeline = c, tl

	view := *sub
	return &Purchase{
		ID:           id.NewPurchaseID(),
		Subscription: &view,
		Units:        units,
		Accepted:     amount,
		Cost:         cost,
		Remainder:    remainder,
	}, nil
}

// IsActive reports whether account is covered at the current tick.
func (e *Engine) IsActive(account Account) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.IsActive(account, e.now)
}

// ──────────────────────────────────────────────────
// Settlement
// ──────────────────────────────────────────────────

// Collect folds due timeline entries into the collector, at most
// MaxSweepEntries per call, then settles up to current time. When the cap
// stops the sweep early the final settlement is skipped and the Settlement
// is not Complete; calling Collect again continues where it stopped.
//
// Collect is idempotent while time stands still.
func (e *Engine) Collect(ctx context.Context) (*Settlement, error) {
	s, err := e.collect()
	if err != nil {
		e.logger.Error("collect failed", "error", err)
		return nil, err
	}

	e.logger.Debug("collected",
		"settlement_id", s.ID.String(),
		"from", s.From,
		"to", s.To,
		"processed", s.Processed,
		"fee", s.Fee,
		"complete", s.Complete,
	)
	e.plugins.EmitCollected(ctx, s)
	if !s.Complete {
		e.plugins.EmitSweepDeferred(ctx, s, s.Deferred)
	}
	return s, nil
}

func (e *Engine) collect() (*Settlement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.collector.Clone()
	from := c.State().LastSettled

	var (
		fee       int64
		processed int
		deferred  int
	)
	for entry := range e.timeline.UpTo(e.now) {
		if processed == e.maxSweepEntries {
			deferred++
			if deferred == e.maxSweepEntries {
				break
			}
			continue
		}

		charged, err := c.SettleTo(entry.Time)
		if err != nil {
			return nil, fmt.Errorf("tickledger: settle to tick %d: %w", entry.Time, err)
		}
		if fee, err = types.AddInt64(fee, charged); err != nil {
			return nil, fmt.Errorf("tickledger: sweep fee: %w", err)
		}
		if err := c.ApplyRateDelta(entry.Delta); err != nil {
			return nil, fmt.Errorf("tickledger: fold tick %d: %w", entry.Time, err)
		}
		processed++
	}

	tl := e.timeline
	if processed > 0 {
		tl = e.timeline.Clone()
		if err := tl.RemovePrefix(processed, c.State().LastSettled); err != nil {
			return nil, fmt.Errorf("tickledger: drop folded entries: %w", err)
		}
	}

	if deferred == 0 {
		charged, err := c.SettleTo(e.now)
		if err != nil {
			return nil, fmt.Errorf("tickledger: settle to tick %d: %w", e.now, err)
		}
		if fee, err = types.AddInt64(fee, charged); err != nil {
			return nil, fmt.Errorf("tickledger: sweep fee: %w", err)
		}
	}

	e.collector, e.timeline = c, tl

	st := c.State()
	return &Settlement{
		ID:        id.NewSettlementID(),
		From:      from,
		To:        st.LastSettled,
		At:        e.now,
		Processed: processed,
		Deferred:  deferred,
		Complete:  deferred == 0,
		Fee:       e.money(fee),
		Rate:      e.money(st.Rate),
	}, nil
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// InstanceID returns the identifier snapshots are stored under.
func (e *Engine) InstanceID() id.InstanceID { return e.instanceID }

// Currency returns the engine currency.
func (e *Engine) Currency() string { return e.currency }

// MaxSweepEntries returns the per-call sweep bound.
func (e *Engine) MaxSweepEntries() int { return e.maxSweepEntries }

// CurrentTime returns the current tick.
func (e *Engine) CurrentTime() Tick {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// PricePerUnit returns the current price and whether one has been set.
func (e *Engine) PricePerUnit() (Money, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.money(e.price), e.price > 0
}

// Balances returns the collector balances.
func (e *Engine) Balances() Balances {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.collector.State()
	return Balances{
		Pooled:      e.money(st.Pooled),
		Service:     e.money(st.Service),
		Rate:        e.money(st.Rate),
		LastSettled: st.LastSettled,
	}
}

// Subscriptions returns account's intervals in purchase order.
func (e *Engine) Subscriptions(account Account) []*Subscription {
	return e.History(account, subscription.ListOpts{})
}

// History returns account's intervals filtered by opts. A Status filter
// without At is evaluated at the current tick.
func (e *Engine) History(account Account, opts subscription.ListOpts) []*Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	if opts.Status != "" && opts.At == nil {
		now := e.now
		opts.At = &now
	}
	return copySubscriptions(e.ledger.History(account, opts))
}

// Accounts returns every account that has bought time, sorted.
func (e *Engine) Accounts() []Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Accounts()
}

// PendingEntries returns the unfolded timeline entries in tick order.
func (e *Engine) PendingEntries() []timeline.Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timeline.Entries()
}

func (e *Engine) money(amount int64) Money {
	return Money{Amount: amount, Currency: e.currency}
}

func copySubscriptions(subs []*Subscription) []*Subscription {
	out := make([]*Subscription, len(subs))
	for i, s := range subs {
		c := *s
		out[i] = &c
	}
	return out
}
