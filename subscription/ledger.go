package subscription

import (
	"errors"
	"fmt"
	"sort"

	"github.com/xraph/tickledger/types"
)

// ErrUnknownAccount is returned by Last for accounts with no purchases.
var ErrUnknownAccount = errors.New("subscription: unknown account")

// Ledger holds each account's append-only sequence of intervals. It does not
// check overlap on Record; the engine guarantees it.
type Ledger struct {
	accounts map[Account][]*Subscription
	count    int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[Account][]*Subscription)}
}

// Record appends s to its account's history.
func (l *Ledger) Record(s *Subscription) {
	l.accounts[s.Account] = append(l.accounts[s.Account], s)
	l.count++
}

// IsActive reports whether account has an interval covering now. Intervals
// are scanned newest first; the first one starting at or before now decides.
func (l *Ledger) IsActive(account Account, now types.Tick) bool {
	subs := l.accounts[account]
	for i := len(subs) - 1; i >= 0; i-- {
		if subs[i].Start <= now {
			return subs[i].End > now
		}
	}
	return false
}

// Last returns the most recently recorded interval for account.
func (l *Ledger) Last(account Account) (*Subscription, error) {
	subs := l.accounts[account]
	if len(subs) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAccount, account)
	}
	return subs[len(subs)-1], nil
}

// History returns account's intervals in purchase order, filtered by opts.
func (l *Ledger) History(account Account, opts ListOpts) []*Subscription {
	var at types.Tick
	if opts.At != nil {
		at = *opts.At
	}

	var out []*Subscription
	for _, s := range l.accounts[account] {
		if opts.Status != "" && s.StatusAt(at) != opts.Status {
			continue
		}
		out = append(out, s)
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out
}

// Accounts returns every account with at least one interval, sorted.
func (l *Ledger) Accounts() []Account {
	out := make([]Account, 0, len(l.accounts))
	for a := range l.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// All returns every interval grouped by account in Accounts order.
func (l *Ledger) All() []*Subscription {
	out := make([]*Subscription, 0, l.count)
	for _, a := range l.Accounts() {
		out = append(out, l.accounts[a]...)
	}
	return out
}

// Len returns the total number of recorded intervals.
func (l *Ledger) Len() int { return l.count }

// Restore rebuilds a ledger from subs, which must be in per-account purchase
// order. Every violated invariant is reported.
func Restore(subs []*Subscription) (*Ledger, error) {
	l := NewLedger()
	seen := make(map[string]struct{}, len(subs))
	var errs []error
	for _, s := range subs {
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := seen[s.ID.String()]; dup {
			errs = append(errs, fmt.Errorf("subscription %s: duplicate id", s.ID))
			continue
		}
		seen[s.ID.String()] = struct{}{}
		if prev, err := l.Last(s.Account); err == nil {
			if s.Start < prev.End {
				errs = append(errs, fmt.Errorf("subscription %s: start %d overlaps %s ending %d",
					s.ID, s.Start, prev.ID, prev.End))
				continue
			}
			if s.PurchasedAt < prev.PurchasedAt {
				errs = append(errs, fmt.Errorf("subscription %s: purchased at %d before %s at %d",
					s.ID, s.PurchasedAt, prev.ID, prev.PurchasedAt))
				continue
			}
		}
		l.Record(s)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return l, nil
}
