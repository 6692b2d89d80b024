// Package timeline keeps the ordered schedule of price-rate changes.
//
// Every purchase contributes two entries: +price at the tick its interval
// starts and -price at the tick it ends. Entries are keyed by tick, merged on
// collision, and drained from the front by the settlement sweep.
package timeline

import (
	"errors"
	"fmt"
	"iter"

	"github.com/google/btree"

	"github.com/xraph/tickledger/types"
)

// degree of the backing B-tree. 32 keeps nodes around a cache line multiple
// for the 16-byte entries stored here.
const degree = 32

var (
	// ErrPrefixOutOfRange is returned when removing more entries than exist.
	ErrPrefixOutOfRange = errors.New("timeline: prefix longer than timeline")

	// ErrUnsettledEntry is returned when a removal would drop an entry that
	// lies after the settled tick.
	ErrUnsettledEntry = errors.New("timeline: prefix contains unsettled entry")

	// ErrOutOfOrder is returned by Restore for unsorted or duplicate ticks.
	ErrOutOfOrder = errors.New("timeline: entries not strictly increasing")
)

// Entry is the net rate change scheduled at one tick.
type Entry struct {
	Time  types.Tick `json:"time"`
	Delta int64      `json:"delta"`
}

func less(a, b Entry) bool { return a.Time < b.Time }

// Timeline is an ordered map from tick to signed rate delta.
// It is not safe for concurrent use; the engine serializes access.
type Timeline struct {
	tree *btree.BTreeG[Entry]
}

// New returns an empty timeline.
func New() *Timeline {
	return &Timeline{tree: btree.NewG(degree, less)}
}

// Restore rebuilds a timeline from entries in strictly increasing tick order.
func Restore(entries []Entry) (*Timeline, error) {
	t := New()
	for i, e := range entries {
		if i > 0 && e.Time <= entries[i-1].Time {
			return nil, fmt.Errorf("%w: tick %d after %d", ErrOutOfOrder, e.Time, entries[i-1].Time)
		}
		t.tree.ReplaceOrInsert(e)
	}
	return t, nil
}

// Accumulate adds amount to the entry at tick at, creating it when absent.
// On overflow the timeline is left unchanged.
func (t *Timeline) Accumulate(at types.Tick, amount int64) error {
	current, _ := t.tree.Get(Entry{Time: at})
	delta, err := types.AddInt64(current.Delta, amount)
	if err != nil {
		return fmt.Errorf("timeline: accumulate at tick %d: %w", at, err)
	}
	t.tree.ReplaceOrInsert(Entry{Time: at, Delta: delta})
	return nil
}

// Get returns the delta scheduled at tick at.
func (t *Timeline) Get(at types.Tick) (int64, bool) {
	e, ok := t.tree.Get(Entry{Time: at})
	return e.Delta, ok
}

// First returns the earliest entry.
func (t *Timeline) First() (Entry, bool) {
	return t.tree.Min()
}

// Len returns the number of distinct ticks with a scheduled change.
func (t *Timeline) Len() int { return t.tree.Len() }

// UpTo yields entries with Time <= limit in increasing tick order. The
// sequence is lazy and may be ranged over again from the start.
// The timeline must not be modified while the sequence is being consumed.
func (t *Timeline) UpTo(limit types.Tick) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		t.tree.Ascend(func(e Entry) bool {
			if e.Time > limit {
				return false
			}
			return yield(e)
		})
	}
}

// CountUpTo returns how many entries have Time <= limit.
func (t *Timeline) CountUpTo(limit types.Tick) int {
	n := 0
	for range t.UpTo(limit) {
		n++
	}
	return n
}

// RemovePrefix drops the first count entries. Every removed entry must have
// Time <= settled; otherwise nothing is removed.
func (t *Timeline) RemovePrefix(count int, settled types.Tick) error {
	if count < 0 || count > t.tree.Len() {
		return fmt.Errorf("%w: remove %d of %d", ErrPrefixOutOfRange, count, t.tree.Len())
	}
	if count == 0 {
		return nil
	}

	seen := 0
	var violation *Entry
	t.tree.Ascend(func(e Entry) bool {
		if e.Time > settled {
			violation = &e
			return false
		}
		seen++
		return seen < count
	})
	if violation != nil {
		return fmt.Errorf("%w: tick %d after settled tick %d", ErrUnsettledEntry, violation.Time, settled)
	}

	for i := 0; i < count; i++ {
		t.tree.DeleteMin()
	}
	return nil
}

// Entries returns a copy of all entries in tick order.
func (t *Timeline) Entries() []Entry {
	out := make([]Entry, 0, t.tree.Len())
	t.tree.Ascend(func(e Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// Sum returns the total of all pending deltas.
func (t *Timeline) Sum() (int64, error) {
	var (
		sum int64
		err error
	)
	t.tree.Ascend(func(e Entry) bool {
		sum, err = types.AddInt64(sum, e.Delta)
		return err == nil
	})
	return sum, err
}

// Clone returns an independent copy. The copy shares nodes with t until
// either side is written, so cloning is O(1).
func (t *Timeline) Clone() *Timeline {
	return &Timeline{tree: t.tree.Clone()}
}
