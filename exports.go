package tickledger

import (
	"github.com/xraph/tickledger/store"
	"github.com/xraph/tickledger/subscription"
	"github.com/xraph/tickledger/timeline"
	"github.com/xraph/tickledger/types"
)

// Re-export common types for convenience so users don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// Tick is re-exported from types package.
type Tick = types.Tick

// Account is re-exported from subscription package.
type Account = subscription.Account

// Subscription is re-exported from subscription package.
type Subscription = subscription.Subscription

// Entry is re-exported from timeline package.
type Entry = timeline.Entry

// Snapshot is re-exported from store package.
type Snapshot = store.Snapshot

// Re-export Money constructors
var (
	USD  = types.USD
	EUR  = types.EUR
	GBP  = types.GBP
	JPY  = types.JPY
	Zero = types.Zero
)
