// Package plugin provides an extensible plugin system for the tickledger engine.
// Plugins can hook into lifecycle and accounting events to extend functionality.
//
// Hook payloads are passed as interface{} so this package does not depend on
// the engine; the concrete types are documented on each hook.
package plugin

import "context"

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. e is the *tickledger.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, e interface{}) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// OnCheckpoint is called after every snapshot save attempt. err is nil on
// success.
type OnCheckpoint interface {
	Plugin
	OnCheckpoint(ctx context.Context, instanceID string, err error) error
}

// ──────────────────────────────────────────────────
// Operator hooks
// ──────────────────────────────────────────────────

// OnPriceChanged is called after the per-unit price changes. Both prices are
// types.Money; oldPrice is zero when no price was set before.
type OnPriceChanged interface {
	Plugin
	OnPriceChanged(ctx context.Context, oldPrice, newPrice interface{}) error
}

// OnTimeAdvanced is called after current time moves forward.
type OnTimeAdvanced interface {
	Plugin
	OnTimeAdvanced(ctx context.Context, from, to int64) error
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnToppedOff is called after a purchase is accepted. purchase is a
// *tickledger.Purchase.
type OnToppedOff interface {
	Plugin
	OnToppedOff(ctx context.Context, purchase interface{}) error
}

// OnTopOffRejected is called when a purchase is refused. amount is
// types.Money.
type OnTopOffRejected interface {
	Plugin
	OnTopOffRejected(ctx context.Context, account string, amount interface{}, reason error) error
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnCollected is called after every successful settlement sweep. settlement
// is a *tickledger.Settlement.
type OnCollected interface {
	Plugin
	OnCollected(ctx context.Context, settlement interface{}) error
}

// OnSweepDeferred is called when a sweep stopped at its entry cap with due
// entries left for the next call.
type OnSweepDeferred interface {
	Plugin
	OnSweepDeferred(ctx context.Context, settlement interface{}, remaining int) error
}
