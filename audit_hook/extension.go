// Package audithook bridges tickledger accounting events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not import an
// audit backend directly. Callers inject a RecorderFunc adapter, or use
// NewJSONRecorder to append events to a writer.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/tickledger"
	"github.com/xraph/tickledger/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin           = (*Extension)(nil)
	_ plugin.OnInit           = (*Extension)(nil)
	_ plugin.OnShutdown       = (*Extension)(nil)
	_ plugin.OnCheckpoint     = (*Extension)(nil)
	_ plugin.OnPriceChanged   = (*Extension)(nil)
	_ plugin.OnTimeAdvanced   = (*Extension)(nil)
	_ plugin.OnToppedOff      = (*Extension)(nil)
	_ plugin.OnTopOffRejected = (*Extension)(nil)
	_ plugin.OnCollected      = (*Extension)(nil)
	_ plugin.OnSweepDeferred  = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges engine events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit implements plugin.OnInit.
func (e *Extension) OnInit(ctx context.Context, engine interface{}) error {
	var instanceID string
	if eng, ok := engine.(*tickledger.Engine); ok {
		instanceID = eng.InstanceID().String()
	}
	return e.record(ctx, ActionEngineStarted, SeverityInfo, OutcomeSuccess,
		ResourceEngine, instanceID, CategoryOperations, nil,
	)
}

// OnShutdown implements plugin.OnShutdown.
func (e *Extension) OnShutdown(ctx context.Context) error {
	return e.record(ctx, ActionEngineStopped, SeverityInfo, OutcomeSuccess,
		ResourceEngine, "", CategoryOperations, nil,
	)
}

// OnCheckpoint implements plugin.OnCheckpoint.
func (e *Extension) OnCheckpoint(ctx context.Context, instanceID string, err error) error {
	if err != nil {
		return e.record(ctx, ActionCheckpointFailed, SeverityError, OutcomeFailure,
			ResourceSnapshot, instanceID, CategoryPersistence, err,
		)
	}
	return e.record(ctx, ActionCheckpointSaved, SeverityInfo, OutcomeSuccess,
		ResourceSnapshot, instanceID, CategoryPersistence, nil,
	)
}

// ──────────────────────────────────────────────────
// Operator hooks
// ──────────────────────────────────────────────────

// OnPriceChanged implements plugin.OnPriceChanged.
func (e *Extension) OnPriceChanged(ctx context.Context, oldPrice, newPrice interface{}) error {
	return e.record(ctx, ActionPriceChanged, SeverityInfo, OutcomeSuccess,
		ResourcePrice, "", CategoryBilling, nil,
		"old_price", amount(oldPrice),
		"new_price", amount(newPrice),
	)
}

// OnTimeAdvanced implements plugin.OnTimeAdvanced.
func (e *Extension) OnTimeAdvanced(ctx context.Context, from, to int64) error {
	return e.record(ctx, ActionTimeAdvanced, SeverityInfo, OutcomeSuccess,
		ResourceClock, "", CategoryOperations, nil,
		"from", from,
		"to", to,
	)
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnToppedOff implements plugin.OnToppedOff.
func (e *Extension) OnToppedOff(ctx context.Context, purchase interface{}) error {
	p, ok := purchase.(*tickledger.Purchase)
	if !ok {
		return e.record(ctx, ActionTopOffAccepted, SeverityInfo, OutcomeSuccess,
			ResourceSubscription, "", CategorySubscription, nil,
		)
	}
	return e.record(ctx, ActionTopOffAccepted, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, p.Subscription.ID.String(), CategorySubscription, nil,
		"purchase_id", p.ID.String(),
		"account", string(p.Subscription.Account),
		"start", int64(p.Subscription.Start),
		"end", int64(p.Subscription.End),
		"units", p.Units,
		"accepted", p.Accepted.Amount,
		"remainder", p.Remainder.Amount,
		"currency", p.Accepted.Currency,
	)
}

// OnTopOffRejected implements plugin.OnTopOffRejected.
func (e *Extension) OnTopOffRejected(ctx context.Context, account string, amt interface{}, reason error) error {
	return e.record(ctx, ActionTopOffRejected, SeverityWarning, OutcomeFailure,
		ResourceSubscription, "", CategorySubscription, reason,
		"account", account,
		"amount", amount(amt),
	)
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnCollected implements plugin.OnCollected.
func (e *Extension) OnCollected(ctx context.Context, settlement interface{}) error {
	s, ok := settlement.(*tickledger.Settlement)
	if !ok {
		return e.record(ctx, ActionCollected, SeverityInfo, OutcomeSuccess,
			ResourceSettlement, "", CategoryBilling, nil,
		)
	}
	outcome := OutcomeSuccess
	if !s.Complete {
		outcome = OutcomePartial
	}
	return e.record(ctx, ActionCollected, SeverityInfo, outcome,
		ResourceSettlement, s.ID.String(), CategoryBilling, nil,
		"from", int64(s.From),
		"to", int64(s.To),
		"at", int64(s.At),
		"processed", s.Processed,
		"fee", s.Fee.Amount,
		"rate", s.Rate.Amount,
		"currency", s.Fee.Currency,
	)
}

// OnSweepDeferred implements plugin.OnSweepDeferred.
func (e *Extension) OnSweepDeferred(ctx context.Context, settlement interface{}, remaining int) error {
	var settlementID string
	if s, ok := settlement.(*tickledger.Settlement); ok {
		settlementID = s.ID.String()
	}
	return e.record(ctx, ActionSweepDeferred, SeverityWarning, OutcomePartial,
		ResourceSettlement, settlementID, CategoryBilling, nil,
		"remaining", remaining,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// amount renders a Money payload, falling back to fmt for anything else.
func amount(v interface{}) any {
	if m, ok := v.(tickledger.Money); ok {
		return m.Amount
	}
	return fmt.Sprintf("%v", v)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
