package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// DefaultHookTimeout bounds a single plugin hook call.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit           []OnInit
	onShutdown       []OnShutdown
	onCheckpoint     []OnCheckpoint
	onPriceChanged   []OnPriceChanged
	onTimeAdvanced   []OnTimeAdvanced
	onToppedOff      []OnToppedOff
	onTopOffRejected []OnTopOffRejected
	onCollected      []OnCollected
	onSweepDeferred  []OnSweepDeferred
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnCheckpoint); ok {
		r.onCheckpoint = append(r.onCheckpoint, v)
	}
	if v, ok := p.(OnPriceChanged); ok {
		r.onPriceChanged = append(r.onPriceChanged, v)
	}
	if v, ok := p.(OnTimeAdvanced); ok {
		r.onTimeAdvanced = append(r.onTimeAdvanced, v)
	}
	if v, ok := p.(OnToppedOff); ok {
		r.onToppedOff = append(r.onToppedOff, v)
	}
	if v, ok := p.(OnTopOffRejected); ok {
		r.onTopOffRejected = append(r.onTopOffRejected, v)
	}
	if v, ok := p.(OnCollected); ok {
		r.onCollected = append(r.onCollected, v)
	}
	if v, ok := p.(OnSweepDeferred); ok {
		r.onSweepDeferred = append(r.onSweepDeferred, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnCheckpoint)(nil)).Elem(), "OnCheckpoint")
	checkInterface(reflect.TypeOf((*OnPriceChanged)(nil)).Elem(), "OnPriceChanged")
	checkInterface(reflect.TypeOf((*OnTimeAdvanced)(nil)).Elem(), "OnTimeAdvanced")
	checkInterface(reflect.TypeOf((*OnToppedOff)(nil)).Elem(), "OnToppedOff")
	checkInterface(reflect.TypeOf((*OnTopOffRejected)(nil)).Elem(), "OnTopOffRejected")
	checkInterface(reflect.TypeOf((*OnCollected)(nil)).Elem(), "OnCollected")
	checkInterface(reflect.TypeOf((*OnSweepDeferred)(nil)).Elem(), "OnSweepDeferred")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCheckpoint emits a checkpoint event.
func (r *Registry) EmitCheckpoint(ctx context.Context, instanceID string, saveErr error) {
	r.mu.RLock()
	plugins := r.onCheckpoint
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCheckpoint(ctx, instanceID, saveErr)
		}); err != nil {
			r.logger.Warn("plugin OnCheckpoint failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPriceChanged emits a price changed event.
func (r *Registry) EmitPriceChanged(ctx context.Context, oldPrice, newPrice interface{}) {
	r.mu.RLock()
	plugins := r.onPriceChanged
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPriceChanged(ctx, oldPrice, newPrice)
		}); err != nil {
			r.logger.Warn("plugin OnPriceChanged failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitTimeAdvanced emits a time advanced event.
func (r *Registry) EmitTimeAdvanced(ctx context.Context, from, to int64) {
	r.mu.RLock()
	plugins := r.onTimeAdvanced
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTimeAdvanced(ctx, from, to)
		}); err != nil {
			r.logger.Warn("plugin OnTimeAdvanced failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitToppedOff emits a purchase accepted event.
func (r *Registry) EmitToppedOff(ctx context.Context, purchase interface{}) {
	r.mu.RLock()
	plugins := r.onToppedOff
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnToppedOff(ctx, purchase)
		}); err != nil {
			r.logger.Warn("plugin OnToppedOff failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitTopOffRejected emits a purchase rejected event.
func (r *Registry) EmitTopOffRejected(ctx context.Context, account string, amount interface{}, reason error) {
	r.mu.RLock()
	plugins := r.onTopOffRejected
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTopOffRejected(ctx, account, amount, reason)
		}); err != nil {
			r.logger.Warn("plugin OnTopOffRejected failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCollected emits a settlement event.
func (r *Registry) EmitCollected(ctx context.Context, settlement interface{}) {
	r.mu.RLock()
	plugins := r.onCollected
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCollected(ctx, settlement)
		}); err != nil {
			r.logger.Warn("plugin OnCollected failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSweepDeferred emits a deferred sweep event.
func (r *Registry) EmitSweepDeferred(ctx context.Context, settlement interface{}, remaining int) {
	r.mu.RLock()
	plugins := r.onSweepDeferred
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSweepDeferred(ctx, settlement, remaining)
		}); err != nil {
			r.logger.Warn("plugin OnSweepDeferred failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the settlement pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
