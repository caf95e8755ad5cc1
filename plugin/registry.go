package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/plan"
)

// DefaultHookTimeout bounds a single hook call.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onEntitlementCreated  []OnEntitlementCreated
	onEntitlementUpgraded []OnEntitlementUpgraded
	onCreditConsumed      []OnCreditConsumed
	onCreditsExhausted    []OnCreditsExhausted
	onAccessChecked       []OnAccessChecked
	onPurchaseStarted     []OnPurchaseStarted
	onPurchaseCompleted   []OnPurchaseCompleted
	onPurchaseFailed      []OnPurchaseFailed
	onRemoteUnavailable   []OnRemoteUnavailable
	onRemoteFlushed       []OnRemoteFlushed
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

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnEntitlementCreated); ok {
		r.onEntitlementCreated = append(r.onEntitlementCreated, v)
	}
	if v, ok := p.(OnEntitlementUpgraded); ok {
		r.onEntitlementUpgraded = append(r.onEntitlementUpgraded, v)
	}
	if v, ok := p.(OnCreditConsumed); ok {
		r.onCreditConsumed = append(r.onCreditConsumed, v)
	}
	if v, ok := p.(OnCreditsExhausted); ok {
		r.onCreditsExhausted = append(r.onCreditsExhausted, v)
	}
	if v, ok := p.(OnAccessChecked); ok {
		r.onAccessChecked = append(r.onAccessChecked, v)
	}
	if v, ok := p.(OnPurchaseStarted); ok {
		r.onPurchaseStarted = append(r.onPurchaseStarted, v)
	}
	if v, ok := p.(OnPurchaseCompleted); ok {
		r.onPurchaseCompleted = append(r.onPurchaseCompleted, v)
	}
	if v, ok := p.(OnPurchaseFailed); ok {
		r.onPurchaseFailed = append(r.onPurchaseFailed, v)
	}
	if v, ok := p.(OnRemoteUnavailable); ok {
		r.onRemoteUnavailable = append(r.onRemoteUnavailable, v)
	}
	if v, ok := p.(OnRemoteFlushed); ok {
		r.onRemoteFlushed = append(r.onRemoteFlushed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	check := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	check(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	check(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	check(reflect.TypeOf((*OnEntitlementCreated)(nil)).Elem(), "OnEntitlementCreated")
	check(reflect.TypeOf((*OnEntitlementUpgraded)(nil)).Elem(), "OnEntitlementUpgraded")
	check(reflect.TypeOf((*OnCreditConsumed)(nil)).Elem(), "OnCreditConsumed")
	check(reflect.TypeOf((*OnCreditsExhausted)(nil)).Elem(), "OnCreditsExhausted")
	check(reflect.TypeOf((*OnAccessChecked)(nil)).Elem(), "OnAccessChecked")
	check(reflect.TypeOf((*OnPurchaseStarted)(nil)).Elem(), "OnPurchaseStarted")
	check(reflect.TypeOf((*OnPurchaseCompleted)(nil)).Elem(), "OnPurchaseCompleted")
	check(reflect.TypeOf((*OnPurchaseFailed)(nil)).Elem(), "OnPurchaseFailed")
	check(reflect.TypeOf((*OnRemoteUnavailable)(nil)).Elem(), "OnRemoteUnavailable")
	check(reflect.TypeOf((*OnRemoteFlushed)(nil)).Elem(), "OnRemoteFlushed")

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
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInit", func() error {
			return p.OnInit(ctx, engine)
		})
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnShutdown", func() error {
			return p.OnShutdown(ctx)
		})
	}
}

// EmitEntitlementCreated emits an entitlement created event.
func (r *Registry) EmitEntitlementCreated(ctx context.Context, e *entitlement.Entitlement) {
	r.mu.RLock()
	plugins := r.onEntitlementCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnEntitlementCreated", func() error {
			return p.OnEntitlementCreated(ctx, e)
		})
	}
}

// EmitEntitlementUpgraded emits an entitlement upgraded event.
func (r *Registry) EmitEntitlementUpgraded(ctx context.Context, e *entitlement.Entitlement, planID plan.ID) {
	r.mu.RLock()
	plugins := r.onEntitlementUpgraded
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnEntitlementUpgraded", func() error {
			return p.OnEntitlementUpgraded(ctx, e, planID)
		})
	}
}

// EmitCreditConsumed emits a credit consumed event.
func (r *Registry) EmitCreditConsumed(ctx context.Context, e *entitlement.Entitlement) {
	r.mu.RLock()
	plugins := r.onCreditConsumed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnCreditConsumed", func() error {
			return p.OnCreditConsumed(ctx, e)
		})
	}
}

// EmitCreditsExhausted emits a credits exhausted event.
func (r *Registry) EmitCreditsExhausted(ctx context.Context, userID, feature string) {
	r.mu.RLock()
	plugins := r.onCreditsExhausted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnCreditsExhausted", func() error {
			return p.OnCreditsExhausted(ctx, userID, feature)
		})
	}
}

// EmitAccessChecked emits an access checked event.
func (r *Registry) EmitAccessChecked(ctx context.Context, v *entitlement.Verdict) {
	r.mu.RLock()
	plugins := r.onAccessChecked
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnAccessChecked", func() error {
			return p.OnAccessChecked(ctx, v)
		})
	}
}

// EmitPurchaseStarted emits a purchase started event.
func (r *Registry) EmitPurchaseStarted(ctx context.Context, intent *payment.Intent) {
	r.mu.RLock()
	plugins := r.onPurchaseStarted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnPurchaseStarted", func() error {
			return p.OnPurchaseStarted(ctx, intent)
		})
	}
}

// EmitPurchaseCompleted emits a purchase completed event.
func (r *Registry) EmitPurchaseCompleted(ctx context.Context, intent *payment.Intent, e *entitlement.Entitlement) {
	r.mu.RLock()
	plugins := r.onPurchaseCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnPurchaseCompleted", func() error {
			return p.OnPurchaseCompleted(ctx, intent, e)
		})
	}
}

// EmitPurchaseFailed emits a purchase failed event.
func (r *Registry) EmitPurchaseFailed(ctx context.Context, intent *payment.Intent, err error) {
	r.mu.RLock()
	plugins := r.onPurchaseFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnPurchaseFailed", func() error {
			return p.OnPurchaseFailed(ctx, intent, err)
		})
	}
}

// EmitRemoteUnavailable emits a remote unavailable event.
func (r *Registry) EmitRemoteUnavailable(ctx context.Context, op, userID string, err error) {
	r.mu.RLock()
	plugins := r.onRemoteUnavailable
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnRemoteUnavailable", func() error {
			return p.OnRemoteUnavailable(ctx, op, userID, err)
		})
	}
}

// EmitRemoteFlushed emits a write-behind flush event.
func (r *Registry) EmitRemoteFlushed(ctx context.Context, count int, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onRemoteFlushed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnRemoteFlushed", func() error {
			return p.OnRemoteFlushed(ctx, count, elapsed)
		})
	}
}

func (r *Registry) dispatch(ctx context.Context, pluginName, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", pluginName,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block an access decision.
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
