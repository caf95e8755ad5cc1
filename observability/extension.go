// Package observability provides a metrics extension for credits that records
// lifecycle event counts via a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnEntitlementCreated  = (*MetricsExtension)(nil)
	_ plugin.OnEntitlementUpgraded = (*MetricsExtension)(nil)
	_ plugin.OnCreditConsumed      = (*MetricsExtension)(nil)
	_ plugin.OnCreditsExhausted    = (*MetricsExtension)(nil)
	_ plugin.OnAccessChecked       = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseStarted     = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseCompleted   = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseFailed      = (*MetricsExtension)(nil)
	_ plugin.OnRemoteUnavailable   = (*MetricsExtension)(nil)
	_ plugin.OnRemoteFlushed       = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a credits plugin to automatically track metering metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Entitlement metrics
	EntitlementCreated  Counter
	EntitlementUpgraded Counter
	UpgradedYearly      Counter

	// Metering metrics
	CreditsConsumed  Counter
	CreditsExhausted Counter
	AccessChecks     Counter
	AccessDenied     Counter

	// Purchase metrics
	PurchaseStarted   Counter
	PurchaseCompleted Counter
	PurchaseFailed    Counter
	PurchaseAmount    Histogram
	PurchaseLatency   Histogram

	// Remote store metrics
	RemoteUnavailable  Counter
	RemoteFlushed      Counter
	RemoteBatchSize    Histogram
	RemoteFlushLatency Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use NewPrometheusFactory for a Prometheus registry.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Entitlement metrics
		EntitlementCreated:  factory.Counter("credits.entitlement.created"),
		EntitlementUpgraded: factory.Counter("credits.entitlement.upgraded"),
		UpgradedYearly:      factory.Counter("credits.entitlement.upgraded.yearly"),

		// Metering metrics
		CreditsConsumed:  factory.Counter("credits.consumed"),
		CreditsExhausted: factory.Counter("credits.exhausted"),
		AccessChecks:     factory.Counter("credits.access.checks"),
		AccessDenied:     factory.Counter("credits.access.denied"),

		// Purchase metrics
		PurchaseStarted:   factory.Counter("credits.purchase.started"),
		PurchaseCompleted: factory.Counter("credits.purchase.completed"),
		PurchaseFailed:    factory.Counter("credits.purchase.failed"),
		PurchaseAmount:    factory.Histogram("credits.purchase.amount_minor"),
		PurchaseLatency:   factory.Histogram("credits.purchase.latency_ms"),

		// Remote store metrics
		RemoteUnavailable:  factory.Counter("credits.remote.unavailable"),
		RemoteFlushed:      factory.Counter("credits.remote.flushed"),
		RemoteBatchSize:    factory.Histogram("credits.remote.batch.size"),
		RemoteFlushLatency: factory.Histogram("credits.remote.flush.latency_ms"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Entitlement hooks
// ──────────────────────────────────────────────────

// OnEntitlementCreated implements plugin.OnEntitlementCreated.
func (m *MetricsExtension) OnEntitlementCreated(_ context.Context, _ *entitlement.Entitlement) error {
	m.EntitlementCreated.Inc()
	return nil
}

// OnEntitlementUpgraded implements plugin.OnEntitlementUpgraded.
func (m *MetricsExtension) OnEntitlementUpgraded(_ context.Context, _ *entitlement.Entitlement, planID plan.ID) error {
	m.EntitlementUpgraded.Inc()
	if planID == plan.Yearly {
		m.UpgradedYearly.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Metering hooks
// ──────────────────────────────────────────────────

// OnCreditConsumed implements plugin.OnCreditConsumed.
func (m *MetricsExtension) OnCreditConsumed(_ context.Context, _ *entitlement.Entitlement) error {
	m.CreditsConsumed.Inc()
	return nil
}

// OnCreditsExhausted implements plugin.OnCreditsExhausted.
func (m *MetricsExtension) OnCreditsExhausted(_ context.Context, _, _ string) error {
	m.CreditsExhausted.Inc()
	return nil
}

// OnAccessChecked implements plugin.OnAccessChecked.
func (m *MetricsExtension) OnAccessChecked(_ context.Context, v *entitlement.Verdict) error {
	m.AccessChecks.Inc()
	if !v.Allowed {
		m.AccessDenied.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnPurchaseStarted implements plugin.OnPurchaseStarted.
func (m *MetricsExtension) OnPurchaseStarted(_ context.Context, _ *payment.Intent) error {
	m.PurchaseStarted.Inc()
	return nil
}

// OnPurchaseCompleted implements plugin.OnPurchaseCompleted.
func (m *MetricsExtension) OnPurchaseCompleted(_ context.Context, intent *payment.Intent, _ *entitlement.Entitlement) error {
	m.PurchaseCompleted.Inc()
	m.PurchaseAmount.Observe(float64(intent.Pricing.Amount.Amount))
	m.PurchaseLatency.Observe(float64(intent.Age().Milliseconds()))
	return nil
}

// OnPurchaseFailed implements plugin.OnPurchaseFailed.
func (m *MetricsExtension) OnPurchaseFailed(_ context.Context, _ *payment.Intent, _ error) error {
	m.PurchaseFailed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Remote store hooks
// ──────────────────────────────────────────────────

// OnRemoteUnavailable implements plugin.OnRemoteUnavailable.
func (m *MetricsExtension) OnRemoteUnavailable(_ context.Context, _, _ string, _ error) error {
	m.RemoteUnavailable.Inc()
	return nil
}

// OnRemoteFlushed implements plugin.OnRemoteFlushed.
func (m *MetricsExtension) OnRemoteFlushed(_ context.Context, count int, elapsed time.Duration) error {
	m.RemoteFlushed.Add(float64(count))
	m.RemoteBatchSize.Observe(float64(count))
	m.RemoteFlushLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}
