// Package plugin provides an extensible plugin system for credits.
// Plugins can hook into entitlement, metering and purchase events to extend
// functionality.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/plan"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Entitlement hooks
// ──────────────────────────────────────────────────

// OnEntitlementCreated is called when a default entitlement is synthesized
// for a user seen for the first time.
type OnEntitlementCreated interface {
	Plugin
	OnEntitlementCreated(ctx context.Context, e *entitlement.Entitlement) error
}

// OnEntitlementUpgraded is called after the free to premium transition.
type OnEntitlementUpgraded interface {
	Plugin
	OnEntitlementUpgraded(ctx context.Context, e *entitlement.Entitlement, planID plan.ID) error
}

// ──────────────────────────────────────────────────
// Metering hooks
// ──────────────────────────────────────────────────

// OnCreditConsumed is called after one credit was debited.
type OnCreditConsumed interface {
	Plugin
	OnCreditConsumed(ctx context.Context, e *entitlement.Entitlement) error
}

// OnCreditsExhausted is called when a metered action is refused.
type OnCreditsExhausted interface {
	Plugin
	OnCreditsExhausted(ctx context.Context, userID, feature string) error
}

// OnAccessChecked is called for every access verdict.
type OnAccessChecked interface {
	Plugin
	OnAccessChecked(ctx context.Context, v *entitlement.Verdict) error
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnPurchaseStarted is called just before a checkout is handed off.
type OnPurchaseStarted interface {
	Plugin
	OnPurchaseStarted(ctx context.Context, intent *payment.Intent) error
}

// OnPurchaseCompleted is called after a purchase upgraded the user.
type OnPurchaseCompleted interface {
	Plugin
	OnPurchaseCompleted(ctx context.Context, intent *payment.Intent, e *entitlement.Entitlement) error
}

// OnPurchaseFailed is called for every failed, dismissed or unverified purchase.
type OnPurchaseFailed interface {
	Plugin
	OnPurchaseFailed(ctx context.Context, intent *payment.Intent, err error) error
}

// ──────────────────────────────────────────────────
// Remote store hooks
// ──────────────────────────────────────────────────

// OnRemoteUnavailable is called when a remote read or write fails and the
// engine degrades to the local cache.
type OnRemoteUnavailable interface {
	Plugin
	OnRemoteUnavailable(ctx context.Context, op, userID string, err error) error
}

// OnRemoteFlushed is called after the write-behind worker flushed a batch.
type OnRemoteFlushed interface {
	Plugin
	OnRemoteFlushed(ctx context.Context, count int, elapsed time.Duration) error
}
