// Package audithook bridges credits lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/credits"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnEntitlementCreated  = (*Extension)(nil)
	_ plugin.OnEntitlementUpgraded = (*Extension)(nil)
	_ plugin.OnCreditConsumed      = (*Extension)(nil)
	_ plugin.OnCreditsExhausted    = (*Extension)(nil)
	_ plugin.OnAccessChecked       = (*Extension)(nil)
	_ plugin.OnPurchaseStarted     = (*Extension)(nil)
	_ plugin.OnPurchaseCompleted   = (*Extension)(nil)
	_ plugin.OnPurchaseFailed      = (*Extension)(nil)
	_ plugin.OnRemoteUnavailable   = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly. Callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
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

// Extension bridges credits lifecycle events to an audit trail backend.
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
// Entitlement hooks
// ──────────────────────────────────────────────────

// OnEntitlementCreated implements plugin.OnEntitlementCreated.
func (e *Extension) OnEntitlementCreated(ctx context.Context, ent *entitlement.Entitlement) error {
	return e.record(ctx, ActionEntitlementCreated, SeverityInfo, OutcomeSuccess,
		ResourceEntitlement, ent.UserID, CategoryEntitlement, nil,
		"tier", string(ent.Tier),
		"credits", ent.CreditsRemaining,
		"region", string(ent.Region),
	)
}

// OnEntitlementUpgraded implements plugin.OnEntitlementUpgraded.
func (e *Extension) OnEntitlementUpgraded(ctx context.Context, ent *entitlement.Entitlement, planID plan.ID) error {
	return e.record(ctx, ActionEntitlementUpgraded, SeverityInfo, OutcomeSuccess,
		ResourceEntitlement, ent.UserID, CategoryEntitlement, nil,
		"plan", string(planID),
		"is_yearly", ent.IsYearly,
		"region", string(ent.Region),
	)
}

// ──────────────────────────────────────────────────
// Metering hooks
// ──────────────────────────────────────────────────

// OnCreditConsumed implements plugin.OnCreditConsumed.
func (e *Extension) OnCreditConsumed(ctx context.Context, ent *entitlement.Entitlement) error {
	return e.record(ctx, ActionCreditConsumed, SeverityInfo, OutcomeSuccess,
		ResourceCredits, ent.UserID, CategoryUsage, nil,
		"remaining", ent.CreditsRemaining,
	)
}

// OnCreditsExhausted implements plugin.OnCreditsExhausted.
func (e *Extension) OnCreditsExhausted(ctx context.Context, userID, feature string) error {
	return e.record(ctx, ActionCreditsExhausted, SeverityWarning, OutcomeFailure,
		ResourceCredits, userID, CategoryUsage, nil,
		"feature", feature,
	)
}

// OnAccessChecked implements plugin.OnAccessChecked.
func (e *Extension) OnAccessChecked(ctx context.Context, v *entitlement.Verdict) error {
	// Only audit denied checks to reduce noise
	if v.Allowed {
		return nil
	}
	return e.record(ctx, ActionAccessDenied, SeverityWarning, OutcomeFailure,
		ResourceEntitlement, v.UserID, CategoryAccess, nil,
		"feature", v.Feature,
		"remaining", v.Remaining,
	)
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnPurchaseStarted implements plugin.OnPurchaseStarted.
func (e *Extension) OnPurchaseStarted(ctx context.Context, intent *payment.Intent) error {
	return e.record(ctx, ActionPurchaseStarted, SeverityInfo, OutcomeSuccess,
		ResourcePurchase, intent.ID.String(), CategoryPayment, nil,
		"user_id", intent.UserID,
		"plan", string(intent.PlanID),
		"amount", intent.Pricing.Amount.Amount,
		"currency", intent.Pricing.Amount.CurrencyCode(),
	)
}

// OnPurchaseCompleted implements plugin.OnPurchaseCompleted.
func (e *Extension) OnPurchaseCompleted(ctx context.Context, intent *payment.Intent, _ *entitlement.Entitlement) error {
	return e.record(ctx, ActionPurchaseCompleted, SeverityInfo, OutcomeSuccess,
		ResourcePurchase, intent.ID.String(), CategoryPayment, nil,
		"user_id", intent.UserID,
		"plan", string(intent.PlanID),
		"amount", intent.Pricing.Amount.Amount,
		"currency", intent.Pricing.Amount.CurrencyCode(),
	)
}

// OnPurchaseFailed implements plugin.OnPurchaseFailed.
func (e *Extension) OnPurchaseFailed(ctx context.Context, intent *payment.Intent, err error) error {
	action, severity := ActionPurchaseFailed, SeverityError
	switch {
	case errors.Is(err, credits.ErrPaymentDismissed):
		action, severity = ActionPurchaseDismissed, SeverityInfo
	case errors.Is(err, credits.ErrPaymentUnverified):
		action, severity = ActionPurchaseUnverified, SeverityCritical
	}

	return e.record(ctx, action, severity, OutcomeFailure,
		ResourcePurchase, intent.ID.String(), CategoryPayment, err,
		"user_id", intent.UserID,
		"plan", string(intent.PlanID),
	)
}

// ──────────────────────────────────────────────────
// Remote store hooks
// ──────────────────────────────────────────────────

// OnRemoteUnavailable implements plugin.OnRemoteUnavailable.
func (e *Extension) OnRemoteUnavailable(ctx context.Context, op, userID string, err error) error {
	return e.record(ctx, ActionRemoteUnavailable, SeverityWarning, OutcomePartial,
		ResourceStore, userID, CategoryIntegration, err,
		"op", op,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

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
