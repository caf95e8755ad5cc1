package credits

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/region"
	"github.com/xraph/credits/types"
)

// Orchestrator runs the premium purchase flow: it prices the plan for the
// user's region, hands a checkout to the payment gateway and upgrades the
// entitlement once the gateway reports success.
type Orchestrator struct {
	store    EntitlementStore
	gateway  payment.Gateway
	verifier payment.Verifier
	resolver *region.Resolver
	plugins  *plugin.Registry
	logger   *slog.Logger
}

// Purchase starts a purchase of planID for the user. Exactly one of
// onSuccess or onFailure is invoked, possibly after Purchase returns. The
// returned checkout is nil when the flow failed before handoff.
//
// Failures are reported as ErrInvalidPlan, ErrPaymentUnavailable,
// ErrPaymentDismissed, ErrPaymentFailed or ErrPaymentUnverified.
func (o *Orchestrator) Purchase(
	ctx context.Context,
	userID, userContact string,
	planID plan.ID,
	onSuccess func(*Entitlement),
	onFailure func(error),
) *payment.Checkout {
	if onSuccess == nil {
		onSuccess = func(*Entitlement) {}
	}
	if onFailure == nil {
		onFailure = func(error) {}
	}

	if userID == "" {
		onFailure(ValidationError{Field: "user_id", Message: "must not be empty"})
		return nil
	}

	pricing, ok := plan.Lookup(o.resolver.ResolveContext(ctx), planID)
	if !ok {
		onFailure(fmt.Errorf("%w: %q", ErrInvalidPlan, planID))
		return nil
	}

	intent := &payment.Intent{
		Entity:      types.NewEntity(),
		ID:          id.NewIntentID(),
		UserID:      userID,
		UserContact: userContact,
		PlanID:      planID,
		Pricing:     pricing,
	}

	// Outcomes may arrive after the caller's context is gone.
	bg := context.WithoutCancel(ctx)
	var once sync.Once
	fail := func(err error) {
		once.Do(func() { o.fail(bg, intent, err, onFailure) })
	}

	if o.gateway == nil {
		fail(ErrPaymentUnavailable)
		return nil
	}
	if err := o.gateway.Ready(ctx); err != nil {
		fail(fmt.Errorf("%w: %w", ErrPaymentUnavailable, err))
		return nil
	}

	checkout := payment.NewCheckout(intent)
	checkout.OnComplete = func(r payment.Receipt) {
		once.Do(func() { o.complete(bg, intent, r, onSuccess, onFailure) })
	}
	checkout.OnDismiss = func() {
		fail(ErrPaymentDismissed)
	}
	checkout.OnFailure = func(err error) {
		fail(fmt.Errorf("%w: %w", ErrPaymentFailed, err))
	}

	o.logger.Info("purchase started",
		"user_id", userID,
		"intent_id", intent.ID.String(),
		"plan", planID,
		"amount", pricing.Amount.String(),
	)
	o.plugins.EmitPurchaseStarted(ctx, intent)

	if err := o.gateway.Handoff(ctx, checkout); err != nil {
		fail(fmt.Errorf("%w: handoff: %w", ErrPaymentFailed, err))
		return nil
	}

	return checkout
}

func (o *Orchestrator) complete(
	ctx context.Context,
	intent *payment.Intent,
	receipt payment.Receipt,
	onSuccess func(*Entitlement),
	onFailure func(error),
) {
	if o.verifier != nil {
		if err := o.verifier.Verify(ctx, intent, receipt); err != nil {
			o.fail(ctx, intent, fmt.Errorf("%w: %w", ErrPaymentUnverified, err), onFailure)
			return
		}
	}

	if o.store == nil {
		o.fail(ctx, intent, ErrStoreClosed, onFailure)
		return
	}

	e, err := o.store.Upgrade(ctx, intent.UserID, intent.PlanID)
	if err != nil {
		o.logger.Error("credits: payment taken but upgrade failed",
			"user_id", intent.UserID,
			"intent_id", intent.ID.String(),
			"reference", receipt.Reference,
			"error", err,
		)
		o.fail(ctx, intent, err, onFailure)
		return
	}

	intent.Touch()
	o.logger.Info("purchase completed",
		"user_id", intent.UserID,
		"intent_id", intent.ID.String(),
		"plan", intent.PlanID,
		"reference", receipt.Reference,
		"provider", receipt.Provider,
	)
	o.plugins.EmitPurchaseCompleted(ctx, intent, e.Clone())

	onSuccess(e)
}

func (o *Orchestrator) fail(ctx context.Context, intent *payment.Intent, err error, onFailure func(error)) {
	o.logger.Warn("purchase failed",
		"user_id", intent.UserID,
		"intent_id", intent.ID.String(),
		"plan", intent.PlanID,
		"error", err,
	)
	o.plugins.EmitPurchaseFailed(ctx, intent, err)
	onFailure(err)
}
