package credits

import (
	"context"
	"log/slog"

	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/plugin"
)

// Guard is the single entry point features use to gate metered actions.
type Guard struct {
	meter        *Meter
	store        EntitlementStore
	orchestrator *Orchestrator
	plugins      *plugin.Registry
	logger       *slog.Logger
}

// Authorize consumes one credit and allows the action, or blocks it when
// the free balance is exhausted. A blocked verdict names the feature so the
// caller can offer an upgrade.
func (g *Guard) Authorize(ctx context.Context, userID, feature string) (Verdict, error) {
	v := Verdict{Feature: feature, UserID: userID}

	e, ok, err := g.meter.consume(ctx, userID)
	if err != nil {
		return v, err
	}

	v.Allowed = ok
	v.Remaining = e.CreditsRemaining

	if !ok {
		g.logger.Info("access blocked, credits exhausted",
			"user_id", userID,
			"feature", feature,
		)
		g.plugins.EmitCreditsExhausted(ctx, userID, feature)
	}
	g.plugins.EmitAccessChecked(ctx, &v)

	return v, nil
}

// CurrentEntitlement returns the entitlement without consuming a credit.
func (g *Guard) CurrentEntitlement(ctx context.Context, userID string) (*Entitlement, error) {
	if g.store == nil {
		return nil, ErrStoreClosed
	}
	return g.store.Get(ctx, userID)
}

// Purchase starts the upgrade flow. See Orchestrator.Purchase.
func (g *Guard) Purchase(
	ctx context.Context,
	userID, userContact string,
	planID plan.ID,
	onSuccess func(*Entitlement),
	onFailure func(error),
) *payment.Checkout {
	return g.orchestrator.Purchase(ctx, userID, userContact, planID, onSuccess, onFailure)
}
