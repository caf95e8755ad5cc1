// Package payment defines the handoff contract between the purchase flow and
// an external payment collaborator.
//
// The collaborator owns checkout presentation and charge collection. It
// reports exactly one outcome per Checkout through the OnComplete, OnDismiss
// or OnFailure callbacks, possibly minutes after Handoff returned.
package payment

import (
	"context"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/types"
)

// Intent is the ephemeral record of one purchase attempt. It is never
// persisted.
type Intent struct {
	types.Entity
	ID          id.IntentID  `json:"id"`
	UserID      string       `json:"user_id"`
	UserContact string       `json:"user_contact"`
	PlanID      plan.ID      `json:"plan_id"`
	Pricing     plan.Pricing `json:"pricing"`
}

// Receipt is the collaborator's claim that a charge succeeded.
type Receipt struct {
	Reference string `json:"reference"`
	Provider  string `json:"provider"`
}

// Checkout is the object handed to a Gateway.
type Checkout struct {
	Identifier       string
	AmountMinorUnits int64
	CurrencyCode     string
	Description      string
	UserContact      string

	// RedirectURL and Reference are filled in by gateways that host the
	// checkout page themselves.
	RedirectURL string
	Reference   string

	OnComplete func(Receipt)
	OnDismiss  func()
	OnFailure  func(error)
}

// NewCheckout builds the handoff object for intent. Callbacks are left for
// the caller to set.
func NewCheckout(intent *Intent) *Checkout {
	return &Checkout{
		Identifier:       intent.ID.String(),
		AmountMinorUnits: intent.Pricing.Amount.Amount,
		CurrencyCode:     intent.Pricing.Amount.CurrencyCode(),
		Description:      intent.Pricing.Description,
		UserContact:      intent.UserContact,
	}
}

// Gateway is the external payment collaborator.
type Gateway interface {
	// Ready reports whether the collaborator's client can be used at all.
	Ready(ctx context.Context) error
	// Handoff starts a checkout. A nil error means exactly one of the
	// checkout callbacks will eventually run.
	Handoff(ctx context.Context, c *Checkout) error
}

// Verifier confirms a receipt with the provider before anything is granted.
type Verifier interface {
	Verify(ctx context.Context, intent *Intent, receipt Receipt) error
}

// VerifierFunc adapts a plain function to a Verifier.
type VerifierFunc func(ctx context.Context, intent *Intent, receipt Receipt) error

// Verify implements Verifier.
func (f VerifierFunc) Verify(ctx context.Context, intent *Intent, receipt Receipt) error {
	return f(ctx, intent, receipt)
}
