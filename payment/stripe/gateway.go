// Package stripegateway hands checkouts to Stripe Checkout and resolves them
// once the customer returns or the session expires.
package stripegateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	stripe "github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"

	"github.com/xraph/credits/payment"
)

// ProviderName is recorded on every receipt.
const ProviderName = "stripe"

// SessionPlaceholder is replaced by Stripe with the checkout session id.
const SessionPlaceholder = "{CHECKOUT_SESSION_ID}"

var (
	// ErrUnknownSession is returned for a session this gateway did not start
	// or already resolved.
	ErrUnknownSession = errors.New("stripe: unknown checkout session")
	// ErrSessionOpen is returned by Complete while the customer has not
	// finished paying.
	ErrSessionOpen = errors.New("stripe: checkout session still open")
	// ErrPaymentProcessing is returned by Complete for a finished session
	// whose delayed payment (UPI, bank debit) has not cleared yet. The
	// session stays pending until Complete sees it paid or Fail is called.
	ErrPaymentProcessing = errors.New("stripe: checkout payment still processing")
)

// Config holds the Stripe credentials and redirect targets.
type Config struct {
	APIKey     string
	SuccessURL string
	CancelURL  string
}

// Gateway implements payment.Gateway and payment.Verifier with Stripe
// Checkout in payment mode.
type Gateway struct {
	cfg    Config
	logger *slog.Logger

	createCheckoutSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	getCheckoutSession    func(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)

	mu      sync.Mutex
	pending map[string]*payment.Checkout
}

var (
	_ payment.Gateway  = (*Gateway)(nil)
	_ payment.Verifier = (*Gateway)(nil)
)

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// New creates a Stripe gateway.
func New(cfg Config, opts ...Option) *Gateway {
	g := &Gateway{
		cfg:                   cfg,
		logger:                slog.Default(),
		createCheckoutSession: stripesession.New,
		getCheckoutSession:    stripesession.Get,
		pending:               make(map[string]*payment.Checkout),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Ready reports whether the gateway is configured.
func (g *Gateway) Ready(_ context.Context) error {
	if strings.TrimSpace(g.cfg.APIKey) == "" {
		return fmt.Errorf("stripe api key not configured")
	}
	if strings.TrimSpace(g.cfg.SuccessURL) == "" || strings.TrimSpace(g.cfg.CancelURL) == "" {
		return fmt.Errorf("stripe redirect urls not configured")
	}
	return nil
}

// Handoff creates a Checkout session for c and records it as pending. The
// customer is sent to c.RedirectURL; the outcome arrives later through
// Complete or Cancel.
func (g *Gateway) Handoff(ctx context.Context, c *payment.Checkout) error {
	if err := g.Ready(ctx); err != nil {
		return err
	}

	stripe.Key = strings.TrimSpace(g.cfg.APIKey)

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL(g.cfg.SuccessURL)),
		CancelURL:         stripe.String(g.cfg.CancelURL),
		ClientReferenceID: stripe.String(c.Identifier),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(c.CurrencyCode)),
					UnitAmount: stripe.Int64(c.AmountMinorUnits),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(c.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"intent_id": c.Identifier,
		},
	}
	if strings.Contains(c.UserContact, "@") {
		params.CustomerEmail = stripe.String(c.UserContact)
	}

	session, err := g.createCheckoutSession(params)
	if err != nil {
		return fmt.Errorf("stripe: create checkout session: %w", err)
	}
	if session == nil || strings.TrimSpace(session.URL) == "" {
		return fmt.Errorf("stripe returned empty checkout URL")
	}

	c.RedirectURL = strings.TrimSpace(session.URL)
	c.Reference = session.ID

	g.mu.Lock()
	g.pending[session.ID] = c
	g.mu.Unlock()

	g.logger.Debug("stripe checkout session created",
		"session_id", session.ID,
		"intent_id", c.Identifier,
		"amount", c.AmountMinorUnits,
		"currency", c.CurrencyCode,
	)
	return nil
}

// Complete resolves a pending session after the customer returned to the
// success URL, or after Stripe reported checkout.session.async_payment_succeeded.
// A paid session fires OnComplete, an expired one OnDismiss. An open session
// returns ErrSessionOpen and a finished but unpaid one ErrPaymentProcessing;
// both stay pending.
func (g *Gateway) Complete(_ context.Context, sessionID string) error {
	c, ok := g.lookup(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	session, err := g.getCheckoutSession(sessionID, nil)
	if err != nil {
		return fmt.Errorf("stripe: get checkout session: %w", err)
	}

	switch {
	case session.Status == stripe.CheckoutSessionStatusComplete &&
		session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		if g.take(sessionID) {
			c.OnComplete(payment.Receipt{Reference: session.ID, Provider: ProviderName})
		}
	case session.Status == stripe.CheckoutSessionStatusExpired:
		if g.take(sessionID) {
			c.OnDismiss()
		}
	case session.Status == stripe.CheckoutSessionStatusComplete:
		g.logger.Info("stripe payment processing",
			"session_id", sessionID,
			"payment_status", session.PaymentStatus,
		)
		return fmt.Errorf("%w: %s (%s)", ErrPaymentProcessing, sessionID, session.PaymentStatus)
	default:
		return fmt.Errorf("%w: %s (%s/%s)", ErrSessionOpen, sessionID, session.Status, session.PaymentStatus)
	}
	return nil
}

// Cancel resolves a pending session after the customer returned to the
// cancel URL.
func (g *Gateway) Cancel(sessionID string) error {
	c, ok := g.lookup(sessionID)
	if !ok || !g.take(sessionID) {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	c.OnDismiss()
	return nil
}

// Fail resolves a pending session whose delayed payment was rejected, as
// reported by checkout.session.async_payment_failed. It fires OnFailure.
func (g *Gateway) Fail(sessionID string, cause error) error {
	c, ok := g.lookup(sessionID)
	if !ok || !g.take(sessionID) {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	if cause == nil {
		cause = errors.New("stripe: delayed payment failed")
	}
	c.OnFailure(cause)
	return nil
}

// Pending returns the number of unresolved sessions.
func (g *Gateway) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// Verify confirms with Stripe that the receipt's session was paid in full
// for this intent.
func (g *Gateway) Verify(_ context.Context, intent *payment.Intent, receipt payment.Receipt) error {
	if receipt.Provider != ProviderName {
		return fmt.Errorf("stripe: receipt from provider %q", receipt.Provider)
	}

	session, err := g.getCheckoutSession(receipt.Reference, nil)
	if err != nil {
		return fmt.Errorf("stripe: get checkout session: %w", err)
	}

	switch {
	case session.Status != stripe.CheckoutSessionStatusComplete:
		return fmt.Errorf("stripe: session %s status %s", session.ID, session.Status)
	case session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid:
		return fmt.Errorf("stripe: session %s payment status %s", session.ID, session.PaymentStatus)
	case session.ClientReferenceID != intent.ID.String():
		return fmt.Errorf("stripe: session %s belongs to %q", session.ID, session.ClientReferenceID)
	case session.AmountTotal != intent.Pricing.Amount.Amount:
		return fmt.Errorf("stripe: session %s charged %d, expected %d", session.ID, session.AmountTotal, intent.Pricing.Amount.Amount)
	case !strings.EqualFold(string(session.Currency), intent.Pricing.Amount.Currency):
		return fmt.Errorf("stripe: session %s currency %s, expected %s", session.ID, session.Currency, intent.Pricing.Amount.Currency)
	}
	return nil
}

func (g *Gateway) lookup(sessionID string) (*payment.Checkout, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.pending[sessionID]
	return c, ok
}

// take removes sessionID and reports whether this call removed it.
func (g *Gateway) take(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.pending[sessionID]; !ok {
		return false
	}
	delete(g.pending, sessionID)
	return true
}

func successURL(base string) string {
	if strings.Contains(base, SessionPlaceholder) {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "session_id=" + SessionPlaceholder
}
