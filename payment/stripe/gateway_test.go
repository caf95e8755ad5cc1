package stripegateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/region"
	"github.com/xraph/credits/types"
)

type fakeStripe struct {
	created  []*stripe.CheckoutSessionParams
	sessions map[string]*stripe.CheckoutSession
}

func newTestGateway(t *testing.T) (*Gateway, *fakeStripe) {
	t.Helper()
	fs := &fakeStripe{sessions: make(map[string]*stripe.CheckoutSession)}
	g := New(Config{
		APIKey:     "sk_test_123",
		SuccessURL: "https://app.example.com/upgrade/success",
		CancelURL:  "https://app.example.com/upgrade/cancel",
	})
	g.createCheckoutSession = func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		fs.created = append(fs.created, params)
		s := &stripe.CheckoutSession{
			ID:                "cs_test_" + *params.ClientReferenceID,
			URL:               "https://checkout.stripe.com/c/pay/cs_test",
			Status:            stripe.CheckoutSessionStatusOpen,
			ClientReferenceID: *params.ClientReferenceID,
			AmountTotal:       *params.LineItems[0].PriceData.UnitAmount,
			Currency:          stripe.Currency(*params.LineItems[0].PriceData.Currency),
		}
		fs.sessions[s.ID] = s
		return s, nil
	}
	g.getCheckoutSession = func(id string, _ *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		s, ok := fs.sessions[id]
		if !ok {
			return nil, errors.New("no such checkout session")
		}
		return s, nil
	}
	return g, fs
}

func newIntent(r region.Region, p plan.ID) *payment.Intent {
	pricing, _ := plan.Lookup(r, p)
	return &payment.Intent{
		Entity:      types.NewEntity(),
		ID:          id.NewIntentID(),
		UserID:      "u1",
		UserContact: "user@example.com",
		PlanID:      p,
		Pricing:     pricing,
	}
}

type outcome struct {
	receipt   *payment.Receipt
	dismissed bool
	err       error
}

func handoff(t *testing.T, g *Gateway, intent *payment.Intent) (*payment.Checkout, *outcome) {
	t.Helper()
	out := &outcome{}
	c := payment.NewCheckout(intent)
	c.OnComplete = func(r payment.Receipt) { out.receipt = &r }
	c.OnDismiss = func() { out.dismissed = true }
	c.OnFailure = func(err error) { out.err = err }

	if err := g.Handoff(context.Background(), c); err != nil {
		t.Fatalf("Handoff: %v", err)
	}
	return c, out
}

func TestReady(t *testing.T) {
	if err := New(Config{}).Ready(context.Background()); err == nil {
		t.Error("expected error without api key")
	}
	if err := New(Config{APIKey: "sk"}).Ready(context.Background()); err == nil {
		t.Error("expected error without redirect urls")
	}
	g, _ := newTestGateway(t)
	if err := g.Ready(context.Background()); err != nil {
		t.Errorf("Ready: %v", err)
	}
}

func TestHandoffParams(t *testing.T) {
	g, fs := newTestGateway(t)
	intent := newIntent(region.Local, plan.Monthly)

	c, _ := handoff(t, g, intent)

	if len(fs.created) != 1 {
		t.Fatalf("expected 1 session, got %d", len(fs.created))
	}
	params := fs.created[0]
	if *params.Mode != string(stripe.CheckoutSessionModePayment) {
		t.Errorf("mode = %s", *params.Mode)
	}
	item := params.LineItems[0].PriceData
	if *item.Currency != "inr" || *item.UnitAmount != 20000 {
		t.Errorf("price = %d %s, want 20000 inr", *item.UnitAmount, *item.Currency)
	}
	if *params.CustomerEmail != "user@example.com" {
		t.Errorf("email = %s", *params.CustomerEmail)
	}
	if !strings.HasSuffix(*params.SuccessURL, "?session_id="+SessionPlaceholder) {
		t.Errorf("success url = %s", *params.SuccessURL)
	}
	if c.RedirectURL == "" || c.Reference == "" {
		t.Errorf("checkout not annotated: %+v", c)
	}
	if g.Pending() != 1 {
		t.Errorf("pending = %d", g.Pending())
	}
}

func TestCompletePaid(t *testing.T) {
	g, fs := newTestGateway(t)
	intent := newIntent(region.Global, plan.Yearly)
	c, out := handoff(t, g, intent)

	s := fs.sessions[c.Reference]
	s.Status = stripe.CheckoutSessionStatusComplete
	s.PaymentStatus = stripe.CheckoutSessionPaymentStatusPaid

	if err := g.Complete(context.Background(), c.Reference); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out.receipt == nil || out.receipt.Reference != c.Reference || out.receipt.Provider != ProviderName {
		t.Fatalf("unexpected receipt: %+v", out.receipt)
	}
	if err := g.Verify(context.Background(), intent, *out.receipt); err != nil {
		t.Errorf("Verify: %v", err)
	}

	// A second return to the success page does not fire again.
	if err := g.Complete(context.Background(), c.Reference); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("expected ErrUnknownSession, got %v", err)
	}
}

func TestCompleteOpenStaysPending(t *testing.T) {
	g, _ := newTestGateway(t)
	c, out := handoff(t, g, newIntent(region.Global, plan.Monthly))

	if err := g.Complete(context.Background(), c.Reference); !errors.Is(err, ErrSessionOpen) {
		t.Fatalf("expected ErrSessionOpen, got %v", err)
	}
	if out.receipt != nil || out.dismissed {
		t.Error("no callback should fire for an open session")
	}
	if g.Pending() != 1 {
		t.Errorf("pending = %d", g.Pending())
	}
}

func TestCompleteDelayedPayment(t *testing.T) {
	tests := []struct {
		name    string
		settle  func(g *Gateway, s *stripe.CheckoutSession) error
		paid    bool
		failure bool
	}{
		{
			name: "clears later",
			settle: func(g *Gateway, s *stripe.CheckoutSession) error {
				s.PaymentStatus = stripe.CheckoutSessionPaymentStatusPaid
				return g.Complete(context.Background(), s.ID)
			},
			paid: true,
		},
		{
			name: "rejected later",
			settle: func(g *Gateway, s *stripe.CheckoutSession) error {
				return g.Fail(s.ID, errors.New("upi mandate declined"))
			},
			failure: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, fs := newTestGateway(t)
			c, out := handoff(t, g, newIntent(region.Local, plan.Monthly))

			s := fs.sessions[c.Reference]
			s.Status = stripe.CheckoutSessionStatusComplete
			s.PaymentStatus = stripe.CheckoutSessionPaymentStatusUnpaid

			if err := g.Complete(context.Background(), c.Reference); !errors.Is(err, ErrPaymentProcessing) {
				t.Fatalf("expected ErrPaymentProcessing, got %v", err)
			}
			if out.receipt != nil || out.dismissed || out.err != nil {
				t.Fatal("no callback should fire while the payment is processing")
			}
			if g.Pending() != 1 {
				t.Fatalf("pending = %d, want 1", g.Pending())
			}

			if err := tt.settle(g, s); err != nil {
				t.Fatalf("settle: %v", err)
			}
			if (out.receipt != nil) != tt.paid {
				t.Errorf("receipt = %+v, want paid=%v", out.receipt, tt.paid)
			}
			if (out.err != nil) != tt.failure {
				t.Errorf("failure = %v, want failure=%v", out.err, tt.failure)
			}
			if g.Pending() != 0 {
				t.Errorf("pending = %d after settling", g.Pending())
			}
		})
	}
}

func TestFailUnknownSession(t *testing.T) {
	g, _ := newTestGateway(t)
	if err := g.Fail("cs_missing", nil); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("expected ErrUnknownSession, got %v", err)
	}
}

func TestCompleteExpiredDismisses(t *testing.T) {
	g, fs := newTestGateway(t)
	c, out := handoff(t, g, newIntent(region.Global, plan.Monthly))
	fs.sessions[c.Reference].Status = stripe.CheckoutSessionStatusExpired

	if err := g.Complete(context.Background(), c.Reference); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !out.dismissed {
		t.Error("expected dismissal")
	}
}

func TestCancel(t *testing.T) {
	g, _ := newTestGateway(t)
	c, out := handoff(t, g, newIntent(region.Global, plan.Monthly))

	if err := g.Cancel(c.Reference); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !out.dismissed {
		t.Error("expected dismissal")
	}
	if err := g.Cancel(c.Reference); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("expected ErrUnknownSession on second cancel, got %v", err)
	}
}

func TestVerifyRejects(t *testing.T) {
	g, fs := newTestGateway(t)
	intent := newIntent(region.Global, plan.Monthly)
	c, _ := handoff(t, g, intent)

	s := fs.sessions[c.Reference]
	s.Status = stripe.CheckoutSessionStatusComplete
	s.PaymentStatus = stripe.CheckoutSessionPaymentStatusPaid
	receipt := payment.Receipt{Reference: c.Reference, Provider: ProviderName}

	tests := []struct {
		name   string
		mutate func(*stripe.CheckoutSession, *payment.Receipt)
	}{
		{"unpaid", func(s *stripe.CheckoutSession, _ *payment.Receipt) {
			s.PaymentStatus = stripe.CheckoutSessionPaymentStatusUnpaid
		}},
		{"other intent", func(s *stripe.CheckoutSession, _ *payment.Receipt) { s.ClientReferenceID = "intent_other" }},
		{"short amount", func(s *stripe.CheckoutSession, _ *payment.Receipt) { s.AmountTotal = 1 }},
		{"wrong currency", func(s *stripe.CheckoutSession, _ *payment.Receipt) { s.Currency = "eur" }},
		{"foreign provider", func(_ *stripe.CheckoutSession, r *payment.Receipt) { r.Provider = "other" }},
		{"unknown session", func(_ *stripe.CheckoutSession, r *payment.Receipt) { r.Reference = "cs_missing" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := *s
			fs.sessions[c.Reference] = &sc
			r := receipt
			tt.mutate(&sc, &r)

			if err := g.Verify(context.Background(), intent, r); err == nil {
				t.Error("expected verification failure")
			}
		})
	}
}
