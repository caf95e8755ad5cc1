// Package paymenttest provides a scripted payment.Gateway for tests.
package paymenttest

import (
	"context"
	"errors"
	"sync"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/payment"
)

// Outcome is what the gateway does when a checkout is handed off.
type Outcome int

const (
	// Hold keeps the checkout pending until Complete, Dismiss or Fail is called.
	Hold Outcome = iota
	Succeed
	Dismiss
	Decline
)

// ErrDeclined is reported to OnFailure by the Decline outcome.
var ErrDeclined = errors.New("paymenttest: card declined")

// Gateway records handoffs and resolves them according to Outcome.
type Gateway struct {
	mu sync.Mutex

	Outcome    Outcome
	ReadyErr   error
	HandoffErr error

	handoffs []*payment.Checkout
}

var _ payment.Gateway = (*Gateway)(nil)

// New returns a gateway that resolves every checkout with outcome.
func New(outcome Outcome) *Gateway {
	return &Gateway{Outcome: outcome}
}

func (g *Gateway) Ready(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ReadyErr
}

func (g *Gateway) Handoff(_ context.Context, c *payment.Checkout) error {
	g.mu.Lock()
	if g.HandoffErr != nil {
		err := g.HandoffErr
		g.mu.Unlock()
		return err
	}
	g.handoffs = append(g.handoffs, c)
	outcome := g.Outcome
	g.mu.Unlock()

	switch outcome {
	case Succeed:
		g.Complete(c)
	case Dismiss:
		c.OnDismiss()
	case Decline:
		c.OnFailure(ErrDeclined)
	case Hold:
	}
	return nil
}

// Complete fires the completion callback of c with a fresh receipt.
func (g *Gateway) Complete(c *payment.Checkout) payment.Receipt {
	r := payment.Receipt{Reference: id.NewReceiptID().String(), Provider: "paymenttest"}
	c.OnComplete(r)
	return r
}

// Handoffs returns the checkouts seen so far.
func (g *Gateway) Handoffs() []*payment.Checkout {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*payment.Checkout, len(g.handoffs))
	copy(out, g.handoffs)
	return out
}

// Last returns the most recent checkout or nil.
func (g *Gateway) Last() *payment.Checkout {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.handoffs) == 0 {
		return nil
	}
	return g.handoffs[len(g.handoffs)-1]
}
