package credits_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/credits"
	memorycache "github.com/xraph/credits/cache/memory"
	"github.com/xraph/credits/payment/paymenttest"
	"github.com/xraph/credits/region"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/types"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from the package docs
	t.Run("QuickStartExample", func(t *testing.T) {
		// Remote store and local cache (memory for demo, use PostgreSQL and Redis in production)
		store := memory.New()
		cache := memorycache.New("")

		c := credits.New(store, cache,
			credits.WithLogger(slog.Default()),
			credits.WithTrialAllotment(20),
			credits.WithRemoteTimeout(3*time.Second),
			credits.WithLocaleSource(region.Env()),
			credits.WithGateway(paymenttest.New(paymenttest.Succeed)),
		)

		// Start the engine
		ctx := context.Background()
		if err := c.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer c.Stop()

		// Gate a metered feature
		verdict, err := c.Authorize(ctx, "user_123", "export_pdf")
		if err != nil {
			t.Fatal(err)
		}

		if verdict.Allowed {
			log.Printf("Export allowed. Remaining: %d\n", verdict.Remaining)
		} else {
			// Offer the upgrade flow for verdict.Feature
			c.Purchase(ctx, "user_123", "user@example.com", credits.Monthly,
				func(e *credits.Entitlement) { log.Printf("Upgraded: %s\n", e.Tier) },
				func(err error) { log.Printf("Purchase failed: %v\n", err) },
			)
		}

		// Show prices in the user's region
		prices := c.Pricing(region.WithLocale(ctx, "en-IN"))
		log.Printf("Monthly: %s\n", prices.Monthly.Amount.String())
	})

	// Test Money type examples
	t.Run("MoneyExamples", func(t *testing.T) {
		// Constructors
		_ = types.USD(500)    // $5.00
		_ = types.INR(20000)  // ₹200.00
		_ = types.Zero("usd") // $0.00

		// Arithmetic
		m := types.USD(500)
		_ = m.Multiply(40) // $200.00

		// Comparison
		if m.Equal(types.USD(500)) {
			// same amount and currency
		}

		// Formatting
		_ = m.String()       // "$5.00"
		_ = m.FormatMajor()  // "5.00"
		_ = m.CurrencyCode() // "USD"
	})
}
