// Package credits provides entitlement and credit metering for Go applications.
//
// Credits is designed as a library, not a service. It decides whether a user
// may perform a metered action, debits one credit when they may, and upgrades
// the user to premium after a successful purchase. It provides:
//
//   - A cache-aside entitlement store with a durable remote copy
//   - Atomic per-user debits that never drive a balance negative
//   - Region-aware pricing (local INR, global USD)
//   - A purchase flow with pluggable gateways (Stripe Checkout built-in)
//   - Graceful degradation to the local cache when the remote store is down
//   - Audit and Prometheus metrics plugins
//
// # Quick Start
//
// Create an engine over a remote store and a local cache:
//
//	import (
//	    "github.com/xraph/credits"
//	    memorycache "github.com/xraph/credits/cache/memory"
//	    "github.com/xraph/credits/store/postgres"
//	)
//
//	eng := credits.New(postgres.New(db), memorycache.New(""))
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Gating a feature
//
// Every metered action goes through the guard:
//
//	v, err := eng.Authorize(ctx, userID, "export")
//	if err != nil {
//	    return err
//	}
//	if !v.Allowed {
//	    // Offer eng.Purchase for v.Feature
//	}
//
// New users start on the free tier with a trial allotment of credits. Premium
// users are never debited.
//
// # Purchasing
//
//	eng.Purchase(ctx, userID, email, credits.Monthly,
//	    func(e *credits.Entitlement) { /* premium now */ },
//	    func(err error) { /* credits.IsPaymentFailure(err) */ },
//	)
//
// Exactly one callback runs per purchase. Gateways that host their own
// checkout page, such as Stripe, report the outcome later.
//
// # Remote store outages
//
// Reads and writes to the remote store are bounded by a timeout. When the
// store is unreachable the cached record, or a fresh free default, is served
// and writes are retried on the next change. The local cache is the session's
// source of truth.
//
// # TypeID
//
// Purchase intents and receipts use TypeID identifiers:
//
//	intent_01h2xcejqtf2nbrexx3vqjhp41  // Intent ID
//	rcpt_01h455vb4pex5vsknk084sn02q    // Receipt ID
package credits
