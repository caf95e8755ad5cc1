package credits

import (
	"context"
	"log/slog"

	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/plugin"
)

// Meter answers "may this user perform one metered action?" and debits one
// credit when the answer is yes.
type Meter struct {
	store   EntitlementStore
	plugins *plugin.Registry
	logger  *slog.Logger
}

// NewMeter creates a Meter over store.
func NewMeter(store EntitlementStore, logger *slog.Logger, plugins *plugin.Registry) *Meter {
	if logger == nil {
		logger = slog.Default()
	}
	if plugins == nil {
		plugins = plugin.NewRegistry()
	}
	return &Meter{store: store, plugins: plugins, logger: logger}
}

// TryConsume returns true for premium users without debiting, takes one
// credit and returns true when the free balance is positive, and returns
// false with no change when it is exhausted.
func (m *Meter) TryConsume(ctx context.Context, userID string) (bool, error) {
	_, ok, err := m.consume(ctx, userID)
	return ok, err
}

func (m *Meter) consume(ctx context.Context, userID string) (*Entitlement, bool, error) {
	if m.store == nil {
		return nil, false, ErrStoreClosed
	}

	e, res, err := m.store.Consume(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	switch res {
	case entitlement.Unmetered:
		return e, true, nil
	case entitlement.Debited:
		m.logger.Debug("credit consumed",
			"user_id", userID,
			"remaining", e.CreditsRemaining,
		)
		m.plugins.EmitCreditConsumed(ctx, e.Clone())
		return e, true, nil
	default:
		return e, false, nil
	}
}
