package credits

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/region"
	"github.com/xraph/credits/store"
)

// DefaultRemoteTimeout bounds every remote store call.
const DefaultRemoteTimeout = 3 * time.Second

// Engine wires the entitlement store, credit meter, purchase orchestrator and
// access guard around one remote store and one local cache.
type Engine struct {
	store   store.Store
	cache   entitlement.Cache
	plugins *plugin.Registry
	logger  *slog.Logger

	// Collaborators
	resolver *region.Resolver
	gateway  payment.Gateway
	verifier payment.Verifier
	now      func() time.Time

	// Configuration
	trialAllotment      int64
	remoteTimeout       time.Duration
	writeBehindBatch    int
	writeBehindInterval time.Duration
	skipMigrate         bool

	// Components
	entitlements *Entitlements
	storeIface   EntitlementStore
	meter        *Meter
	orchestrator *Orchestrator
	guard        *Guard

	writer   *writeBehind
	stopOnce sync.Once
}

// New creates an Engine over a remote store and a local cache.
func New(s store.Store, c entitlement.Cache, opts ...Option) *Engine {
	e := &Engine{
		store:          s,
		cache:          c,
		plugins:        plugin.NewRegistry(),
		logger:         slog.Default(),
		resolver:       region.NewResolver(nil),
		now:            time.Now,
		trialAllotment: entitlement.DefaultTrialAllotment,
		remoteTimeout:  DefaultRemoteTimeout,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.store != nil && e.writeBehindBatch > 0 {
		e.writer = newWriteBehind(e.store, e.writeBehindBatch, e.writeBehindInterval, e.remoteTimeout, e.logger, e.plugins)
	}

	if e.store != nil && e.cache != nil {
		e.entitlements = &Entitlements{
			cache:         e.cache,
			remote:        e.store,
			resolver:      e.resolver,
			plugins:       e.plugins,
			logger:        e.logger,
			now:           e.now,
			allotment:     e.trialAllotment,
			remoteTimeout: e.remoteTimeout,
			writer:        e.writer,
		}
		if e.storeIface == nil {
			e.storeIface = e.entitlements
		}
	}

	e.meter = NewMeter(e.storeIface, e.logger, e.plugins)
	e.orchestrator = &Orchestrator{
		store:    e.storeIface,
		gateway:  e.gateway,
		verifier: e.verifier,
		resolver: e.resolver,
		plugins:  e.plugins,
		logger:   e.logger,
	}
	e.guard = &Guard{
		meter:        e.meter,
		store:        e.storeIface,
		orchestrator: e.orchestrator,
		plugins:      e.plugins,
		logger:       e.logger,
	}

	return e
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithHookTimeout bounds each plugin hook call.
func WithHookTimeout(d time.Duration) Option {
	return func(e *Engine) { e.plugins.WithTimeout(d) }
}

// WithTrialAllotment sets the balance of newly created free entitlements.
func WithTrialAllotment(n int64) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.trialAllotment = n
		}
	}
}

// WithRemoteTimeout bounds every remote store call. A call that exceeds it
// is handled like an outage.
func WithRemoteTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.remoteTimeout = d
		}
	}
}

// WithLocaleSource sets the ambient locale signal used for region pricing.
func WithLocaleSource(src region.Source) Option {
	return func(e *Engine) { e.resolver = region.NewResolver(src) }
}

// WithGateway sets the payment collaborator.
func WithGateway(g payment.Gateway) Option {
	return func(e *Engine) { e.gateway = g }
}

// WithVerifier requires every completed payment to be verified with the
// provider before the upgrade is granted.
func WithVerifier(v payment.Verifier) Option {
	return func(e *Engine) { e.verifier = v }
}

// WithWriteBehind moves remote writes to a background worker that coalesces
// them per user and flushes every interval or once batchSize users are
// pending. It takes effect between Start and Stop.
func WithWriteBehind(batchSize int, interval time.Duration) Option {
	return func(e *Engine) {
		e.writeBehindBatch = batchSize
		e.writeBehindInterval = interval
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithEntitlementStore replaces the cache-aside store used by the meter,
// orchestrator and guard.
func WithEntitlementStore(s EntitlementStore) Option {
	return func(e *Engine) { e.storeIface = s }
}

// WithoutMigrate makes Start skip the remote store migration.
func WithoutMigrate() Option {
	return func(e *Engine) { e.skipMigrate = true }
}

// Start migrates the remote store and begins background workers.
func (e *Engine) Start(ctx context.Context) error {
	if e.store != nil && !e.skipMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	e.plugins.EmitInit(ctx, e)

	if e.writer != nil {
		e.writer.start(ctx)
	}

	e.logger.Info("credits started",
		"trial_allotment", e.trialAllotment,
		"remote_timeout", e.remoteTimeout,
		"write_behind", e.writer != nil,
		"payments", e.gateway != nil,
		"verified_payments", e.verifier != nil,
	)

	return nil
}

// Stop drains pending remote writes and closes the remote store.
func (e *Engine) Stop() error {
	var errs MultiError

	e.stopOnce.Do(func() {
		if e.writer != nil {
			e.writer.stop()
		}

		e.plugins.EmitShutdown(context.Background())

		if e.store != nil {
			errs.Add(e.store.Close())
		}
	})

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Entitlements returns the entitlement store used by the other components.
func (e *Engine) Entitlements() EntitlementStore { return e.storeIface }

// Meter returns the credit meter.
func (e *Engine) Meter() *Meter { return e.meter }

// Orchestrator returns the purchase orchestrator.
func (e *Engine) Orchestrator() *Orchestrator { return e.orchestrator }

// Guard returns the feature-facing access guard.
func (e *Engine) Guard() *Guard { return e.guard }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Ping checks the remote store.
func (e *Engine) Ping(ctx context.Context) error {
	if e.store == nil {
		return ErrStoreClosed
	}
	return e.store.Ping(ctx)
}

// ──────────────────────────────────────────────────
// Convenience pass-throughs
// ──────────────────────────────────────────────────

// Authorize consumes one credit for feature if the user may proceed.
func (e *Engine) Authorize(ctx context.Context, userID, feature string) (Verdict, error) {
	return e.guard.Authorize(ctx, userID, feature)
}

// CurrentEntitlement returns the user's entitlement without consuming a credit.
func (e *Engine) CurrentEntitlement(ctx context.Context, userID string) (*Entitlement, error) {
	return e.guard.CurrentEntitlement(ctx, userID)
}

// TryConsume takes one credit if available.
func (e *Engine) TryConsume(ctx context.Context, userID string) (bool, error) {
	return e.meter.TryConsume(ctx, userID)
}

// Purchase starts a premium purchase. See Orchestrator.Purchase.
func (e *Engine) Purchase(
	ctx context.Context,
	userID, userContact string,
	planID plan.ID,
	onSuccess func(*Entitlement),
	onFailure func(error),
) *payment.Checkout {
	return e.orchestrator.Purchase(ctx, userID, userContact, planID, onSuccess, onFailure)
}

// Reclassify re-runs region resolution for a user on explicit request.
func (e *Engine) Reclassify(ctx context.Context, userID string) (*Entitlement, error) {
	if e.entitlements == nil {
		return nil, ErrStoreClosed
	}
	return e.entitlements.Reclassify(ctx, userID)
}

// Pricing returns the price table for the region of ctx.
func (e *Engine) Pricing(ctx context.Context) plan.Prices {
	return plan.Table(e.resolver.ResolveContext(ctx))
}
