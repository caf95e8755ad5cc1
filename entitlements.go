package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/region"
)

// EntitlementStore reads and writes entitlements with the local cache as the
// session's source of truth and the remote store as the durable copy.
type EntitlementStore interface {
	// Get returns the user's entitlement. It serves from the cache when
	// possible and otherwise loads from the remote store, synthesizing and
	// persisting a default free entitlement for users seen for the first time.
	Get(ctx context.Context, userID string) (*Entitlement, error)

	// Put writes the entitlement to the cache and then the remote store.
	Put(ctx context.Context, e *Entitlement) error

	// Upgrade applies the free to premium transition for planID.
	Upgrade(ctx context.Context, userID string, planID plan.ID) (*Entitlement, error)

	// Consume atomically takes one credit from a free user.
	Consume(ctx context.Context, userID string) (*Entitlement, entitlement.DebitResult, error)
}

// Entitlements is the cache-aside EntitlementStore.
type Entitlements struct {
	cache    entitlement.Cache
	remote   entitlement.Repository
	resolver *region.Resolver
	plugins  *plugin.Registry
	logger   *slog.Logger
	now      func() time.Time

	allotment     int64
	remoteTimeout time.Duration
	writer        *writeBehind

	loads      singleflight.Group
	reconciles singleflight.Group

	retryMu sync.Mutex
	retryAt map[string]time.Time
}

// reconcileInterval spaces out remote re-reads for a provisional entry
// while the remote store stays unreachable.
const reconcileInterval = 5 * time.Second

var _ EntitlementStore = (*Entitlements)(nil)

// Get returns the user's entitlement.
func (s *Entitlements) Get(ctx context.Context, userID string) (*Entitlement, error) {
	if userID == "" {
		return nil, ValidationError{Field: "user_id", Message: "must not be empty"}
	}

	cached, err := s.cache.Get(ctx, userID)
	if err == nil {
		if cached.Provisional {
			return s.reconcile(ctx, cached)
		}
		return cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		return nil, fmt.Errorf("credits: read cache: %w", err)
	}

	v, err, _ := s.loads.Do(userID, func() (any, error) {
		return s.load(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entitlement).Clone(), nil
}

// load fills the cache for a user that was not cached. Only a confirmed
// absence persists a new default remotely. During an outage the default is
// cached as provisional and settled against the remote copy once it is
// reachable again.
func (s *Entitlements) load(ctx context.Context, userID string) (*Entitlement, error) {
	// A load that finished just before this one already filled the cache,
	// and the remote copy may be older than what was debited since.
	if cached, err := s.cache.Get(ctx, userID); err == nil {
		return cached, nil
	}

	remote, err := s.remoteGet(ctx, userID)
	if err == nil {
		if err := s.cache.Set(ctx, remote); err != nil {
			return nil, fmt.Errorf("credits: write cache: %w", err)
		}
		return remote, nil
	}

	e := entitlement.New(userID, s.allotment, s.resolver.ResolveContext(ctx), s.now())

	if !IsNotFound(err) {
		s.remoteFailed(ctx, "get", userID, err)
		e.Provisional = true
		if err := s.cache.Set(ctx, e); err != nil {
			return nil, fmt.Errorf("credits: write cache: %w", err)
		}
		return e, nil
	}

	if IsMalformed(err) {
		s.logger.Warn("credits: replacing malformed entitlement record",
			"user_id", userID,
			"error", err,
		)
	}

	if err := s.cache.Set(ctx, e); err != nil {
		return nil, fmt.Errorf("credits: write cache: %w", err)
	}
	s.remotePut(ctx, e.Clone(), "create")

	s.logger.Debug("entitlement created",
		"user_id", userID,
		"region", e.Region,
		"credits", e.CreditsRemaining,
	)
	s.plugins.EmitEntitlementCreated(ctx, e.Clone())

	return e, nil
}

// Put writes e to the cache, then the remote store. A remote failure is
// logged and does not fail the call.
func (s *Entitlements) Put(ctx context.Context, e *Entitlement) error {
	if e == nil {
		return ValidationError{Field: "entitlement", Message: "must not be nil"}
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	if err := s.cache.Set(ctx, e); err != nil {
		return fmt.Errorf("credits: write cache: %w", err)
	}
	s.remotePut(ctx, e.Clone(), "put")
	return nil
}

// Upgrade marks the user premium with unlimited credits. Upgrading an
// already premium user refreshes the renewal date and plan period only.
func (s *Entitlements) Upgrade(ctx context.Context, userID string, planID plan.ID) (*Entitlement, error) {
	if !planID.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlan, planID)
	}

	e, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	e, err = s.update(ctx, e, func(cur *Entitlement) { cur.Upgrade(planID, now) })
	if err != nil {
		return nil, err
	}
	s.remotePut(ctx, e.Clone(), "upgrade")

	s.logger.Info("entitlement upgraded",
		"user_id", userID,
		"plan", planID,
		"region", e.Region,
	)
	s.plugins.EmitEntitlementUpgraded(ctx, e.Clone(), planID)

	return e, nil
}

// Consume takes one credit from a free user. Premium users are never
// debited. The debit happens inside the cache so concurrent callers cannot
// lose updates.
func (s *Entitlements) Consume(ctx context.Context, userID string) (*Entitlement, entitlement.DebitResult, error) {
	e, err := s.Get(ctx, userID)
	if err != nil {
		return nil, entitlement.Exhausted, err
	}
	if e.IsPremium() {
		return e, entitlement.Unmetered, nil
	}

	updated, res, err := s.cache.Debit(ctx, userID)
	if errors.Is(err, ErrCacheMiss) {
		// Evicted between Get and Debit.
		if err := s.cache.Set(ctx, e); err != nil {
			return nil, entitlement.Exhausted, fmt.Errorf("credits: write cache: %w", err)
		}
		updated, res, err = s.cache.Debit(ctx, userID)
	}
	if err != nil {
		return nil, entitlement.Exhausted, fmt.Errorf("credits: debit: %w", err)
	}

	if res == entitlement.Debited {
		s.remotePut(ctx, updated.Clone(), "debit")
	}
	return updated, res, nil
}

// Reclassify resolves the region again from the current locale signal and
// stores it if it changed. Region is otherwise fixed at creation.
func (s *Entitlements) Reclassify(ctx context.Context, userID string) (*Entitlement, error) {
	e, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	r := s.resolver.ResolveContext(ctx)
	if r == e.Region {
		return e, nil
	}

	prev := e.Region
	e, err = s.update(ctx, e, func(cur *Entitlement) { cur.Region = r })
	if err != nil {
		return nil, err
	}
	s.remotePut(ctx, e.Clone(), "reclassify")

	s.logger.Info("entitlement reclassified",
		"user_id", userID,
		"from", prev,
		"to", r,
	)
	return e, nil
}

// update applies fn to the cached record in place, so a debit that lands
// between the caller's read and this write is kept. base seeds the cache
// again if the entry was evicted.
func (s *Entitlements) update(ctx context.Context, base *Entitlement, fn func(*Entitlement)) (*Entitlement, error) {
	updated, err := s.cache.Update(ctx, base.UserID, func(cur *Entitlement) error {
		fn(cur)
		return nil
	})
	if errors.Is(err, ErrCacheMiss) {
		updated = base.Clone()
		fn(updated)
		if err := s.cache.Set(ctx, updated); err != nil {
			return nil, fmt.Errorf("credits: write cache: %w", err)
		}
		return updated, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credits: update cache: %w", err)
	}
	return updated, nil
}

// reconcile settles a provisional entry against the remote copy. Attempts
// are spaced by reconcileInterval while the remote stays down, and the
// cached entry keeps serving meanwhile.
func (s *Entitlements) reconcile(ctx context.Context, cached *Entitlement) (*Entitlement, error) {
	if !s.reconcileDue(cached.UserID) {
		return cached, nil
	}
	v, err, _ := s.reconciles.Do(cached.UserID, func() (any, error) {
		return s.settle(ctx, cached)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entitlement).Clone(), nil
}

func (s *Entitlements) settle(ctx context.Context, cached *Entitlement) (*Entitlement, error) {
	userID := cached.UserID

	remote, err := s.remoteGet(ctx, userID)
	if err != nil && !IsNotFound(err) {
		s.remoteFailed(ctx, "reconcile", userID, err)
		s.deferReconcile(userID)
		return cached, nil
	}
	s.clearReconcile(userID)

	if err != nil {
		// The user really is new. Keep what was spent during the outage.
		if IsMalformed(err) {
			s.logger.Warn("credits: replacing malformed entitlement record",
				"user_id", userID,
				"error", err,
			)
		}
		e, err := s.update(ctx, cached, func(cur *Entitlement) { cur.Provisional = false })
		if err != nil {
			return nil, err
		}
		s.remotePut(ctx, e.Clone(), "create")
		s.logger.Debug("entitlement created",
			"user_id", userID,
			"region", e.Region,
			"credits", e.CreditsRemaining,
		)
		s.plugins.EmitEntitlementCreated(ctx, e.Clone())
		return e, nil
	}

	var write bool
	e, err := s.cache.Update(ctx, userID, func(cur *Entitlement) error {
		if cur.Provisional {
			write = settleProvisional(cur, remote, s.allotment)
		}
		return nil
	})
	if errors.Is(err, ErrCacheMiss) {
		e = remote
		err = s.cache.Set(ctx, e)
	}
	if err != nil {
		return nil, fmt.Errorf("credits: write cache: %w", err)
	}
	if write {
		s.remotePut(ctx, e.Clone(), "reconcile")
	}

	s.logger.Info("provisional entitlement reconciled",
		"user_id", userID,
		"tier", e.Tier,
		"credits", e.CreditsRemaining,
	)
	return e, nil
}

// settleProvisional folds an entry built during an outage into the durable
// record. The tier never goes down, and credits spent during the outage are
// charged against the durable balance. It reports whether the result
// differs from remote and must be written back.
func settleProvisional(local, remote *Entitlement, allotment int64) bool {
	if local.IsPremium() && (!remote.IsPremium() || local.LastRenewalDate.After(remote.LastRenewalDate)) {
		// Upgraded while the remote was unreachable.
		local.Provisional = false
		return true
	}

	var spent int64
	if !local.IsPremium() {
		spent = max(allotment-local.CreditsRemaining, 0)
	}

	*local = *remote.Clone()
	local.Provisional = false
	if local.IsPremium() || spent == 0 {
		return false
	}
	local.CreditsRemaining = max(local.CreditsRemaining-spent, 0)
	return true
}

func (s *Entitlements) reconcileDue(userID string) bool {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()
	next, ok := s.retryAt[userID]
	return !ok || !s.now().Before(next)
}

func (s *Entitlements) deferReconcile(userID string) {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()
	if s.retryAt == nil {
		s.retryAt = make(map[string]time.Time)
	}
	s.retryAt[userID] = s.now().Add(reconcileInterval)
}

func (s *Entitlements) clearReconcile(userID string) {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()
	delete(s.retryAt, userID)
}

func (s *Entitlements) remoteGet(ctx context.Context, userID string) (*Entitlement, error) {
	rctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	defer cancel()

	e, err := s.remote.GetEntitlement(rctx, userID)
	if err == nil {
		return e, nil
	}
	if IsNotFound(err) {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
}

// remotePut hands e to the write-behind worker when it runs, and writes
// synchronously otherwise. A provisional free entry is a guess and stays
// local until reconciled.
func (s *Entitlements) remotePut(ctx context.Context, e *Entitlement, op string) {
	if e.Provisional && !e.IsPremium() {
		return
	}
	if s.writer != nil && s.writer.enqueue(e) {
		return
	}

	rctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	defer cancel()

	if err := s.remote.PutEntitlement(rctx, e); err != nil {
		s.remoteFailed(ctx, op, e.UserID, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err))
	}
}

func (s *Entitlements) remoteFailed(ctx context.Context, op, userID string, err error) {
	s.logger.Warn("credits: remote store unavailable, serving from cache",
		"op", op,
		"user_id", userID,
		"error", err,
	)
	s.plugins.EmitRemoteUnavailable(ctx, op, userID, err)
}
