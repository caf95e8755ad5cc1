package credits_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/credits"
	memorycache "github.com/xraph/credits/cache/memory"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/region"
	"github.com/xraph/credits/store/memory"
)

var errRemoteDown = errors.New("connection refused")

// remoteStore wraps the memory store with call counters, latency and
// failure injection.
type remoteStore struct {
	*memory.Store

	mu        sync.Mutex
	fail      error
	delay     time.Duration
	gets      int
	puts      int
	batches   int
	batched   int
	migrated  int
	failBatch int
}

func newRemoteStore() *remoteStore {
	return &remoteStore{Store: memory.New()}
}

func (r *remoteStore) setFail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

func (r *remoteStore) setDelay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delay = d
}

// failBatches makes the next n batch writes fail.
func (r *remoteStore) failBatches(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failBatch = n
}

func (r *remoteStore) migrations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.migrated
}

func (r *remoteStore) wait(ctx context.Context) error {
	r.mu.Lock()
	delay, fail := r.delay, r.fail
	r.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fail
}

func (r *remoteStore) GetEntitlement(ctx context.Context, userID string) (*entitlement.Entitlement, error) {
	r.mu.Lock()
	r.gets++
	r.mu.Unlock()
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.Store.GetEntitlement(ctx, userID)
}

func (r *remoteStore) PutEntitlement(ctx context.Context, e *entitlement.Entitlement) error {
	r.mu.Lock()
	r.puts++
	r.mu.Unlock()
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.Store.PutEntitlement(ctx, e)
}

func (r *remoteStore) PutEntitlements(ctx context.Context, batch []*entitlement.Entitlement) error {
	r.mu.Lock()
	r.batches++
	if r.failBatch > 0 {
		r.failBatch--
		r.mu.Unlock()
		return errRemoteDown
	}
	r.batched += len(batch)
	r.mu.Unlock()
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.Store.PutEntitlements(ctx, batch)
}

func (r *remoteStore) Migrate(ctx context.Context) error {
	r.mu.Lock()
	r.migrated++
	r.mu.Unlock()
	return r.Store.Migrate(ctx)
}

func (r *remoteStore) counts() (gets, puts, batches int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets, r.puts, r.batches
}

func (r *remoteStore) batchStats() (batches, records int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches, r.batched
}

// stored reads the durable record directly, even after Close.
func (r *remoteStore) stored(userID string) (*entitlement.Entitlement, error) {
	doc, ok := r.Document(userID)
	if !ok {
		return nil, credits.ErrNotFound
	}
	return entitlement.Decode(userID, doc)
}

func newEngine(opts ...credits.Option) (*credits.Engine, *remoteStore, *memorycache.Cache) {
	remote := newRemoteStore()
	cache := memorycache.New("")
	base := []credits.Option{credits.WithLocaleSource(region.Static("en_US.UTF-8"))}
	return credits.New(remote, cache, append(base, opts...)...), remote, cache
}

// events is what a recorder has seen.
type events struct {
	created     []string
	upgraded    []plan.ID
	consumed    int
	exhausted   []string
	verdicts    []entitlement.Verdict
	started     int
	completed   []*payment.Intent
	failed      []error
	unavailable []string
	flushed     int
}

// recorder is a plugin that records the hooks it sees.
type recorder struct {
	mu sync.Mutex
	ev events
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnEntitlementCreated(_ context.Context, e *entitlement.Entitlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ev.created = append(r.ev.created, e.UserID)
	return nil
}

func (r *recorder) OnEntitlementUpgraded(_ context.Context, _ *entitlement.Entitlement, planID plan.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ev.upgraded = append(r.ev.upgraded, planID)
	return nil
}

func (r *recorder) OnCreditConsumed(_ context.Context, _ *entitlement.Entitlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ev.consumed++
	return nil
}

func (r *recorder) OnCreditsExhausted(_ context.Context, _, feature string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ev.exhausted = append(r.ev.exhausted, feature)
	return nil
}

func (r *recorder) OnAccessChecked(_ context.Context, v *entitlement.Verdict) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ev.verdicts = append(r.ev.verdicts, *v)
	return nil
}

func (r *recorder) OnPurchaseStarted(_ context.Context, _ *payment.Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ev.started++
	return nil
}

func (r *recorder) OnPurchaseCompleted(_ context.Context, intent *payment.Intent, _ *entitlement.Entitlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ev.completed = append(r.ev.completed, intent)
	return nil
}

func (r *recorder) OnPurchaseFailed(_ context.Context, _ *payment.Intent, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ev.failed = append(r.ev.failed, err)
	return nil
}

func (r *recorder) OnRemoteUnavailable(_ context.Context, op, _ string, _ error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ev.unavailable = append(r.ev.unavailable, op)
	return nil
}

func (r *recorder) OnRemoteFlushed(_ context.Context, count int, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ev.flushed += count
	return nil
}

func (r *recorder) snapshot() events {
	r.mu.Lock()
	defer r.mu.Unlock()
	return events{
		created:     append([]string(nil), r.ev.created...),
		upgraded:    append([]plan.ID(nil), r.ev.upgraded...),
		consumed:    r.ev.consumed,
		exhausted:   append([]string(nil), r.ev.exhausted...),
		verdicts:    append([]entitlement.Verdict(nil), r.ev.verdicts...),
		started:     r.ev.started,
		completed:   append([]*payment.Intent(nil), r.ev.completed...),
		failed:      append([]error(nil), r.ev.failed...),
		unavailable: append([]string(nil), r.ev.unavailable...),
		flushed:     r.ev.flushed,
	}
}

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 1s")
}

// manualClock only moves when advanced.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
