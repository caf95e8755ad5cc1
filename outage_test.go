package credits_test

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/region"
)

func TestOutageDefaultNeverDowngradesPremium(t *testing.T) {
	tests := []struct {
		name    string
		opts    []credits.Option
		outage  func(*remoteStore)
		recover func(*remoteStore)
	}{
		{
			name:    "connection refused",
			outage:  func(r *remoteStore) { r.setFail(errRemoteDown) },
			recover: func(r *remoteStore) { r.setFail(nil) },
		},
		{
			name:    "timeout",
			opts:    []credits.Option{credits.WithRemoteTimeout(20 * time.Millisecond)},
			outage:  func(r *remoteStore) { r.setDelay(time.Second) },
			recover: func(r *remoteStore) { r.setDelay(0) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			eng, remote, _ := newEngine(tt.opts...)

			premium := entitlement.New("u1", 0, region.Global, time.Now())
			premium.Upgrade(plan.Yearly, time.Now())
			if err := remote.Store.PutEntitlement(ctx, premium); err != nil {
				t.Fatalf("seed: %v", err)
			}

			tt.outage(remote)
			e, err := eng.CurrentEntitlement(ctx, "u1")
			if err != nil {
				t.Fatalf("CurrentEntitlement during outage: %v", err)
			}
			if e.IsPremium() || !e.Provisional {
				t.Fatalf("outage entitlement = %+v, want a provisional default", e)
			}

			tt.recover(remote)
			ok, err := eng.TryConsume(ctx, "u1")
			if err != nil || !ok {
				t.Fatalf("TryConsume after recovery = %v, %v", ok, err)
			}

			e, _ = eng.CurrentEntitlement(ctx, "u1")
			if !e.IsPremium() || !e.IsYearly || e.CreditsRemaining != credits.Unlimited {
				t.Errorf("after recovery = %+v, want the premium record", e)
			}
			stored, err := remote.stored("u1")
			if err != nil {
				t.Fatalf("stored: %v", err)
			}
			if !stored.IsPremium() || !stored.IsYearly {
				t.Errorf("remote record downgraded to %+v", stored)
			}
			if _, puts, _ := remote.counts(); puts != 0 {
				t.Errorf("puts = %d, want the premium record left alone", puts)
			}
		})
	}
}

func TestOutageDebitsChargeDurableBalance(t *testing.T) {
	tests := []struct {
		name    string
		durable int64
		want    int64
	}{
		{name: "balance covers outage", durable: 5, want: 3},
		{name: "outage spent more than left", durable: 1, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			clock := newManualClock()
			eng, remote, _ := newEngine(credits.WithClock(clock.Now))

			if err := remote.Store.PutEntitlement(ctx, entitlement.New("u1", tt.durable, region.Local, clock.Now())); err != nil {
				t.Fatalf("seed: %v", err)
			}

			remote.setFail(errRemoteDown)
			for i := 0; i < 2; i++ {
				if ok, err := eng.TryConsume(ctx, "u1"); err != nil || !ok {
					t.Fatalf("TryConsume during outage = %v, %v", ok, err)
				}
			}

			remote.setFail(nil)
			clock.advance(10 * time.Second)

			e, err := eng.CurrentEntitlement(ctx, "u1")
			if err != nil {
				t.Fatalf("CurrentEntitlement: %v", err)
			}
			if e.Provisional || e.CreditsRemaining != tt.want || e.Region != region.Local {
				t.Errorf("reconciled = %+v, want %d credits in the durable region", e, tt.want)
			}
			stored, _ := remote.stored("u1")
			if stored.CreditsRemaining != tt.want {
				t.Errorf("stored remaining = %d, want %d", stored.CreditsRemaining, tt.want)
			}
		})
	}
}

func TestReconcileIsSpacedDuringOutage(t *testing.T) {
	ctx := context.Background()
	clock := newManualClock()
	rec := &recorder{}
	eng, remote, _ := newEngine(credits.WithClock(clock.Now), credits.WithPlugin(rec))
	remote.setFail(errRemoteDown)

	steps := []struct {
		advance time.Duration
		gets    int
	}{
		{advance: 0, gets: 1},
		{advance: 0, gets: 2},
		{advance: time.Second, gets: 2},
		{advance: time.Second, gets: 2},
		{advance: 5 * time.Second, gets: 3},
		{advance: 0, gets: 3},
	}

	for i, step := range steps {
		clock.advance(step.advance)
		if _, err := eng.CurrentEntitlement(ctx, "u1"); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if gets, _, _ := remote.counts(); gets != step.gets {
			t.Errorf("step %d: remote reads = %d, want %d", i, gets, step.gets)
		}
	}

	if got := rec.snapshot().unavailable; len(got) != 3 {
		t.Errorf("unavailable hooks = %v, want 3", got)
	}
}

func TestUpgradeDuringOutageSurvivesRecovery(t *testing.T) {
	ctx := context.Background()
	clock := newManualClock()
	eng, remote, _ := newEngine(credits.WithClock(clock.Now))

	if err := remote.Store.PutEntitlement(ctx, entitlement.New("u1", 4, region.Global, clock.Now())); err != nil {
		t.Fatalf("seed: %v", err)
	}

	remote.setFail(errRemoteDown)
	if _, err := eng.Entitlements().Upgrade(ctx, "u1", plan.Monthly); err != nil {
		t.Fatalf("Upgrade during outage: %v", err)
	}

	remote.setFail(nil)
	clock.advance(10 * time.Second)

	e, err := eng.CurrentEntitlement(ctx, "u1")
	if err != nil {
		t.Fatalf("CurrentEntitlement: %v", err)
	}
	if !e.IsPremium() || e.Provisional {
		t.Errorf("after recovery = %+v, want settled premium", e)
	}
	stored, _ := remote.stored("u1")
	if !stored.IsPremium() {
		t.Errorf("stored = %+v, want the paid upgrade written", stored)
	}
}
