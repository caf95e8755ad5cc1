package plugin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/region"
)

type namedPlugin struct{ name string }

func (p namedPlugin) Name() string { return p.name }

type consumedCounter struct {
	namedPlugin
	calls int
	err   error
}

func (c *consumedCounter) OnCreditConsumed(context.Context, *entitlement.Entitlement) error {
	c.calls++
	return c.err
}

type slowExhausted struct {
	namedPlugin
	delay time.Duration
}

func (s slowExhausted) OnCreditsExhausted(context.Context, string, string) error {
	time.Sleep(s.delay)
	return nil
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(namedPlugin{name: "a"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(namedPlugin{name: "a"}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d, want 1", r.Count())
	}
	if r.Get("a") == nil || r.Get("b") != nil {
		t.Error("Get returned the wrong plugin")
	}
}

func TestEmitReachesImplementersOnly(t *testing.T) {
	r := NewRegistry()
	counter := &consumedCounter{namedPlugin: namedPlugin{name: "counter"}}
	_ = r.Register(counter)
	_ = r.Register(namedPlugin{name: "bare"})

	e := entitlement.New("u1", 1, region.Global, time.Now())
	r.EmitCreditConsumed(context.Background(), e)
	r.EmitCreditConsumed(context.Background(), e)
	r.EmitCreditsExhausted(context.Background(), "u1", "chat")

	if counter.calls != 2 {
		t.Errorf("calls = %d, want 2", counter.calls)
	}
	if len(r.List()) != 2 {
		t.Errorf("List = %d plugins, want 2", len(r.List()))
	}
}

func TestHookErrorsAreSwallowed(t *testing.T) {
	r := NewRegistry()
	counter := &consumedCounter{namedPlugin: namedPlugin{name: "counter"}, err: errors.New("boom")}
	_ = r.Register(counter)

	r.EmitCreditConsumed(context.Background(), entitlement.New("u1", 1, region.Global, time.Now()))
	if counter.calls != 1 {
		t.Errorf("calls = %d, want 1", counter.calls)
	}
}

func TestSlowHookIsCutOff(t *testing.T) {
	r := NewRegistry().WithTimeout(20 * time.Millisecond)
	_ = r.Register(slowExhausted{namedPlugin: namedPlugin{name: "slow"}, delay: time.Second})

	start := time.Now()
	r.EmitCreditsExhausted(context.Background(), "u1", "chat")
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("emit blocked for %v", elapsed)
	}
}

func TestImplementedInterfaces(t *testing.T) {
	got := implementedInterfaces(&consumedCounter{})
	if len(got) != 1 || got[0] != "OnCreditConsumed" {
		t.Errorf("interfaces = %v", got)
	}
}
