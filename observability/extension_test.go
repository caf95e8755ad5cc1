package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/region"
	"github.com/xraph/credits/types"
)

func newTestExtension(t *testing.T) (*MetricsExtension, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewMetricsExtension(NewPrometheusFactory(reg)), reg
}

func counterValue(t *testing.T, c Counter) float64 {
	t.Helper()
	pc, ok := c.(prometheus.Counter)
	if !ok {
		t.Fatalf("counter %T is not a prometheus.Counter", c)
	}
	return testutil.ToFloat64(pc)
}

func TestMetricNames(t *testing.T) {
	_, reg := newTestExtension(t)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"credits_consumed_total",
		"credits_access_denied_total",
		"credits_purchase_latency_ms",
		"credits_remote_flush_latency_ms",
	} {
		if !names[want] {
			t.Errorf("metric %q not registered", want)
		}
	}
}

func TestFactoryReusesCollectors(t *testing.T) {
	f := NewPrometheusFactory(prometheus.NewRegistry())
	a := f.Counter("credits.x")
	b := f.Counter("credits.x")
	if a != b {
		t.Error("expected the same counter for the same name")
	}
}

func TestAccessMetrics(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestExtension(t)

	_ = m.OnAccessChecked(ctx, &entitlement.Verdict{Allowed: true})
	_ = m.OnAccessChecked(ctx, &entitlement.Verdict{Allowed: false})
	_ = m.OnCreditConsumed(ctx, entitlement.New("u1", 1, region.Global, time.Now()))

	if got := counterValue(t, m.AccessChecks); got != 2 {
		t.Errorf("access checks = %v, want 2", got)
	}
	if got := counterValue(t, m.AccessDenied); got != 1 {
		t.Errorf("access denied = %v, want 1", got)
	}
	if got := counterValue(t, m.CreditsConsumed); got != 1 {
		t.Errorf("credits consumed = %v, want 1", got)
	}
}

func TestPurchaseMetrics(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestExtension(t)

	pricing, _ := plan.Lookup(region.Global, plan.Monthly)
	intent := &payment.Intent{Entity: types.NewEntity(), ID: id.NewIntentID(), UserID: "u1", PlanID: plan.Yearly, Pricing: pricing}

	_ = m.OnPurchaseStarted(ctx, intent)
	_ = m.OnPurchaseCompleted(ctx, intent, nil)
	_ = m.OnPurchaseFailed(ctx, intent, errors.New("declined"))
	_ = m.OnEntitlementUpgraded(ctx, nil, plan.Yearly)

	if got := counterValue(t, m.PurchaseStarted); got != 1 {
		t.Errorf("started = %v", got)
	}
	if got := counterValue(t, m.PurchaseCompleted); got != 1 {
		t.Errorf("completed = %v", got)
	}
	if got := counterValue(t, m.PurchaseFailed); got != 1 {
		t.Errorf("failed = %v", got)
	}
	if got := counterValue(t, m.UpgradedYearly); got != 1 {
		t.Errorf("yearly upgrades = %v", got)
	}
}

func TestRemoteFlushedCountsRecords(t *testing.T) {
	m, _ := newTestExtension(t)
	_ = m.OnRemoteFlushed(context.Background(), 7, 12*time.Millisecond)

	if got := counterValue(t, m.RemoteFlushed); got != 7 {
		t.Errorf("flushed = %v, want 7", got)
	}
}
