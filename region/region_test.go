package region

import (
	"context"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		signal string
		want   Region
	}{
		{"Asia/Kolkata", Local},
		{"asia/calcutta", Local},
		{":Asia/Kolkata", Local},
		{"en_IN.UTF-8", Local},
		{"hi-IN", Local},
		{"en-IN", Local},
		{"en_US.UTF-8", Global},
		{"America/New_York", Global},
		{"hi", Global},
		{"C", Global},
		{"POSIX", Global},
		{"", Global},
		{"   ", Global},
		{"not a locale at all", Global},
		{"de_DE@euro", Global},
	}

	for _, tt := range tests {
		t.Run(tt.signal, func(t *testing.T) {
			if got := Classify(tt.signal); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.signal, got, tt.want)
			}
		})
	}
}

func TestResolverDeterministic(t *testing.T) {
	r := NewResolver(Static("en_IN.UTF-8"))
	first := r.Resolve()
	for i := 0; i < 10; i++ {
		if got := r.Resolve(); got != first {
			t.Fatalf("Resolve() changed between calls: %s then %s", first, got)
		}
	}
	if first != Local {
		t.Errorf("Resolve() = %s, want local", first)
	}
}

func TestResolveContextPrefersRequestSignal(t *testing.T) {
	r := NewResolver(Static("en_US"))
	ctx := WithLocale(context.Background(), "Asia/Kolkata")

	if got := r.ResolveContext(ctx); got != Local {
		t.Errorf("ResolveContext() = %s, want local", got)
	}
	if got := r.ResolveContext(context.Background()); got != Global {
		t.Errorf("ResolveContext() without signal = %s, want global", got)
	}
}

func TestEnvSource(t *testing.T) {
	t.Setenv("TZ", "")
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "en_IN.UTF-8")

	if got := NewResolver(nil).Resolve(); got != Local {
		t.Errorf("Resolve() from LANG = %s, want local", got)
	}

	t.Setenv("TZ", "Europe/Berlin")
	if got := NewResolver(Env()).Resolve(); got != Global {
		t.Errorf("Resolve() with TZ set = %s, want global", got)
	}
}

func TestRegionValid(t *testing.T) {
	if !Local.Valid() || !Global.Valid() {
		t.Error("known regions must be valid")
	}
	if Region("mars").Valid() {
		t.Error("unknown region reported valid")
	}
}
