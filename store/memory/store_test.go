package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/region"
)

func TestGetMissing(t *testing.T) {
	s := New()
	_, err := s.GetEntitlement(context.Background(), "u1")
	if !errors.Is(err, credits.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	s := New()

	e := entitlement.New("u1", 20, region.Local, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err := s.PutEntitlement(ctx, e); err != nil {
		t.Fatalf("PutEntitlement: %v", err)
	}

	got, err := s.GetEntitlement(ctx, "u1")
	if err != nil {
		t.Fatalf("GetEntitlement: %v", err)
	}
	if got.Tier != e.Tier || got.CreditsRemaining != e.CreditsRemaining || got.Region != e.Region ||
		got.IsYearly != e.IsYearly || !got.LastRenewalDate.Equal(e.LastRenewalDate) {
		t.Errorf("got %+v, want %+v", got, e)
	}
}

func TestDocumentShape(t *testing.T) {
	s := New()
	_ = s.PutEntitlement(context.Background(), entitlement.New("u1", 3, region.Global, time.Now()))

	doc, ok := s.Document("u1")
	if !ok {
		t.Fatal("document not stored")
	}

	var fields map[string]any
	if err := json.Unmarshal(doc, &fields); err != nil {
		t.Fatalf("document is not JSON: %v", err)
	}
	for _, k := range []string{"tier", "credits_remaining", "last_renewal_date", "is_yearly", "region"} {
		if _, ok := fields[k]; !ok {
			t.Errorf("document missing %q: %s", k, doc)
		}
	}
	if len(fields) != 5 {
		t.Errorf("document has %d fields, want 5: %s", len(fields), doc)
	}
}

func TestMalformedDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "not json", doc: `{{{`},
		{name: "bad date", doc: `{"tier":"free","credits_remaining":3,"last_renewal_date":"yesterday","is_yearly":false,"region":"global"}`},
		{name: "negative credits", doc: `{"tier":"free","credits_remaining":-1,"last_renewal_date":"2026-01-01T00:00:00Z","is_yearly":false,"region":"global"}`},
		{name: "unknown tier", doc: `{"tier":"gold","credits_remaining":1,"last_renewal_date":"2026-01-01T00:00:00Z","is_yearly":false,"region":"global"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			s.PutDocument("u1", []byte(tt.doc))

			_, err := s.GetEntitlement(context.Background(), "u1")
			if !errors.Is(err, credits.ErrMalformedRecord) {
				t.Fatalf("expected ErrMalformedRecord, got %v", err)
			}
			if !credits.IsNotFound(err) {
				t.Error("malformed record should classify as not found")
			}
		})
	}
}

func TestPutEntitlements(t *testing.T) {
	ctx := context.Background()
	s := New()

	batch := []*entitlement.Entitlement{
		entitlement.New("a", 1, region.Global, time.Now()),
		entitlement.New("b", 2, region.Local, time.Now()),
	}
	if err := s.PutEntitlements(ctx, batch); err != nil {
		t.Fatalf("PutEntitlements: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
}

func TestClosed(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Close()

	if err := s.Ping(ctx); !errors.Is(err, credits.ErrStoreClosed) {
		t.Errorf("Ping: expected ErrStoreClosed, got %v", err)
	}
	if _, err := s.GetEntitlement(ctx, "u1"); !errors.Is(err, credits.ErrStoreClosed) {
		t.Errorf("Get: expected ErrStoreClosed, got %v", err)
	}
}
