package tenants_test

import (
	"context"
	"testing"

	"github.com/relaykit/actionplane/pkg/tenants"
)

func TestInMemoryStoreRoundTrip(t *testing.T) {
	s := tenants.NewInMemoryStore()
	t1 := tenants.Tenant{ID: "tenant-demo", Status: tenants.StatusActive, TrustThreshold: 0.8}
	if err := s.Put(context.Background(), t1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Get(context.Background(), "tenant-demo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsActive() {
		t.Fatal("expected tenant to be active")
	}
	if got.TrustThreshold != 0.8 {
		t.Fatalf("expected trust threshold 0.8, got %v", got.TrustThreshold)
	}
}

func TestInMemoryStoreGetMissingReturnsErrNotFound(t *testing.T) {
	s := tenants.NewInMemoryStore()
	_, err := s.Get(context.Background(), "missing")
	if err != tenants.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGuardrailConfigMapsTenantDefaults(t *testing.T) {
	tn := tenants.Tenant{
		QuietHoursStart:  22,
		QuietHoursEnd:    6,
		TrustThreshold:   0.8,
		ScopeEnforced:    true,
		EvidenceRequired: true,
	}
	cfg := tn.GuardrailConfig()
	if cfg.QuietHoursStart != 22 || cfg.QuietHoursEnd != 6 {
		t.Fatalf("unexpected quiet hours: %+v", cfg)
	}
	if !cfg.ScopeEnforced || !cfg.EvidenceRequired {
		t.Fatalf("expected flags to carry over: %+v", cfg)
	}
}
