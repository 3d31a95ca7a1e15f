package agent

import (
	"context"
	"testing"
	"time"

	"github.com/relaykit/actionplane/pkg/audit"
	"github.com/relaykit/actionplane/pkg/guardrail"
	"github.com/relaykit/actionplane/pkg/store"
	"github.com/relaykit/actionplane/pkg/tenants"
)

func TestBeforeAgentSeedsQueueFromPendingRecords(t *testing.T) {
	ctx := context.Background()
	outbox := store.NewInMemoryOutboxStore()
	_, _ = outbox.Enqueue(ctx, testDemoEnvelope(), nil)

	deps := Deps{TenantID: "tenant-demo", Outbox: outbox, Audit: audit.NewInMemoryLog()}
	state := NewSharedState()

	if err := BeforeAgent(ctx, deps, state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(state.Desk.Queue) != 1 {
		t.Fatalf("expected 1 queued item, got %d", len(state.Desk.Queue))
	}
}

func TestBeforeModelBlocksOnGuardrailFailure(t *testing.T) {
	ctx := context.Background()
	deps := Deps{
		TenantID: "tenant-demo",
		Audit:    audit.NewInMemoryLog(),
		Guardrails: guardrail.Config{
			QuietHoursStart: 22,
			QuietHoursEnd:   6,
			TrustThreshold:  0.8,
			ScopeEnforced:   false,
		},
	}
	state := NewSharedState()
	input := guardrail.Input{
		Now:        time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC),
		TrustScore: ptr(0.9),
	}

	resp, err := BeforeModel(ctx, deps, state, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Blocked {
		t.Fatal("expected quiet hours to block at 23:00 within a 22-6 window")
	}
	const wantPrefix = "Guardrail prevented this action. "
	const wantSuffix = " Please adjust the request or submit for approval later."
	if len(resp.Text) < len(wantPrefix) || resp.Text[:len(wantPrefix)] != wantPrefix {
		t.Fatalf("expected response text to start with %q, got %q", wantPrefix, resp.Text)
	}
	if len(resp.Text) < len(wantSuffix) || resp.Text[len(resp.Text)-len(wantSuffix):] != wantSuffix {
		t.Fatalf("expected response text to end with %q, got %q", wantSuffix, resp.Text)
	}
	if state.Guardrails["quietHours"] == nil {
		t.Fatal("expected quietHours panel to be written to shared state")
	}
}

func TestBeforeModelAllowsWhenNoGuardrailBlocks(t *testing.T) {
	ctx := context.Background()
	deps := Deps{
		TenantID: "tenant-demo",
		Audit:    audit.NewInMemoryLog(),
		Guardrails: guardrail.Config{
			TrustThreshold: 0.5,
		},
	}
	state := NewSharedState()
	input := guardrail.Input{
		Now:        time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		TrustScore: ptr(0.9),
	}

	resp, err := BeforeModel(ctx, deps, state, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Blocked {
		t.Fatalf("expected allow, got blocked: %s", resp.Text)
	}
}

func TestAfterModelEndsInvocationWhenEnqueueHappened(t *testing.T) {
	state := NewSharedState()
	if AfterModel(state) {
		t.Fatal("expected no end-invocation before any enqueue")
	}
	state.SetApprovalModal("env-1", nil, nil)
	if !AfterModel(state) {
		t.Fatal("expected end-invocation after an enqueue this turn")
	}
}

func TestBeforeModelResolvesGuardrailsFromTenantStore(t *testing.T) {
	ctx := context.Background()
	tenantStore := tenants.NewInMemoryStore()
	if err := tenantStore.Put(ctx, tenants.Tenant{
		ID:             "tenant-demo",
		Status:         tenants.StatusActive,
		TrustThreshold: 0.95,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deps := Deps{
		TenantID: "tenant-demo",
		Audit:    audit.NewInMemoryLog(),
		Tenants:  tenantStore,
		// Guardrails is intentionally left zero-value to prove the tenant
		// record, not this field, governs evaluation.
	}
	state := NewSharedState()
	input := guardrail.Input{
		Now:        time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		TrustScore: ptr(0.5),
	}

	resp, err := BeforeModel(ctx, deps, state, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Blocked {
		t.Fatal("expected trust threshold 0.95 from the tenant record to block a 0.5 score")
	}
}

func ptr(f float64) *float64 { return &f }
