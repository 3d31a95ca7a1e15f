package audit

import (
	"context"
	"testing"

	"github.com/relaykit/actionplane/pkg/contracts"
)

func TestInMemoryLogAppendAndList(t *testing.T) {
	log := NewInMemoryLog()
	ctx := context.Background()

	entry := contracts.AuditEntry{
		TenantID:  "tenant-demo",
		ActorType: contracts.ActorWorker,
		Category:  contracts.AuditCategoryOutbox,
		Payload:   map[string]any{"status": "success"},
	}
	stored, err := log.Append(ctx, entry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.ID == "" {
		t.Fatal("expected ID to be assigned")
	}

	list, err := log.List(ctx, "tenant-demo", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(list))
	}
}

func TestInMemoryLogVerifyChainDetectsIntactChain(t *testing.T) {
	log := NewInMemoryLog()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := log.Append(ctx, contracts.AuditEntry{
			TenantID:  "tenant-demo",
			ActorType: contracts.ActorAgent,
			Category:  contracts.AuditCategoryGuardrail,
			Payload:   map[string]any{"seq": i},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if idx := log.VerifyChain(); idx != -1 {
		t.Fatalf("expected intact chain, broke at index %d", idx)
	}
}

func TestInMemoryLogVerifyChainDetectsTamper(t *testing.T) {
	log := NewInMemoryLog()
	ctx := context.Background()
	_, _ = log.Append(ctx, contracts.AuditEntry{TenantID: "t", Category: contracts.AuditCategoryOutbox, Payload: map[string]any{"a": 1}})
	_, _ = log.Append(ctx, contracts.AuditEntry{TenantID: "t", Category: contracts.AuditCategoryOutbox, Payload: map[string]any{"a": 2}})

	log.entries[0].entry.Payload["a"] = 999

	if idx := log.VerifyChain(); idx == -1 {
		t.Fatal("expected tampered chain to be detected")
	}
}

func TestProjectGuardrailState(t *testing.T) {
	result := contracts.GuardrailResult{
		Name:    contracts.GuardrailTrustThreshold,
		Allowed: false,
		Reason:  "below threshold",
		Metadata: map[string]any{
			"score":         0.5,
			"threshold":     0.8,
			"source":        "approvals",
			"missingSignal": false,
		},
	}
	state := ProjectGuardrailState(result)
	if state["allowed"] != false {
		t.Fatal("expected allowed=false")
	}
	if state["score"] != 0.5 {
		t.Fatalf("expected score projected, got %v", state["score"])
	}
}
