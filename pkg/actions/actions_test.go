package actions

import (
	"context"
	"testing"
	"time"

	"github.com/relaykit/actionplane/pkg/contracts"
)

func sampleRecord() *contracts.OutboxRecord {
	return &contracts.OutboxRecord{
		Envelope: contracts.Envelope{
			EnvelopeID: "env-1",
			TenantID:   "tenant-demo",
			ToolSlug:   "GMAIL__drafts.create",
			Arguments:  map[string]any{"to": "c@e.com"},
			ExternalID: "ext-1",
			Risk:       contracts.RiskMedium,
			CreatedAt:  time.Now().UTC(),
		},
		Status: contracts.StatusSuccess,
	}
}

func TestRecordSuccessSplitsProviderAndToolName(t *testing.T) {
	p := NewInMemoryProjector()
	if err := p.RecordSuccess(context.Background(), sampleRecord(), map[string]any{"id": "draft-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := p.Entries("tenant-demo")
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Provider != "GMAIL" || entries[0].ToolName != "drafts.create" {
		t.Fatalf("expected provider/tool split, got %q/%q", entries[0].Provider, entries[0].ToolName)
	}
}

func TestRecordSuccessIsIdempotentByExternalID(t *testing.T) {
	p := NewInMemoryProjector()
	rec := sampleRecord()

	_ = p.RecordSuccess(context.Background(), rec, map[string]any{"id": "draft-1"})
	_ = p.RecordSuccess(context.Background(), rec, map[string]any{"id": "draft-1-retry"})

	entries := p.Entries("tenant-demo")
	if len(entries) != 1 {
		t.Fatalf("expected idempotent upsert to leave exactly 1 entry, got %d", len(entries))
	}
	if entries[0].Result["id"] != "draft-1-retry" {
		t.Fatal("expected latest result to win on retried projection")
	}
}

func TestRecordSuccessDefaultsResultWhenNil(t *testing.T) {
	p := NewInMemoryProjector()
	if err := p.RecordSuccess(context.Background(), sampleRecord(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries := p.Entries("tenant-demo")
	if entries[0].Result["status"] != "sent" {
		t.Fatal("expected default result {status: sent} when result is nil")
	}
}

func TestSlugWithoutSeparatorHasNoProvider(t *testing.T) {
	rec := sampleRecord()
	rec.Envelope.ToolSlug = "standalone_tool"
	p := NewInMemoryProjector()
	_ = p.RecordSuccess(context.Background(), rec, nil)

	entries := p.Entries("tenant-demo")
	if entries[0].Provider != "" || entries[0].ToolName != "standalone_tool" {
		t.Fatalf("expected no provider split, got %q/%q", entries[0].Provider, entries[0].ToolName)
	}
}
