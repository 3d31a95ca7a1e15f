package agent

import (
	"context"
	"testing"

	"github.com/relaykit/actionplane/pkg/audit"
	"github.com/relaykit/actionplane/pkg/catalog"
	"github.com/relaykit/actionplane/pkg/contracts"
	"github.com/relaykit/actionplane/pkg/store"
)

func newTool(t *testing.T) (*EnqueueTool, *store.InMemoryOutboxStore) {
	t.Helper()
	c := catalog.NewInMemoryStore()
	err := c.SyncEntries(context.Background(), "tenant-demo", []contracts.CatalogEntry{{
		Slug:        "GMAIL__drafts.create",
		DisplayName: "Create Gmail draft",
		Version:     "1.0.0",
		Risk:        contracts.RiskMedium,
		Schema: `{
			"type": "object",
			"properties": {"to": {"type": "string"}},
			"required": ["to"]
		}`,
		RequiredScopes: []string{"gmail.send"},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outbox := store.NewInMemoryOutboxStore()
	tool := &EnqueueTool{
		Deps: Deps{
			TenantID: "tenant-demo",
			Outbox:   outbox,
			Audit:    audit.NewInMemoryLog(),
		},
		Catalog: c,
		State:   NewSharedState(),
	}
	return tool, outbox
}

func TestEnqueueSuccessReturnsQueuedStatus(t *testing.T) {
	tool, _ := newTool(t)
	result := tool.Enqueue(context.Background(), EnqueueRequest{
		Envelope: map[string]any{
			"tool_slug": "GMAIL__drafts.create",
			"arguments": map[string]any{"to": "c@e.com"},
		},
	})
	if result.Status != "queued" {
		t.Fatalf("expected queued, got %+v", result)
	}
	if result.EnvelopeID == "" {
		t.Fatal("expected envelope id to be assigned")
	}
}

func TestEnqueueMissingSlugReturnsError(t *testing.T) {
	tool, _ := newTool(t)
	result := tool.Enqueue(context.Background(), EnqueueRequest{
		Envelope: map[string]any{"arguments": map[string]any{"to": "c@e.com"}},
	})
	if result.Status != "error" {
		t.Fatalf("expected error, got %+v", result)
	}
}

func TestEnqueueUnknownToolReturnsErrorWithoutOutboxWrite(t *testing.T) {
	tool, outbox := newTool(t)
	result := tool.Enqueue(context.Background(), EnqueueRequest{
		Envelope: map[string]any{
			"tool_slug": "UNKNOWN__tool",
			"arguments": map[string]any{},
		},
	})
	if result.Status != "error" {
		t.Fatalf("expected error, got %+v", result)
	}
	pending, _ := outbox.ListPending(context.Background(), "tenant-demo", 0)
	if len(pending) != 0 {
		t.Fatal("expected no outbox write on unknown tool")
	}
}

func TestEnqueueSchemaViolationReturnsErrorWithoutOutboxWrite(t *testing.T) {
	tool, outbox := newTool(t)
	result := tool.Enqueue(context.Background(), EnqueueRequest{
		Envelope: map[string]any{
			"tool_slug": "GMAIL__drafts.create",
			"arguments": map[string]any{}, // missing required "to"
		},
	})
	if result.Status != "error" {
		t.Fatalf("expected error, got %+v", result)
	}
	pending, _ := outbox.ListPending(context.Background(), "tenant-demo", 0)
	if len(pending) != 0 {
		t.Fatal("expected no outbox write on schema violation")
	}
}

func TestEnqueueDefaultsScopesToCatalogEntryScopes(t *testing.T) {
	tool, _ := newTool(t)
	tool.Enqueue(context.Background(), EnqueueRequest{
		Envelope: map[string]any{
			"tool_slug": "GMAIL__drafts.create",
			"arguments": map[string]any{"to": "c@e.com"},
		},
	})
	scopes, _ := tool.State.ApprovalModal["requiredScopes"].([]string)
	if len(scopes) != 1 || scopes[0] != "gmail.send" {
		t.Fatalf("expected default catalog scopes, got %v", tool.State.ApprovalModal["requiredScopes"])
	}
}

func TestEnqueueSetsLastEnvelopeIDForAfterModel(t *testing.T) {
	tool, _ := newTool(t)
	tool.Enqueue(context.Background(), EnqueueRequest{
		Envelope: map[string]any{
			"tool_slug": "GMAIL__drafts.create",
			"arguments": map[string]any{"to": "c@e.com"},
		},
	})
	if !tool.State.HasEnqueuedThisTurn() {
		t.Fatal("expected LastEnvelopeID to be set after a successful enqueue")
	}
}
