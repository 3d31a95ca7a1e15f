package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/relaykit/actionplane/pkg/catalog"
	"github.com/relaykit/actionplane/pkg/contracts"
	"github.com/relaykit/actionplane/pkg/envelope"
)

// EnqueueRequest is the enqueue tool's agent-facing input shape.
type EnqueueRequest struct {
	Envelope       map[string]any
	RequiredScopes []string
	Proposal       map[string]any
}

// EnqueueResult is the tool's output, returned to the LLM either as a queued
// confirmation or an error — never a partial commit.
type EnqueueResult struct {
	Status     string `json:"status"`
	EnvelopeID string `json:"envelopeId,omitempty"`
	Risk       string `json:"risk,omitempty"`
	Message    string `json:"message,omitempty"`
}

// EnqueueTool is the only write-path tool exposed to the LLM: slug
// extraction, catalog lookup, argument schema validation, envelope
// construction, outbox enqueue, audit emission, and shared-state
// projection, all atomic from the caller's perspective — on any failure,
// nothing is written.
type EnqueueTool struct {
	Deps    Deps
	Catalog catalog.Store
	State   *SharedState
}

// Enqueue runs the full enqueue path described above.
func (t *EnqueueTool) Enqueue(ctx context.Context, req EnqueueRequest) EnqueueResult {
	result, err := t.enqueue(ctx, req)
	if err != nil {
		return EnqueueResult{Status: "error", Message: err.Error()}
	}
	return result
}

func (t *EnqueueTool) enqueue(ctx context.Context, req EnqueueRequest) (EnqueueResult, error) {
	slug := extractSlug(req.Envelope)
	if slug == "" {
		return EnqueueResult{}, fmt.Errorf("tool_slug is required to enqueue an envelope")
	}

	entry, err := t.Catalog.GetTool(ctx, t.Deps.TenantID, slug)
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("catalog lookup failed: %w", err)
	}
	if entry == nil {
		return EnqueueResult{}, fmt.Errorf("tool %q not found in catalog", slug)
	}

	arguments, ok := req.Envelope["arguments"].(map[string]any)
	if !ok {
		return EnqueueResult{}, fmt.Errorf("envelope arguments must be a mapping")
	}
	if err := entry.ValidateArguments(arguments); err != nil {
		return EnqueueResult{}, fmt.Errorf("argument validation failed: %w", err)
	}

	env, err := envelope.FromPayload(req.Envelope, t.Deps.TenantID, entry.Risk)
	if err != nil {
		return EnqueueResult{}, err
	}

	rec, err := t.Deps.Outbox.Enqueue(ctx, *env, nil)
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("outbox enqueue failed: %w", err)
	}

	if _, err := t.Deps.Audit.Append(ctx, contracts.AuditEntry{
		TenantID:  t.Deps.TenantID,
		ActorType: contracts.ActorAgent,
		Category:  contracts.AuditCategoryOutbox,
		Payload: map[string]any{
			"envelope_id": rec.Envelope.EnvelopeID,
			"tool_slug":   rec.Envelope.ToolSlug,
			"status":      string(rec.Status),
		},
	}); err != nil {
		return EnqueueResult{}, fmt.Errorf("audit write failed: %w", err)
	}

	scopes := req.RequiredScopes
	if len(scopes) == 0 {
		scopes = entry.RequiredScopes
	}
	if t.State != nil {
		t.State.SetApprovalModal(rec.Envelope.EnvelopeID, scopes, req.Proposal)
	}

	return EnqueueResult{
		Status:     "queued",
		EnvelopeID: rec.Envelope.EnvelopeID,
		Risk:       string(rec.Envelope.Risk),
	}, nil
}

func extractSlug(env map[string]any) string {
	if v, ok := env["tool_slug"].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if v, ok := env["slug"].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return ""
}
