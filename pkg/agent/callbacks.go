package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/relaykit/actionplane/pkg/audit"
	"github.com/relaykit/actionplane/pkg/contracts"
	"github.com/relaykit/actionplane/pkg/guardrail"
	"github.com/relaykit/actionplane/pkg/store"
	"github.com/relaykit/actionplane/pkg/tenants"
)

// Deps wires the collaborators the callbacks and enqueue tool need.
// Guardrails is used as-is when Tenants is nil; when Tenants is set, it is
// resolved per call from the tenant record instead, so a single Deps value
// can serve more than one tenant's session.
type Deps struct {
	TenantID   string
	Outbox     store.OutboxStore
	Audit      audit.Log
	Guardrails guardrail.Config
	Tenants    tenants.Store
}

func (d Deps) resolveGuardrails(ctx context.Context) (guardrail.Config, error) {
	if d.Tenants == nil {
		return d.Guardrails, nil
	}
	t, err := d.Tenants.Get(ctx, d.TenantID)
	if err != nil {
		return guardrail.Config{}, fmt.Errorf("agent: resolving tenant %q: %w", d.TenantID, err)
	}
	return t.GuardrailConfig(), nil
}

// BeforeAgent seeds the desk queue from any pending outbox records so a
// resumed session shows work already in flight.
func BeforeAgent(ctx context.Context, deps Deps, state *SharedState) error {
	pending, err := deps.Outbox.ListPending(ctx, deps.TenantID, 0)
	if err != nil {
		return fmt.Errorf("agent: before-agent hydrate failed: %w", err)
	}
	state.SeedQueue(pending)
	return nil
}

// ModelResponse is the synthetic response the before-model callback returns
// when a guardrail blocks the turn.
type ModelResponse struct {
	Blocked bool
	Text    string
}

// BeforeModel runs the guardrail pipeline, writes its normalised state and
// audit entries, and returns a blocking ModelResponse when the turn must be
// short-circuited.
func BeforeModel(ctx context.Context, deps Deps, state *SharedState, input guardrail.Input) (*ModelResponse, error) {
	cfg, err := deps.resolveGuardrails(ctx)
	if err != nil {
		return nil, err
	}
	result, err := guardrail.Evaluate(cfg, input)
	if err != nil {
		return nil, fmt.Errorf("agent: guardrail configuration error: %w", err)
	}

	panels := make(map[string]map[string]any, len(result.Results))
	for k, v := range audit.ProjectGuardrailResults(result.Results) {
		panels[k] = v
	}
	state.WriteGuardrailState(panels)

	for _, r := range result.Results {
		payload := map[string]any{"name": string(r.Name), "allowed": r.Allowed, "reason": r.Reason}
		if _, err := deps.Audit.Append(ctx, contracts.AuditEntry{
			TenantID:  deps.TenantID,
			ActorType: contracts.ActorAgent,
			Category:  contracts.AuditCategoryGuardrail,
			Payload:   payload,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return nil, fmt.Errorf("agent: guardrail audit write failed: %w", err)
		}
	}

	if blocking := result.Blocking(); blocking != nil {
		reason := blocking.Reason
		if reason == "" {
			reason = fmt.Sprintf("Request blocked by %s guardrail.", blocking.Name)
		}
		text := "Guardrail prevented this action. " + reason + " Please adjust the request or submit for approval later."
		return &ModelResponse{Blocked: true, Text: text}, nil
	}
	return &ModelResponse{Blocked: false}, nil
}

// PromptPrefix builds the system-prompt prefix listing objectives and
// catalog snippets, prepended ahead of the original system instruction when
// the turn is not blocked.
func PromptPrefix(objectives []contracts.Objective, catalogSnippets []string) string {
	prefix := "You are an operator agent for the action control plane.\n"
	if len(objectives) > 0 {
		prefix += "Current objectives:\n"
		for _, o := range objectives {
			prefix += fmt.Sprintf("- %s (%s → %s)\n", o.Title, o.Metric, o.Target)
		}
	}
	if len(catalogSnippets) > 0 {
		prefix += "Available tools:\n"
		for _, s := range catalogSnippets {
			prefix += "- " + s + "\n"
		}
	}
	return prefix
}

// AfterModel ends the invocation when an enqueue happened during this turn,
// preventing further tool calls in the same turn.
func AfterModel(state *SharedState) (endInvocation bool) {
	return state.HasEnqueuedThisTurn()
}
