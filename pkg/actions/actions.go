// Package actions projects successfully dispatched envelopes into a
// secondary actions-history table for analytics and history views. This is
// a supplementary surface: failures here never undo the worker's success
// disposition for the underlying outbox record.
package actions

import (
	"context"
	"strings"
	"sync"

	"github.com/relaykit/actionplane/pkg/contracts"
)

// Entry is one row of the actions-history projection. Tool is split into
// provider/name on the first "__" in the slug, mirroring the catalog's
// "PROVIDER__tool.name" slug convention.
type Entry struct {
	TenantID   string
	ExternalID string
	Provider   string
	ToolName   string
	Arguments  map[string]any
	Risk       contracts.Risk
	Result     map[string]any
}

// Projector records one entry per successful dispatch.
type Projector interface {
	RecordSuccess(ctx context.Context, rec *contracts.OutboxRecord, result map[string]any) error
}

func toEntry(rec *contracts.OutboxRecord, result map[string]any) Entry {
	provider, tool := "", rec.Envelope.ToolSlug
	if idx := strings.Index(rec.Envelope.ToolSlug, "__"); idx >= 0 {
		provider = rec.Envelope.ToolSlug[:idx]
		tool = rec.Envelope.ToolSlug[idx+2:]
	}
	if result == nil {
		result = map[string]any{"status": "sent"}
	}
	return Entry{
		TenantID:   rec.Envelope.TenantID,
		ExternalID: rec.Envelope.ExternalID,
		Provider:   provider,
		ToolName:   tool,
		Arguments:  rec.Envelope.Arguments,
		Risk:       rec.Envelope.Risk,
		Result:     result,
	}
}

// InMemoryProjector is an idempotent-by-external_id projector for tests and
// demos.
type InMemoryProjector struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewInMemoryProjector creates an empty projector.
func NewInMemoryProjector() *InMemoryProjector {
	return &InMemoryProjector{entries: make(map[string]Entry)}
}

func (p *InMemoryProjector) RecordSuccess(_ context.Context, rec *contracts.OutboxRecord, result map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry := toEntry(rec, result)
	p.entries[entry.ExternalID] = entry
	return nil
}

// Entries returns all projected entries for tenantID, in no particular order.
func (p *InMemoryProjector) Entries(tenantID string) []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Entry
	for _, e := range p.entries {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out
}
