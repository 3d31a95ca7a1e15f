// Package agent implements the before-agent/before-model/after-model
// callback glue and the enqueue tool: the only write-path surface exposed
// to the LLM.
package agent

import (
	"sync"
	"time"

	"github.com/relaykit/actionplane/pkg/contracts"
)

// SharedState is the per-session scratch state the agent callbacks read and
// write across a turn: the desk queue, guardrail panel state, the approval
// modal, and the last enqueued envelope_id (which after-model uses to stop
// further tool calls within the same turn).
type SharedState struct {
	mu sync.Mutex

	Desk struct {
		Queue       []map[string]any
		LastUpdated time.Time
	}
	Guardrails     map[string]map[string]any
	ApprovalModal  map[string]any
	LastEnvelopeID string
}

// NewSharedState returns an empty, initialised SharedState scaffold.
func NewSharedState() *SharedState {
	s := &SharedState{
		Guardrails: make(map[string]map[string]any),
	}
	s.Desk.Queue = []map[string]any{}
	s.Desk.LastUpdated = time.Now().UTC()
	s.ApprovalModal = map[string]any{
		"envelopeId":     nil,
		"proposal":       nil,
		"requiredScopes": []string{},
		"approvalState":  "pending",
	}
	return s
}

// SeedQueue hydrates the desk queue from pending outbox records,
// deduplicated by envelope_id. Called from before-agent.
func (s *SharedState) SeedQueue(records []*contracts.OutboxRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(records))
	queue := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		if seen[rec.Envelope.EnvelopeID] {
			continue
		}
		seen[rec.Envelope.EnvelopeID] = true
		queue = append(queue, map[string]any{
			"envelopeId": rec.Envelope.EnvelopeID,
			"toolSlug":   rec.Envelope.ToolSlug,
			"status":     string(rec.Status),
			"risk":       string(rec.Envelope.Risk),
		})
	}
	s.Desk.Queue = queue
	s.Desk.LastUpdated = time.Now().UTC()
}

// WriteGuardrailState installs the normalised guardrail panel state for this
// turn, replacing whatever was there before.
func (s *SharedState) WriteGuardrailState(panels map[string]map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Guardrails = panels
}

// SetApprovalModal populates the approval modal for a newly enqueued
// envelope and appends it to the desk queue.
func (s *SharedState) SetApprovalModal(envelopeID string, requiredScopes []string, proposal map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ApprovalModal = map[string]any{
		"envelopeId":     envelopeID,
		"proposal":       proposal,
		"requiredScopes": requiredScopes,
		"approvalState":  "pending",
	}
	s.Desk.Queue = append(s.Desk.Queue, map[string]any{
		"envelopeId": envelopeID,
		"status":     "pending",
	})
	s.Desk.LastUpdated = time.Now().UTC()
	s.LastEnvelopeID = envelopeID
}

// HasEnqueuedThisTurn reports whether an enqueue happened during this turn,
// which after-model uses to end the invocation.
func (s *SharedState) HasEnqueuedThisTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastEnvelopeID != ""
}
