// Package audit implements the append-only, hash-chained decision log and
// its projection into agent-facing guardrail shared state.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaykit/actionplane/pkg/canonicalize"
	"github.com/relaykit/actionplane/pkg/contracts"
)

// Log appends AuditEntry records and exposes them for the worker's status
// surface and the agent UI's audit views.
type Log interface {
	Append(ctx context.Context, entry contracts.AuditEntry) (contracts.AuditEntry, error)
	List(ctx context.Context, tenantID string, limit int) ([]contracts.AuditEntry, error)
}

type chained struct {
	id           string
	previousHash string
	hash         string
	entry        contracts.AuditEntry
}

// InMemoryLog is a process-local, hash-chained audit log. The chain lets a
// reader detect tampering or gaps: each entry's hash covers its own payload
// plus the previous entry's hash.
type InMemoryLog struct {
	mu        sync.Mutex
	chainHead string
	entries   []chained
}

// NewInMemoryLog creates an empty hash-chained audit log.
func NewInMemoryLog() *InMemoryLog {
	return &InMemoryLog{chainHead: "genesis"}
}

func (l *InMemoryLog) Append(_ context.Context, entry contracts.AuditEntry) (contracts.AuditEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	hash, err := computeEntryHash(l.chainHead, entry)
	if err != nil {
		return contracts.AuditEntry{}, fmt.Errorf("audit: hash computation failed: %w", err)
	}

	l.entries = append(l.entries, chained{id: entry.ID, previousHash: l.chainHead, hash: hash, entry: entry})
	l.chainHead = hash
	return entry, nil
}

func (l *InMemoryLog) List(_ context.Context, tenantID string, limit int) ([]contracts.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []contracts.AuditEntry
	for i := len(l.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		e := l.entries[i].entry
		if tenantID != "" && e.TenantID != tenantID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// VerifyChain recomputes every entry's hash and confirms the chain is
// unbroken. Returns the index of the first broken link, or -1 if intact.
func (l *InMemoryLog) VerifyChain() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := "genesis"
	for i, c := range l.entries {
		got, err := computeEntryHash(prev, c.entry)
		if err != nil || got != c.hash || c.previousHash != prev {
			return i
		}
		prev = c.hash
	}
	return -1
}

func computeEntryHash(previousHash string, entry contracts.AuditEntry) (string, error) {
	canonical, err := canonicalize.JCS(map[string]any{
		"id":         entry.ID,
		"tenant_id":  entry.TenantID,
		"actor_type": entry.ActorType,
		"actor_id":   entry.ActorID,
		"category":   entry.Category,
		"payload":    entry.Payload,
		"created_at": entry.CreatedAt.Format(time.RFC3339Nano),
		"prev":       previousHash,
	})
	if err != nil {
		return "", err
	}
	return canonicalize.HashBytes(canonical), nil
}
