// Package tenants provides the tenant-scoping types that pkg/agent uses to
// resolve a tenant's guardrail defaults. A tenant is the isolation boundary: every
// envelope, catalog entry, and audit row is scoped to exactly one tenant_id.
package tenants

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relaykit/actionplane/pkg/guardrail"
)

// Status represents the current lifecycle status of a tenant.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Tenant is the scoping record for a tenant of the action control plane. It
// carries the tenant's default guardrail configuration, which GuardrailConfig
// maps into a guardrail.Config.
type Tenant struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Status           Status         `json:"status"`
	QuietHoursStart  int            `json:"quiet_hours_start"`
	QuietHoursEnd    int            `json:"quiet_hours_end"`
	TrustThreshold   float64        `json:"trust_threshold"`
	ScopeEnforced    bool           `json:"scope_enforced"`
	EvidenceRequired bool           `json:"evidence_required"`
	EnabledScopes    []string       `json:"enabled_scopes,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	SuspendedAt      *time.Time     `json:"suspended_at,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// IsActive reports whether the tenant may currently enqueue envelopes.
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

// GuardrailConfig converts the tenant's stored defaults into the pipeline's
// Config shape, so a resolved Tenant can be fed straight into
// guardrail.Evaluate without the caller re-deriving field names.
func (t *Tenant) GuardrailConfig() guardrail.Config {
	return guardrail.Config{
		QuietHoursStart:  t.QuietHoursStart,
		QuietHoursEnd:    t.QuietHoursEnd,
		TrustThreshold:   t.TrustThreshold,
		ScopeEnforced:    t.ScopeEnforced,
		EvidenceRequired: t.EvidenceRequired,
	}
}

// Store resolves tenant records by ID.
type Store interface {
	Get(ctx context.Context, tenantID string) (*Tenant, error)
	Put(ctx context.Context, t Tenant) error
}

// ErrNotFound is returned by Store.Get when no tenant exists for the given ID.
var ErrNotFound = fmt.Errorf("tenants: not found")

// InMemoryStore is a process-local tenant directory used for tests and
// single-instance demos.
type InMemoryStore struct {
	mu      sync.RWMutex
	tenants map[string]Tenant
}

// NewInMemoryStore returns an empty tenant directory.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{tenants: make(map[string]Tenant)}
}

func (s *InMemoryStore) Get(_ context.Context, tenantID string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := t
	return &cp, nil
}

func (s *InMemoryStore) Put(_ context.Context, t Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
	return nil
}
