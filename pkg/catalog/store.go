package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/relaykit/actionplane/pkg/contracts"
)

// Store is the catalog + policy resolver contract. Lookups are
// case-insensitive on slug. Two implementations exist: InMemoryStore for
// tests/demos and PostgresStore for durable deployments; both satisfy this
// interface so the enqueue tool and worker depend only on it.
type Store interface {
	ListTools(ctx context.Context, tenantID string) ([]*Entry, error)
	GetTool(ctx context.Context, tenantID, slug string) (*Entry, error)
	GetEffectivePolicy(ctx context.Context, tenantID, slug string) (*contracts.EffectivePolicy, error)
	SyncEntries(ctx context.Context, tenantID string, entries []contracts.CatalogEntry) error
}

// InMemoryStore is the in-memory catalog implementation used for tests and
// demos, keyed by (tenant, lower(slug)).
type InMemoryStore struct {
	mu       sync.RWMutex
	entries  map[string]map[string]*Entry
	policies map[string]map[string]contracts.EffectivePolicy
}

// NewInMemoryStore creates an empty in-memory catalog store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries:  make(map[string]map[string]*Entry),
		policies: make(map[string]map[string]contracts.EffectivePolicy),
	}
}

func key(slug string) string { return strings.ToLower(strings.TrimSpace(slug)) }

func (s *InMemoryStore) ListTools(_ context.Context, tenantID string) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tools := s.entries[tenantID]
	out := make([]*Entry, 0, len(tools))
	for _, e := range tools {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (s *InMemoryStore) GetTool(_ context.Context, tenantID, slug string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tools := s.entries[tenantID]
	if tools == nil {
		return nil, nil
	}
	return tools[key(slug)], nil
}

func (s *InMemoryStore) GetEffectivePolicy(_ context.Context, tenantID, slug string) (*contracts.EffectivePolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	policies := s.policies[tenantID]
	if policies == nil {
		return nil, nil
	}
	p, ok := policies[key(slug)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// SetPolicy installs the effective policy for a (tenant, slug) pair. Test
// and bootstrap helper; production deployments resolve policy from the
// tenant-override view instead (see PostgresStore).
func (s *InMemoryStore) SetPolicy(tenantID, slug string, policy contracts.EffectivePolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.policies[tenantID] == nil {
		s.policies[tenantID] = make(map[string]contracts.EffectivePolicy)
	}
	s.policies[tenantID][key(slug)] = policy
}

// SyncEntries upserts the full entry set from an external source. The
// upsert is idempotent keyed on (tenant, slug); a resync with an older
// semantic version for an existing slug is skipped, without an error, and
// the live entry is kept.
func (s *InMemoryStore) SyncEntries(_ context.Context, tenantID string, entries []contracts.CatalogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries[tenantID] == nil {
		s.entries[tenantID] = make(map[string]*Entry)
	}
	bucket := s.entries[tenantID]

	for _, raw := range entries {
		k := key(raw.Slug)
		if existing, ok := bucket[k]; ok {
			if downgrade, err := isVersionDowngrade(existing.Version, raw.Version); err == nil && downgrade {
				continue
			}
		}
		compiled, err := Compile(raw)
		if err != nil {
			return fmt.Errorf("catalog: sync_entries failed for %s: %w", raw.Slug, err)
		}
		bucket[k] = compiled
	}
	return nil
}

// isVersionDowngrade reports whether candidate is an older semantic version
// than current. A non-semver version string on either side returns an
// error; SyncEntries treats that as no downgrade (so non-semver catalogs
// keep working).
func isVersionDowngrade(current, candidate string) (bool, error) {
	cur, err := semver.NewVersion(current)
	if err != nil {
		return false, err
	}
	next, err := semver.NewVersion(candidate)
	if err != nil {
		return false, err
	}
	return next.LessThan(cur), nil
}
