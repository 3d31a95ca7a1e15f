package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/relaykit/actionplane/pkg/contracts"
)

// PostgresStore implements Store against the tool_catalog table and a
// read-only effective-policy view joining tenant overrides onto catalog
// defaults.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing *sql.DB opened with the lib/pq driver.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) ListTools(ctx context.Context, tenantID string) ([]*Entry, error) {
	const query = `
		SELECT tool_slug, display_name, description, version, risk, schema, required_scopes
		FROM tool_catalog
		WHERE tenant_id = $1
		ORDER BY tool_slug ASC
	`
	rows, err := p.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list_tools query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Entry
	for rows.Next() {
		raw, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		compiled, err := Compile(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, compiled)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetTool(ctx context.Context, tenantID, slug string) (*Entry, error) {
	const query = `
		SELECT tool_slug, display_name, description, version, risk, schema, required_scopes
		FROM tool_catalog
		WHERE tenant_id = $1 AND lower(tool_slug) = lower($2)
	`
	row := p.db.QueryRowContext(ctx, query, tenantID, slug)
	raw, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("catalog: get_tool query failed: %w", err)
	}
	return Compile(raw)
}

func (p *PostgresStore) GetEffectivePolicy(ctx context.Context, tenantID, slug string) (*contracts.EffectivePolicy, error) {
	const query = `
		SELECT effective_write_allowed, effective_rate_bucket, effective_risk, effective_approval
		FROM catalog_tools_view
		WHERE tenant_id = $1 AND lower(tool_slug) = lower($2)
	`
	var policy contracts.EffectivePolicy
	var rateBucket, approval sql.NullString
	err := p.db.QueryRowContext(ctx, query, tenantID, slug).Scan(
		&policy.WriteAllowed, &rateBucket, &policy.Risk, &approval)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get_effective_policy query failed: %w", err)
	}
	policy.RateBucket = rateBucket.String
	policy.Approval = approval.String
	return &policy, nil
}

func (p *PostgresStore) SyncEntries(ctx context.Context, tenantID string, entries []contracts.CatalogEntry) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: sync_entries begin failed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const currentVersion = `SELECT version FROM tool_catalog WHERE tenant_id = $1 AND tool_slug = $2`
	const upsert = `
		INSERT INTO tool_catalog (tenant_id, tool_slug, display_name, description, version, risk, schema, required_scopes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, tool_slug) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			description = EXCLUDED.description,
			version = EXCLUDED.version,
			risk = EXCLUDED.risk,
			schema = EXCLUDED.schema,
			required_scopes = EXCLUDED.required_scopes,
			updated_at = EXCLUDED.updated_at
	`
	now := time.Now().UTC()
	for _, e := range entries {
		scopes, err := json.Marshal(e.RequiredScopes)
		if err != nil {
			return fmt.Errorf("catalog: marshal required_scopes failed for %s: %w", e.Slug, err)
		}
		if _, err := Compile(e); err != nil {
			return err
		}

		var existingVersion string
		err = tx.QueryRowContext(ctx, currentVersion, tenantID, e.Slug).Scan(&existingVersion)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("catalog: sync_entries version lookup failed for %s: %w", e.Slug, err)
		}
		if err == nil {
			if downgrade, derr := isVersionDowngrade(existingVersion, e.Version); derr == nil && downgrade {
				continue
			}
		}

		if _, err := tx.ExecContext(ctx, upsert,
			tenantID, e.Slug, e.DisplayName, e.Description, e.Version, e.Risk, e.Schema, scopes, now,
		); err != nil {
			return fmt.Errorf("catalog: sync_entries upsert failed for %s: %w", e.Slug, err)
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (contracts.CatalogEntry, error) {
	var e contracts.CatalogEntry
	var risk string
	var scopes []byte
	if err := row.Scan(&e.Slug, &e.DisplayName, &e.Description, &e.Version, &risk, &e.Schema, &scopes); err != nil {
		return contracts.CatalogEntry{}, err
	}
	e.Risk = contracts.Risk(risk)
	if len(scopes) > 0 {
		if err := json.Unmarshal(scopes, &e.RequiredScopes); err != nil {
			return contracts.CatalogEntry{}, fmt.Errorf("catalog: corrupt required_scopes for %s: %w", e.Slug, err)
		}
	}
	return e, nil
}
