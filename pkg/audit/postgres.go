package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relaykit/actionplane/pkg/contracts"
)

// PostgresLog persists audit entries to the audit_log table described in
// the persistence schema. It does not hash-chain its entries;
// callers that need tamper-evidence across restarts should layer
// InMemoryLog's chain computation on top before calling Append.
type PostgresLog struct {
	db *sql.DB
}

// NewPostgresLog wraps an existing *sql.DB (opened with the "postgres"
// driver via lib/pq).
func NewPostgresLog(db *sql.DB) *PostgresLog {
	return &PostgresLog{db: db}
}

func (p *PostgresLog) Append(ctx context.Context, entry contracts.AuditEntry) (contracts.AuditEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return contracts.AuditEntry{}, fmt.Errorf("audit: marshal payload: %w", err)
	}

	const query = `
		INSERT INTO audit_log (id, tenant_id, actor_type, actor_id, category, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = p.db.ExecContext(ctx, query,
		entry.ID, entry.TenantID, entry.ActorType, entry.ActorID, entry.Category, payload, entry.CreatedAt)
	if err != nil {
		return contracts.AuditEntry{}, fmt.Errorf("audit: insert failed: %w", err)
	}
	return entry, nil
}

func (p *PostgresLog) List(ctx context.Context, tenantID string, limit int) ([]contracts.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
		SELECT id, tenant_id, actor_type, actor_id, category, payload, created_at
		FROM audit_log
		WHERE ($1 = '' OR tenant_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := p.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []contracts.AuditEntry
	for rows.Next() {
		var e contracts.AuditEntry
		var payload []byte
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ActorType, &e.ActorID, &e.Category, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan failed: %w", err)
		}
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("audit: corrupt payload for entry %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
