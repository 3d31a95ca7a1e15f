package actions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/relaykit/actionplane/pkg/contracts"
)

// PostgresProjector upserts into the actions table, keyed on external_id so
// retried dispatches against the same external_id stay idempotent.
type PostgresProjector struct {
	db *sql.DB
}

// NewPostgresProjector wraps an existing *sql.DB.
func NewPostgresProjector(db *sql.DB) *PostgresProjector {
	return &PostgresProjector{db: db}
}

func (p *PostgresProjector) RecordSuccess(ctx context.Context, rec *contracts.OutboxRecord, result map[string]any) error {
	entry := toEntry(rec, result)

	tool, err := json.Marshal(map[string]string{"name": entry.ToolName, "provider": entry.Provider})
	if err != nil {
		return fmt.Errorf("actions: marshal tool failed: %w", err)
	}
	args, err := json.Marshal(entry.Arguments)
	if err != nil {
		return fmt.Errorf("actions: marshal arguments failed: %w", err)
	}
	resultJSON, err := json.Marshal(entry.Result)
	if err != nil {
		return fmt.Errorf("actions: marshal result failed: %w", err)
	}

	const upsert = `
		INSERT INTO actions (tenant_id, external_id, type, tool, args, risk, approval, result)
		VALUES ($1, $2, 'mcp.exec', $3, $4, $5, 'granted', $6)
		ON CONFLICT (external_id) DO UPDATE SET
			result = EXCLUDED.result,
			tool = EXCLUDED.tool,
			args = EXCLUDED.args
	`
	if _, err := p.db.ExecContext(ctx, upsert,
		entry.TenantID, entry.ExternalID, tool, args, entry.Risk, resultJSON,
	); err != nil {
		return fmt.Errorf("actions: upsert failed for external_id=%s: %w", entry.ExternalID, err)
	}
	return nil
}
