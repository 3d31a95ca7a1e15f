package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/relaykit/actionplane/pkg/contracts"
)

// PostgresOutboxStore persists OutboxRecords to the outbox table described
// in the persistence schema, mirroring DLQ rows into outbox_dlq. Concurrent
// workers sharing this store are safe: MarkInProgress uses a conditional
// UPDATE ... WHERE status = 'pending' so only one worker wins the claim.
type PostgresOutboxStore struct {
	db *sql.DB
}

// NewPostgresOutboxStore wraps an existing *sql.DB opened with the lib/pq
// driver.
func NewPostgresOutboxStore(db *sql.DB) *PostgresOutboxStore {
	return &PostgresOutboxStore{db: db}
}

func (p *PostgresOutboxStore) Enqueue(ctx context.Context, env contracts.Envelope, metadata map[string]any) (*contracts.OutboxRecord, error) {
	args, err := json.Marshal(env.Arguments)
	if err != nil {
		return nil, fmt.Errorf("store: marshal arguments failed: %w", err)
	}
	trustCtx, err := json.Marshal(env.TrustContext)
	if err != nil {
		return nil, fmt.Errorf("store: marshal trust_context failed: %w", err)
	}
	mergedMeta := map[string]any{}
	for k, v := range env.Metadata {
		mergedMeta[k] = v
	}
	for k, v := range metadata {
		mergedMeta[k] = v
	}
	meta, err := json.Marshal(mergedMeta)
	if err != nil {
		return nil, fmt.Errorf("store: marshal metadata failed: %w", err)
	}

	now := time.Now().UTC()
	const query = `
		INSERT INTO outbox (
			id, tenant_id, tool_slug, arguments, connected_account_id, risk,
			external_id, trust_context, metadata, status, attempts,
			queued_at, updated_at, next_run_at, dlq
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,'pending',0,$10,$10,NULL,false)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := p.db.ExecContext(ctx, query,
		env.EnvelopeID, env.TenantID, env.ToolSlug, args, env.ConnectedAccountID, string(env.Risk),
		env.ExternalID, trustCtx, meta, now,
	); err != nil {
		return nil, fmt.Errorf("store: enqueue failed: %w", err)
	}

	return &contracts.OutboxRecord{
		Envelope:  env,
		Status:    contracts.StatusPending,
		QueuedAt:  now,
		UpdatedAt: now,
	}, nil
}

const selectColumns = `
	id, tenant_id, tool_slug, arguments, connected_account_id, risk,
	external_id, trust_context, metadata, status, attempts, last_error,
	queued_at, updated_at, next_run_at, dlq
`

func (p *PostgresOutboxStore) Get(ctx context.Context, envelopeID string) (*contracts.OutboxRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM outbox WHERE id = $1`, selectColumns)
	row := p.db.QueryRowContext(ctx, query, envelopeID)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get failed: %w", err)
	}
	return rec, nil
}

// limitClause renders a LIMIT clause parameterized as $argPos, or an empty
// string when limit<=0 — matching InMemoryOutboxStore, where a non-positive
// limit means unbounded rather than a silently-applied default cap.
func limitClause(limit, argPos int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf("LIMIT $%d", argPos)
}

func (p *PostgresOutboxStore) ListPending(ctx context.Context, tenantID string, limit int) ([]*contracts.OutboxRecord, error) {
	args := []any{tenantID}
	if limit > 0 {
		args = append(args, limit)
	}
	query := fmt.Sprintf(`
		SELECT %s FROM outbox
		WHERE status = 'pending'
		  AND (next_run_at IS NULL OR next_run_at <= now())
		  AND ($1 = '' OR tenant_id = $1)
		ORDER BY next_run_at NULLS FIRST, queued_at ASC
		%s
	`, selectColumns, limitClause(limit, 2))
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list_pending query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.OutboxRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list_pending scan failed: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *PostgresOutboxStore) ListDLQ(ctx context.Context, tenantID string, limit int) ([]*contracts.OutboxRecord, error) {
	args := []any{tenantID}
	if limit > 0 {
		args = append(args, limit)
	}
	query := fmt.Sprintf(`
		SELECT %s FROM outbox
		WHERE dlq = true AND ($1 = '' OR tenant_id = $1)
		ORDER BY updated_at DESC
		%s
	`, selectColumns, limitClause(limit, 2))
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list_dlq query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.OutboxRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list_dlq scan failed: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkInProgress performs the claim atomically: the conditional
// WHERE status = 'pending' guarantees only one worker's UPDATE affects a
// row, satisfying the "no double-claim" invariant for multi-worker
// deployments sharing this store.
func (p *PostgresOutboxStore) MarkInProgress(ctx context.Context, envelopeID string) error {
	const query = `
		UPDATE outbox SET status = 'in_progress', updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`
	res, err := p.db.ExecContext(ctx, query, envelopeID)
	if err != nil {
		return fmt.Errorf("store: mark_in_progress failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: mark_in_progress rows_affected failed: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresOutboxStore) MarkSuccess(ctx context.Context, envelopeID string, result map[string]any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("store: marshal result failed: %w", err)
	}
	const query = `
		UPDATE outbox
		SET status = 'success', next_run_at = NULL, updated_at = now(),
		    metadata = metadata || $2::jsonb
		WHERE id = $1
	`
	_, err = p.db.ExecContext(ctx, query, envelopeID, resultJSON)
	if err != nil {
		return fmt.Errorf("store: mark_success failed: %w", err)
	}
	return nil
}

// MarkFailure increments attempts and, when moveToDLQ is set, transitions
// the record to dlq and upserts the outbox_dlq mirror row in the same
// transaction — a crash between the two statements is recoverable by a
// scheduled sweep.
func (p *PostgresOutboxStore) MarkFailure(ctx context.Context, envelopeID string, errMsg string, retryIn *time.Duration, moveToDLQ bool) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: mark_failure begin failed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if moveToDLQ {
		const query = `
			UPDATE outbox
			SET status = 'dlq', dlq = true, attempts = attempts + 1,
			    last_error = $2, next_run_at = NULL, updated_at = now()
			WHERE id = $1
		`
		if _, err := tx.ExecContext(ctx, query, envelopeID, errMsg); err != nil {
			return fmt.Errorf("store: mark_failure(dlq) failed: %w", err)
		}
		const mirror = `
			INSERT INTO outbox_dlq (id, tenant_id, tool_slug, arguments, last_error, attempts, queued_at, updated_at)
			SELECT id, tenant_id, tool_slug, arguments, last_error, attempts, queued_at, updated_at
			FROM outbox WHERE id = $1
			ON CONFLICT (id) DO UPDATE SET
				last_error = EXCLUDED.last_error,
				attempts = EXCLUDED.attempts,
				updated_at = EXCLUDED.updated_at
		`
		if _, err := tx.ExecContext(ctx, mirror, envelopeID); err != nil {
			return fmt.Errorf("store: dlq mirror upsert failed: %w", err)
		}
		return tx.Commit()
	}

	var nextRunAt any
	if retryIn != nil {
		next := time.Now().UTC().Add(*retryIn)
		nextRunAt = next
	}
	const query = `
		UPDATE outbox
		SET status = 'failed', attempts = attempts + 1, last_error = $2,
		    next_run_at = $3, updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, query, envelopeID, errMsg, nextRunAt); err != nil {
		return fmt.Errorf("store: mark_failure failed: %w", err)
	}
	return tx.Commit()
}

func (p *PostgresOutboxStore) MarkConflict(ctx context.Context, envelopeID string, reason string) error {
	const query = `
		UPDATE outbox
		SET status = 'conflict', attempts = attempts + 1, last_error = $2,
		    next_run_at = NULL, updated_at = now()
		WHERE id = $1
	`
	_, err := p.db.ExecContext(ctx, query, envelopeID, reason)
	if err != nil {
		return fmt.Errorf("store: mark_conflict failed: %w", err)
	}
	return nil
}

func (p *PostgresOutboxStore) Defer(ctx context.Context, envelopeID string, retryIn time.Duration) error {
	next := time.Now().UTC().Add(retryIn)
	const query = `
		UPDATE outbox
		SET status = 'pending', next_run_at = $2, updated_at = now()
		WHERE id = $1
	`
	_, err := p.db.ExecContext(ctx, query, envelopeID, next)
	if err != nil {
		return fmt.Errorf("store: defer failed: %w", err)
	}
	return nil
}

func (p *PostgresOutboxStore) RequeueFromDLQ(ctx context.Context, envelopeID string) (*contracts.OutboxRecord, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: requeue_from_dlq begin failed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `
		UPDATE outbox
		SET status = 'pending', attempts = 0, last_error = NULL,
		    next_run_at = NULL, dlq = false, updated_at = now()
		WHERE id = $1 AND dlq = true
	`
	res, err := tx.ExecContext(ctx, query, envelopeID)
	if err != nil {
		return nil, fmt.Errorf("store: requeue_from_dlq update failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("store: requeue_from_dlq rows_affected failed: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM outbox_dlq WHERE id = $1`, envelopeID); err != nil {
		return nil, fmt.Errorf("store: dlq mirror delete failed: %w", err)
	}

	query2 := fmt.Sprintf(`SELECT %s FROM outbox WHERE id = $1`, selectColumns)
	rec, err := scanRecord(tx.QueryRowContext(ctx, query2, envelopeID))
	if err != nil {
		return nil, fmt.Errorf("store: requeue_from_dlq reselect failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: requeue_from_dlq commit failed: %w", err)
	}
	return rec, nil
}

// rowScanner is implemented by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*contracts.OutboxRecord, error) {
	var rec contracts.OutboxRecord
	var argsJSON, trustCtxJSON, metaJSON []byte
	var risk, status, externalID, connectedAccountID string
	var lastError sql.NullString
	var nextRunAt sql.NullTime

	if err := row.Scan(
		&rec.Envelope.EnvelopeID, &rec.Envelope.TenantID, &rec.Envelope.ToolSlug, &argsJSON,
		&connectedAccountID, &risk, &externalID, &trustCtxJSON, &metaJSON,
		&status, &rec.Attempts, &lastError, &rec.QueuedAt, &rec.UpdatedAt, &nextRunAt, &rec.DLQ,
	); err != nil {
		return nil, err
	}

	rec.Envelope.ConnectedAccountID = connectedAccountID
	rec.Envelope.Risk = contracts.Risk(risk)
	rec.Envelope.ExternalID = externalID
	rec.Status = contracts.OutboxStatus(status)
	rec.LastError = lastError.String
	if nextRunAt.Valid {
		t := nextRunAt.Time
		rec.NextRunAt = &t
	}
	if len(argsJSON) > 0 {
		if err := json.Unmarshal(argsJSON, &rec.Envelope.Arguments); err != nil {
			return nil, fmt.Errorf("corrupt arguments JSON for %s: %w", rec.Envelope.EnvelopeID, err)
		}
	}
	if len(trustCtxJSON) > 0 {
		if err := json.Unmarshal(trustCtxJSON, &rec.Envelope.TrustContext); err != nil {
			return nil, fmt.Errorf("corrupt trust_context JSON for %s: %w", rec.Envelope.EnvelopeID, err)
		}
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &rec.Envelope.Metadata); err != nil {
			return nil, fmt.Errorf("corrupt metadata JSON for %s: %w", rec.Envelope.EnvelopeID, err)
		}
	}
	return &rec, nil
}
