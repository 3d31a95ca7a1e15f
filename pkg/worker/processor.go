package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/relaykit/actionplane/pkg/audit"
	"github.com/relaykit/actionplane/pkg/catalog"
	"github.com/relaykit/actionplane/pkg/contracts"
	"github.com/relaykit/actionplane/pkg/ratebucket"
	"github.com/relaykit/actionplane/pkg/store"
)

// ActionsProjector records a completed dispatch into a secondary
// actions-history surface. Its failure must never undo a successful
// dispatch — see Processor.Process.
type ActionsProjector interface {
	RecordSuccess(ctx context.Context, rec *contracts.OutboxRecord, result map[string]any) error
}

// Processor resolves a single outbox record: policy check, rate-bucket
// deferral, claim, provider dispatch under a retry harness, and terminal
// disposition.
type Processor struct {
	Catalog     catalog.Store
	Outbox      store.OutboxStore
	Limiter     ratebucket.Limiter
	Audit       audit.Log
	Driver      ProviderDriver
	Actions     ActionsProjector
	Logger      *slog.Logger
	MaxAttempts int

	// PauseOnBareFailure, when true, gives a policy-disabled write a
	// far-future retry_in instead of none. Either way MarkFailure leaves the
	// record in status failed, and ListPending selects only pending records,
	// so the worker does not poll it again; the flag only changes the stored
	// next_run_at.
	PauseOnBareFailure bool
}

// bareFailurePauseWindow is the retry_in applied when PauseOnBareFailure is
// set.
const bareFailurePauseWindow = 24 * time.Hour

// Process runs the full single-record algorithm against rec.
func (p *Processor) Process(ctx context.Context, rec *contracts.OutboxRecord) error {
	logger := p.logger()

	policy, err := p.Catalog.GetEffectivePolicy(ctx, rec.Envelope.TenantID, rec.Envelope.ToolSlug)
	if err != nil {
		return fmt.Errorf("worker: effective policy lookup failed: %w", err)
	}

	if policy != nil && !policy.WriteAllowed {
		var retryIn *time.Duration
		if p.PauseOnBareFailure {
			d := bareFailurePauseWindow
			retryIn = &d
		}
		if err := p.Outbox.MarkFailure(ctx, rec.Envelope.EnvelopeID, "writes_disabled_by_policy", retryIn, false); err != nil {
			return err
		}
		p.emitAudit(ctx, rec, "failed", map[string]any{"reason": "writes_disabled_by_policy"})
		return nil
	}

	bucket := ""
	if policy != nil {
		bucket = policy.RateBucket
	}
	if bucket != "" {
		allowed, retryIn, err := p.Limiter.Allow(ctx, bucket)
		if err != nil {
			return fmt.Errorf("worker: rate bucket check failed: %w", err)
		}
		if !allowed {
			return p.Outbox.Defer(ctx, rec.Envelope.EnvelopeID, retryIn)
		}
	}

	if err := p.Outbox.MarkInProgress(ctx, rec.Envelope.EnvelopeID); err != nil {
		return fmt.Errorf("worker: claim failed: %w", err)
	}

	result, dispatchErr := p.dispatchWithRetry(ctx, rec, bucket)

	if dispatchErr == nil {
		if err := p.Outbox.MarkSuccess(ctx, rec.Envelope.EnvelopeID, result); err != nil {
			return err
		}
		p.emitAudit(ctx, rec, "success", map[string]any{"result": result})
		if p.Actions != nil {
			if perr := p.Actions.RecordSuccess(ctx, rec, result); perr != nil {
				logger.Warn("actions-history projection failed", "envelope_id", rec.Envelope.EnvelopeID, "error", perr)
			}
		}
		return nil
	}

	if isConflict(dispatchErr) {
		if err := p.Outbox.MarkConflict(ctx, rec.Envelope.EnvelopeID, dispatchErr.Error()); err != nil {
			return err
		}
		p.emitAudit(ctx, rec, "conflict", map[string]any{"reason": dispatchErr.Error()})
		return nil
	}

	if err := p.Outbox.MarkFailure(ctx, rec.Envelope.EnvelopeID, dispatchErr.Error(), nil, true); err != nil {
		return err
	}
	p.emitAudit(ctx, rec, "dlq", map[string]any{"reason": dispatchErr.Error()})
	return nil
}

// dispatchWithRetry runs the provider call under an exponential backoff
// harness: up to MaxAttempts total tries, multiplier 1 (flat), min 1s,
// max 30s. A conflict short-circuits the harness immediately since it is
// never retryable. bucket, when non-empty, is marked dispatched on each
// actual attempt — not when the earlier Allow check merely passed — so a
// rate-bucket slot is only spent on attempts that really reach the
// provider, never on checks followed by a policy block or claim loss.
func (p *Processor) dispatchWithRetry(ctx context.Context, rec *contracts.OutboxRecord, bucket string) (map[string]any, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultConfig().MaxAttempts
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.Multiplier = 1
	b.RandomizationFactor = 0

	operation := func() (map[string]any, error) {
		if bucket != "" && p.Limiter != nil {
			if err := p.Limiter.MarkDispatched(ctx, bucket); err != nil {
				p.logger().Warn("rate bucket mark-dispatched failed", "envelope_id", rec.Envelope.EnvelopeID, "bucket", bucket, "error", err)
			}
		}
		result, err := p.Driver.Execute(ctx, rec.Envelope.ToolSlug, rec.Envelope.Arguments)
		if err != nil {
			if isConflict(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return result, nil
	}

	return backoff.Retry(ctx, operation, backoff.WithBackOff(b), backoff.WithMaxTries(uint(maxAttempts)))
}

// isConflict detects a non-retryable provider conflict: a 409 status code,
// or a message containing "conflict" or "409" case-insensitively.
func isConflict(err error) bool {
	if err == nil {
		return false
	}
	var perr *ProviderError
	if errAs(err, &perr) {
		if perr.StatusCode == 409 {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "conflict") || strings.Contains(msg, "409")
}

// errAs is a narrow errors.As wrapper kept local so this file only imports
// what it needs.
func errAs(err error, target **ProviderError) bool {
	for err != nil {
		if pe, ok := err.(*ProviderError); ok {
			*target = pe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (p *Processor) emitAudit(ctx context.Context, rec *contracts.OutboxRecord, outcome string, extra map[string]any) {
	if p.Audit == nil {
		return
	}
	payload := map[string]any{
		"envelope_id": rec.Envelope.EnvelopeID,
		"tool_slug":   rec.Envelope.ToolSlug,
		"outcome":     outcome,
	}
	for k, v := range extra {
		payload[k] = v
	}
	_, err := p.Audit.Append(ctx, contracts.AuditEntry{
		TenantID:  rec.Envelope.TenantID,
		ActorType: contracts.ActorWorker,
		Category:  contracts.AuditCategoryOutbox,
		Payload:   payload,
	})
	if err != nil {
		p.logger().Warn("audit append failed", "envelope_id", rec.Envelope.EnvelopeID, "error", err)
	}
}

func (p *Processor) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
