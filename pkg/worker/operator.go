package worker

import (
	"context"

	"github.com/relaykit/actionplane/pkg/store"
)

// Status is the operator-facing summary of queue depth.
type Status struct {
	Pending int
	DLQ     int
}

// OperatorSurface exposes the worker's status/drain/retry commands,
// independent of the poll loop, so a CLI can invoke them directly.
type OperatorSurface struct {
	Outbox store.OutboxStore
}

// Status reports pending and DLQ counts, unbounded (limit=0 means no cap on
// either OutboxStore implementation).
func (o *OperatorSurface) Status(ctx context.Context, tenantID string) (Status, error) {
	pending, err := o.Outbox.ListPending(ctx, tenantID, 0)
	if err != nil {
		return Status{}, err
	}
	dlq, err := o.Outbox.ListDLQ(ctx, tenantID, 0)
	if err != nil {
		return Status{}, err
	}
	return Status{Pending: len(pending), DLQ: len(dlq)}, nil
}

// DrainDLQ requeues up to limit DLQ entries back to pending, newest-updated
// first order as returned by the store, and reports how many were requeued.
func (o *OperatorSurface) DrainDLQ(ctx context.Context, tenantID string, limit int) (int, error) {
	entries, err := o.Outbox.ListDLQ(ctx, tenantID, limit)
	if err != nil {
		return 0, err
	}
	drained := 0
	for _, e := range entries {
		if _, err := o.Outbox.RequeueFromDLQ(ctx, e.Envelope.EnvelopeID); err != nil {
			return drained, err
		}
		drained++
	}
	return drained, nil
}

// RetryDLQ requeues a single DLQ entry by envelope_id, scoped to tenantID.
// Returns false if the entry was not found in the DLQ, or if it belongs to a
// different tenant — callers must never be able to requeue another tenant's
// envelope by guessing or observing its id.
func (o *OperatorSurface) RetryDLQ(ctx context.Context, tenantID, envelopeID string) (bool, error) {
	rec, err := o.Outbox.Get(ctx, envelopeID)
	if err != nil {
		return false, err
	}
	if rec == nil || !rec.DLQ || rec.Envelope.TenantID != tenantID {
		return false, nil
	}
	if _, err := o.Outbox.RequeueFromDLQ(ctx, envelopeID); err != nil {
		if err == store.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
