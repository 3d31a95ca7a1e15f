package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/relaykit/actionplane/pkg/contracts"
)

func testEnvelope() contracts.Envelope {
	return contracts.Envelope{
		EnvelopeID: uuid.NewString(),
		TenantID:   "tenant-demo",
		ToolSlug:   "GMAIL__drafts.create",
		Arguments:  map[string]any{"to": "c@e.com"},
		ExternalID: uuid.NewString(),
		Risk:       contracts.RiskMedium,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestEnqueueStartsPendingWithZeroAttempts(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryOutboxStore()
	env := testEnvelope()

	if _, err := s.Enqueue(ctx, env, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, err := s.Get(ctx, env.EnvelopeID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != contracts.StatusPending || rec.Attempts != 0 {
		t.Fatalf("expected pending/0 attempts, got %s/%d", rec.Status, rec.Attempts)
	}
}

func TestListPendingExcludesFutureNextRunAt(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryOutboxStore()
	env := testEnvelope()
	_, _ = s.Enqueue(ctx, env, nil)

	if err := s.Defer(ctx, env.EnvelopeID, time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending, err := s.ListPending(ctx, "tenant-demo", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected deferred record to be excluded, got %d", len(pending))
	}
}

func TestMarkSuccessLeavesAttemptsUnchanged(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryOutboxStore()
	env := testEnvelope()
	_, _ = s.Enqueue(ctx, env, nil)
	_ = s.MarkInProgress(ctx, env.EnvelopeID)

	if err := s.MarkSuccess(ctx, env.EnvelopeID, map[string]any{"status": "ok"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, _ := s.Get(ctx, env.EnvelopeID)
	if rec.Status != contracts.StatusSuccess {
		t.Fatalf("expected success, got %s", rec.Status)
	}
	if rec.Attempts != 0 {
		t.Fatalf("expected attempts unchanged, got %d", rec.Attempts)
	}
	if rec.NextRunAt != nil {
		t.Fatal("expected next_run_at to be cleared")
	}
}

func TestMarkFailureIncrementsAttemptsByOne(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryOutboxStore()
	env := testEnvelope()
	_, _ = s.Enqueue(ctx, env, nil)
	_ = s.MarkInProgress(ctx, env.EnvelopeID)

	retry := 2 * time.Second
	if err := s.MarkFailure(ctx, env.EnvelopeID, "boom", &retry, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, _ := s.Get(ctx, env.EnvelopeID)
	if rec.Attempts != 1 {
		t.Fatalf("expected attempts == 1, got %d", rec.Attempts)
	}
	if rec.Status != contracts.StatusFailed {
		t.Fatalf("expected failed, got %s", rec.Status)
	}
}

func TestDeferLeavesAttemptsUnchanged(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryOutboxStore()
	env := testEnvelope()
	_, _ = s.Enqueue(ctx, env, nil)

	if err := s.Defer(ctx, env.EnvelopeID, 5*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, _ := s.Get(ctx, env.EnvelopeID)
	if rec.Attempts != 0 {
		t.Fatalf("expected attempts unchanged by defer, got %d", rec.Attempts)
	}
	if rec.Status != contracts.StatusPending {
		t.Fatalf("expected still pending, got %s", rec.Status)
	}
}

func TestRequeueFromDLQResetsState(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryOutboxStore()
	env := testEnvelope()
	_, _ = s.Enqueue(ctx, env, nil)
	_ = s.MarkInProgress(ctx, env.EnvelopeID)
	_ = s.MarkFailure(ctx, env.EnvelopeID, "boom", nil, true)

	dlq, err := s.ListDLQ(ctx, "tenant-demo", 10)
	if err != nil || len(dlq) != 1 {
		t.Fatalf("expected 1 DLQ entry, got %d err=%v", len(dlq), err)
	}

	rec, err := s.RequeueFromDLQ(ctx, env.EnvelopeID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != contracts.StatusPending || rec.Attempts != 0 || rec.LastError != "" || rec.NextRunAt != nil {
		t.Fatalf("expected reset state, got %+v", rec)
	}

	dlqAfter, _ := s.ListDLQ(ctx, "tenant-demo", 10)
	if len(dlqAfter) != 0 {
		t.Fatal("expected DLQ to be empty after requeue")
	}
}

func TestMarkConflictIsTerminalAndIncrementsAttemptsOnce(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryOutboxStore()
	env := testEnvelope()
	_, _ = s.Enqueue(ctx, env, nil)
	_ = s.MarkInProgress(ctx, env.EnvelopeID)

	if err := s.MarkConflict(ctx, env.EnvelopeID, "409 conflict"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, _ := s.Get(ctx, env.EnvelopeID)
	if rec.Status != contracts.StatusConflict {
		t.Fatalf("expected conflict, got %s", rec.Status)
	}
	if rec.Attempts != 1 {
		t.Fatalf("expected attempts incremented once, got %d", rec.Attempts)
	}
}
