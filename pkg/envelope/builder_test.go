package envelope

import (
	"testing"
	"time"

	"github.com/relaykit/actionplane/pkg/contracts"
)

func validPayload() map[string]any {
	return map[string]any{
		"tool_slug": "GMAIL__drafts.create",
		"arguments": map[string]any{
			"to":      "c@e.com",
			"subject": "Renewal",
			"body":    "Hi",
		},
	}
}

func TestFromPayloadAssignsIDs(t *testing.T) {
	env, err := FromPayload(validPayload(), "tenant-demo", contracts.RiskMedium)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.EnvelopeID == "" {
		t.Fatal("expected envelope_id to be assigned")
	}
	if env.ExternalID == "" {
		t.Fatal("expected external_id to be assigned")
	}
	if env.TenantID != "tenant-demo" {
		t.Fatalf("expected tenant-demo, got %s", env.TenantID)
	}
	if env.Risk != contracts.RiskMedium {
		t.Fatalf("expected default risk medium, got %s", env.Risk)
	}
	if env.CreatedAt.Location() != time.UTC {
		t.Fatal("expected created_at to be UTC")
	}
}

func TestFromPayloadLegacySlugFallback(t *testing.T) {
	payload := validPayload()
	delete(payload, "tool_slug")
	payload["slug"] = "SLACK__messages.post"

	env, err := FromPayload(payload, "tenant-demo", contracts.RiskLow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.ToolSlug != "SLACK__messages.post" {
		t.Fatalf("expected legacy slug fallback, got %s", env.ToolSlug)
	}
}

func TestFromPayloadPreservesExternalID(t *testing.T) {
	payload := validPayload()
	payload["external_id"] = "idem-123"

	env, err := FromPayload(payload, "tenant-demo", contracts.RiskMedium)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.ExternalID != "idem-123" {
		t.Fatalf("expected external_id to be preserved verbatim, got %s", env.ExternalID)
	}
}

func TestFromPayloadMissingSlug(t *testing.T) {
	payload := validPayload()
	delete(payload, "tool_slug")

	_, err := FromPayload(payload, "tenant-demo", contracts.RiskMedium)
	if err == nil {
		t.Fatal("expected InvalidEnvelopeError for missing slug")
	}
	var target *InvalidEnvelopeError
	if !asInvalid(err, &target) {
		t.Fatalf("expected *InvalidEnvelopeError, got %T", err)
	}
	if target.Field != "tool_slug" {
		t.Fatalf("expected field tool_slug, got %s", target.Field)
	}
}

func TestFromPayloadMissingArguments(t *testing.T) {
	payload := map[string]any{"tool_slug": "GMAIL__drafts.create"}

	_, err := FromPayload(payload, "tenant-demo", contracts.RiskMedium)
	if err == nil {
		t.Fatal("expected InvalidEnvelopeError for missing arguments")
	}
}

func TestFromPayloadUnparseableTimestamp(t *testing.T) {
	payload := validPayload()
	payload["created_at"] = "not-a-time"

	_, err := FromPayload(payload, "tenant-demo", contracts.RiskMedium)
	if err == nil {
		t.Fatal("expected InvalidEnvelopeError for unparseable timestamp")
	}
}

func TestFromPayloadNormalisesCreatedAtToUTC(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	payload := validPayload()
	payload["created_at"] = time.Date(2026, 1, 2, 10, 0, 0, 0, loc).Format(time.RFC3339)

	env, err := FromPayload(payload, "tenant-demo", contracts.RiskMedium)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.CreatedAt.Hour() != 15 {
		t.Fatalf("expected normalised hour 15, got %d", env.CreatedAt.Hour())
	}
}

func TestRoundTripRecord(t *testing.T) {
	env, err := FromPayload(validPayload(), "tenant-demo", contracts.RiskMedium)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec := ToRecord(env)
	back, err := FromRecord(rec)
	if err != nil {
		t.Fatalf("unexpected error on round-trip: %v", err)
	}
	if back.EnvelopeID != env.EnvelopeID || back.ExternalID != env.ExternalID || back.ToolSlug != env.ToolSlug {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", back, env)
	}
}

func asInvalid(err error, target **InvalidEnvelopeError) bool {
	if ie, ok := err.(*InvalidEnvelopeError); ok {
		*target = ie
		return true
	}
	return false
}
