// Package envelope builds and validates contracts.Envelope values from
// untyped agent payloads.
package envelope

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relaykit/actionplane/pkg/contracts"
)

// InvalidEnvelopeError reports why a payload could not be turned into an
// Envelope.
type InvalidEnvelopeError struct {
	Field   string
	Message string
}

func (e *InvalidEnvelopeError) Error() string {
	return fmt.Sprintf("invalid envelope: %s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &InvalidEnvelopeError{Field: field, Message: message}
}

// FromPayload builds a contracts.Envelope from an agent-supplied payload.
//
// Requires a non-empty "tool_slug" (falling back to the legacy "slug" key)
// and a mapping "arguments". envelope_id and external_id are assigned when
// absent. created_at is normalised to UTC, defaulting to the current time
// when absent.
func FromPayload(payload map[string]any, tenantID string, defaultRisk contracts.Risk) (*contracts.Envelope, error) {
	slug, err := requiredSlug(payload)
	if err != nil {
		return nil, err
	}

	rawArgs, ok := payload["arguments"]
	if !ok {
		return nil, invalid("arguments", "missing")
	}
	args, err := asMapping(rawArgs)
	if err != nil {
		return nil, invalid("arguments", err.Error())
	}

	envelopeID, _ := payload["envelope_id"].(string)
	if envelopeID == "" {
		envelopeID = uuid.NewString()
	}

	externalID, _ := payload["external_id"].(string)
	if externalID == "" {
		externalID = uuid.NewString()
	}

	createdAt, err := resolveCreatedAt(payload["created_at"])
	if err != nil {
		return nil, invalid("created_at", err.Error())
	}

	risk := defaultRisk
	if r, ok := payload["risk"].(string); ok && r != "" {
		risk = contracts.Risk(r)
	}

	env := &contracts.Envelope{
		EnvelopeID:         envelopeID,
		TenantID:           tenantID,
		ToolSlug:           slug,
		Arguments:          args,
		ConnectedAccountID: stringField(payload, "connected_account_id"),
		Risk:               risk,
		ExternalID:         externalID,
		TrustContext:       mapField(payload, "trust_context"),
		Metadata:           mapField(payload, "metadata"),
		CreatedAt:          createdAt,
	}
	return env, nil
}

func requiredSlug(payload map[string]any) (string, error) {
	if v, ok := payload["tool_slug"].(string); ok && v != "" {
		return v, nil
	}
	if v, ok := payload["slug"].(string); ok && v != "" {
		return v, nil
	}
	return "", invalid("tool_slug", "missing")
}

func asMapping(v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("must be a mapping")
	}
	return m, nil
}

func stringField(payload map[string]any, key string) string {
	v, _ := payload[key].(string)
	return v
}

func mapField(payload map[string]any, key string) map[string]any {
	v, _ := payload[key].(map[string]any)
	return v
}

func resolveCreatedAt(raw any) (time.Time, error) {
	if raw == nil {
		return time.Now().UTC(), nil
	}
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		if v == "" {
			return time.Now().UTC(), nil
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("unparseable timestamp %q", v)
		}
		return t.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported created_at type %T", raw)
	}
}

// ToRecord serialises an Envelope into its wire/storage map representation.
func ToRecord(e *contracts.Envelope) map[string]any {
	return map[string]any{
		"envelope_id":          e.EnvelopeID,
		"tenant_id":            e.TenantID,
		"tool_slug":            e.ToolSlug,
		"arguments":            e.Arguments,
		"connected_account_id": e.ConnectedAccountID,
		"risk":                 string(e.Risk),
		"external_id":          e.ExternalID,
		"trust_context":        e.TrustContext,
		"metadata":             e.Metadata,
		"created_at":           e.CreatedAt.Format(time.RFC3339Nano),
	}
}

// FromRecord rebuilds an Envelope from its wire/storage map representation,
// the inverse of ToRecord.
func FromRecord(rec map[string]any) (*contracts.Envelope, error) {
	tenantID := stringField(rec, "tenant_id")
	env, err := FromPayload(rec, tenantID, contracts.RiskMedium)
	if err != nil {
		return nil, err
	}
	return env, nil
}
