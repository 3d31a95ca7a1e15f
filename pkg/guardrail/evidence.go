package guardrail

import (
	"strings"

	"github.com/relaykit/actionplane/pkg/contracts"
)

// Proposal carries the agent's justification for an envelope, as submitted
// alongside the enqueue tool call.
type Proposal struct {
	Summary  string
	Evidence any // string, []string, or nil
}

func hasEvidence(evidence any) bool {
	switch v := evidence.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case []string:
		for _, item := range v {
			if strings.TrimSpace(item) != "" {
				return true
			}
		}
		return false
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				if strings.TrimSpace(s) != "" {
					return true
				}
			} else if item != nil {
				return true
			}
		}
		return false
	default:
		return evidence != nil
	}
}

// CheckEvidenceRequirement implements the evidence_requirement guardrail.
// A nil proposal allows with a neutral reason (no evidence was demanded of
// the caller). required=false short-circuits to allow.
func CheckEvidenceRequirement(required bool, proposal *Proposal) contracts.GuardrailResult {
	if !required {
		return contracts.GuardrailResult{
			Name:     contracts.GuardrailEvidenceRequired,
			Allowed:  true,
			Metadata: map[string]any{"required": false},
		}
	}
	if proposal == nil {
		return contracts.GuardrailResult{
			Name:    contracts.GuardrailEvidenceRequired,
			Allowed: true,
			Reason:  "no proposal supplied; nothing to validate",
			Metadata: map[string]any{
				"required": true,
				"allowed":  true,
			},
		}
	}

	allowed := hasEvidence(proposal.Evidence)
	meta := map[string]any{"required": true}
	if allowed {
		return contracts.GuardrailResult{Name: contracts.GuardrailEvidenceRequired, Allowed: true, Metadata: meta}
	}
	meta["missingEvidence"] = true
	return contracts.GuardrailResult{
		Name:     contracts.GuardrailEvidenceRequired,
		Allowed:  false,
		Reason:   "proposal is missing supporting evidence",
		Metadata: meta,
	}
}
