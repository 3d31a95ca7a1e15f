package audit

import "github.com/relaykit/actionplane/pkg/contracts"

// GuardrailState is the agent-UI-facing shared-state shape for a single
// guardrail result. Field presence varies by guardrail name, matching the
// original per-guardrail projections (quiet hours carry a window/time pair,
// trust carries a score/threshold pair, and so on).
type GuardrailState map[string]any

// ProjectGuardrailState normalises a GuardrailResult into the shared-state
// shape the agent UI renders, keyed by guardrail name.
func ProjectGuardrailState(result contracts.GuardrailResult) GuardrailState {
	state := GuardrailState{"allowed": result.Allowed}
	if result.Reason != "" {
		state["message"] = result.Reason
	}
	switch result.Name {
	case contracts.GuardrailQuietHours:
		state["configured"] = result.Metadata["configured"]
		state["window"] = result.Metadata["window"]
		state["currentTime"] = result.Metadata["currentTime"]
	case contracts.GuardrailTrustThreshold:
		state["score"] = result.Metadata["score"]
		state["threshold"] = result.Metadata["threshold"]
		state["source"] = result.Metadata["source"]
		state["missingSignal"] = result.Metadata["missingSignal"]
	case contracts.GuardrailScopeValidation:
		state["missingScopes"] = result.Metadata["missingScopes"]
		state["requestedScopes"] = result.Metadata["requestedScopes"]
		state["enabledScopes"] = result.Metadata["enabledScopes"]
	case contracts.GuardrailEvidenceRequired:
		state["required"] = result.Metadata["required"]
		state["missingEvidence"] = result.Metadata["missingEvidence"]
	}
	return state
}

// uiKey maps a guardrail name onto the shared-state key the agent UI reads,
// matching the desk surface's per-guardrail panels.
func uiKey(name contracts.GuardrailName) string {
	switch name {
	case contracts.GuardrailQuietHours:
		return "quietHours"
	case contracts.GuardrailTrustThreshold:
		return "trust"
	case contracts.GuardrailScopeValidation:
		return "scopeValidation"
	case contracts.GuardrailEvidenceRequired:
		return "evidence"
	default:
		return string(name)
	}
}

// ProjectGuardrailResults builds the full guardrail shared-state scaffold
// for one invocation, keyed by the UI's guardrail panel names.
func ProjectGuardrailResults(results []contracts.GuardrailResult) map[string]GuardrailState {
	out := make(map[string]GuardrailState, len(results))
	for _, r := range results {
		out[uiKey(r.Name)] = ProjectGuardrailState(r)
	}
	return out
}
