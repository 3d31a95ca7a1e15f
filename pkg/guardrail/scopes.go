package guardrail

import (
	"fmt"
	"sort"
	"strings"

	"github.com/relaykit/actionplane/pkg/contracts"
)

func normaliseScopes(scopes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		set[s] = struct{}{}
	}
	return set
}

// CheckScopeValidation implements the scope_validation guardrail. Comparison
// is case-insensitive and whitespace-trimmed. An empty requested set always
// allows. enforced=false short-circuits to allow (guardrail disabled by
// configuration).
func CheckScopeValidation(requested, enabled []string, enforced bool) contracts.GuardrailResult {
	if !enforced {
		return contracts.GuardrailResult{
			Name:    contracts.GuardrailScopeValidation,
			Allowed: true,
			Reason:  "scope enforcement disabled by configuration",
		}
	}

	requestedSet := normaliseScopes(requested)
	enabledSet := normaliseScopes(enabled)

	if len(requestedSet) == 0 {
		return contracts.GuardrailResult{
			Name:    contracts.GuardrailScopeValidation,
			Allowed: true,
			Metadata: map[string]any{
				"requestedScopes": []string{},
				"enabledScopes":   sortedKeys(enabledSet),
			},
		}
	}

	var missing []string
	for s := range requestedSet {
		if _, ok := enabledSet[s]; !ok {
			missing = append(missing, s)
		}
	}
	sort.Strings(missing)

	meta := map[string]any{
		"requestedScopes": sortedKeys(requestedSet),
		"enabledScopes":   sortedKeys(enabledSet),
		"missingScopes":   missing,
	}

	if len(missing) == 0 {
		return contracts.GuardrailResult{Name: contracts.GuardrailScopeValidation, Allowed: true, Metadata: meta}
	}
	return contracts.GuardrailResult{
		Name:     contracts.GuardrailScopeValidation,
		Allowed:  false,
		Reason:   fmt.Sprintf("missing required scopes: %s", strings.Join(missing, ", ")),
		Metadata: meta,
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
