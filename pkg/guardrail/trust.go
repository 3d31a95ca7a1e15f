package guardrail

import (
	"fmt"

	"github.com/relaykit/actionplane/pkg/contracts"
)

// ErrInvalidTrustThreshold is a configuration error: the threshold must lie
// within [0, 1]. It is never surfaced as a silent allow.
type ErrInvalidTrustThreshold struct {
	Threshold float64
}

func (e *ErrInvalidTrustThreshold) Error() string {
	return fmt.Sprintf("trust threshold %.4f is outside the valid range [0,1]", e.Threshold)
}

// CheckTrustThreshold implements the trust_threshold guardrail. score is the
// tenant's current approvals ratio read from shared state; nil means the
// signal is missing and is treated as 0.0 (fail-closed).
func CheckTrustThreshold(score *float64, threshold float64, source string) (contracts.GuardrailResult, error) {
	if threshold < 0 || threshold > 1 {
		return contracts.GuardrailResult{}, &ErrInvalidTrustThreshold{Threshold: threshold}
	}

	missing := score == nil
	value := 0.0
	if !missing {
		value = clamp01(*score)
	}

	allowed := value >= threshold
	reason := ""
	if missing {
		reason = "original score missing; treated as 0.0"
	}
	if !allowed {
		if reason != "" {
			reason = fmt.Sprintf("%s; %.4f is below the required threshold %.4f", reason, value, threshold)
		} else {
			reason = fmt.Sprintf("trust score %.4f is below the required threshold %.4f", value, threshold)
		}
	}

	return contracts.GuardrailResult{
		Name:    contracts.GuardrailTrustThreshold,
		Allowed: allowed,
		Reason:  reason,
		Metadata: map[string]any{
			"score":         value,
			"threshold":     threshold,
			"source":        source,
			"missingSignal": missing,
		},
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
