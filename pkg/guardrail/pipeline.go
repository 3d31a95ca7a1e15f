// Package guardrail implements the four ordered policy checks gating
// envelope acceptance: quiet hours, trust threshold, scope validation, and
// evidence requirement.
package guardrail

import (
	"time"

	"github.com/relaykit/actionplane/pkg/contracts"
)

// Config holds the tenant-configured bounds for each check. Negative
// QuietHoursStart/End means quiet hours are unconfigured.
type Config struct {
	QuietHoursStart  int
	QuietHoursEnd    int
	TrustThreshold   float64
	ScopeEnforced    bool
	EvidenceRequired bool
}

// Input is the per-invocation data the pipeline evaluates against Config.
type Input struct {
	Now             time.Time
	TrustScore      *float64
	TrustSource     string
	RequestedScopes []string
	EnabledScopes   []string
	Proposal        *Proposal
}

// Result is the full ordered pipeline outcome. Blocked reports whether any
// check failed; BlockingIndex is the index in Results of the first failing
// result (-1 when none failed), matching the "fail-on-first" semantics of
// the pipeline.
type Result struct {
	Results       []contracts.GuardrailResult
	Blocked       bool
	BlockingIndex int
}

// Evaluate runs all four guardrails in the fixed order
// (quiet_hours, trust_threshold, scope_validation, evidence_requirement)
// and returns the full tuple regardless of outcome. A non-nil error means
// the trust threshold configuration itself is invalid; callers MUST treat
// this as a configuration failure, never as a silent allow.
func Evaluate(cfg Config, in Input) (Result, error) {
	quietHours := CheckQuietHours(in.Now, cfg.QuietHoursStart, cfg.QuietHoursEnd)

	trust, err := CheckTrustThreshold(in.TrustScore, cfg.TrustThreshold, in.TrustSource)
	if err != nil {
		return Result{}, err
	}

	scopes := CheckScopeValidation(in.RequestedScopes, in.EnabledScopes, cfg.ScopeEnforced)
	evidence := CheckEvidenceRequirement(cfg.EvidenceRequired, in.Proposal)

	results := []contracts.GuardrailResult{quietHours, trust, scopes, evidence}

	out := Result{Results: results, BlockingIndex: -1}
	for i, r := range results {
		if !r.Allowed {
			out.Blocked = true
			out.BlockingIndex = i
			break
		}
	}
	return out, nil
}

// Blocking returns the first failing result, or nil if the pipeline allowed
// the envelope.
func (r Result) Blocking() *contracts.GuardrailResult {
	if !r.Blocked || r.BlockingIndex < 0 {
		return nil
	}
	return &r.Results[r.BlockingIndex]
}
