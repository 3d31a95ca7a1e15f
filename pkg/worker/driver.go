// Package worker implements the outbox worker: the long-running process
// that drains pending envelopes, dispatches them to a provider, and resolves
// them into success, conflict, or the retry/DLQ path.
package worker

import "context"

// ProviderDriver dispatches a single envelope to whatever downstream system
// actually performs the action (Slack, email, ticketing, ...). Implementations
// return a result map on success; any non-nil error is classified by
// IsConflict to decide between the conflict and retry/DLQ paths.
type ProviderDriver interface {
	Execute(ctx context.Context, toolSlug string, arguments map[string]any) (map[string]any, error)
}

// ProviderError optionally carries an HTTP-style status code so conflict
// detection does not have to rely on string matching alone.
type ProviderError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }
