package guardrail

import (
	"fmt"
	"time"

	"github.com/relaykit/actionplane/pkg/contracts"
)

// QuietHoursWindow is a configured [start, end) hour-of-day window, in UTC.
// When Start == End the window is considered unconfigured.
type QuietHoursWindow struct {
	Start int
	End   int
	valid bool
}

// ResolveQuietHoursWindow validates the two configured hour bounds. It
// returns ok=false with a human-readable reason when either bound is absent
// (represented by a negative value), out of the 0..23 range, or equal.
func ResolveQuietHoursWindow(start, end int) (QuietHoursWindow, string, bool) {
	if start < 0 || end < 0 {
		return QuietHoursWindow{}, "quiet hours not configured", false
	}
	if !validHour(start) || !validHour(end) {
		return QuietHoursWindow{}, "quiet hours bounds out of range", false
	}
	if start == end {
		return QuietHoursWindow{}, "quiet hours window is empty (start == end)", false
	}
	return QuietHoursWindow{Start: start, End: end, valid: true}, "", true
}

func validHour(h int) bool {
	return h >= 0 && h <= 23
}

// InWindow reports whether hour falls within the window. Overnight windows
// (start > end) wrap past midnight.
func (w QuietHoursWindow) InWindow(hour int) bool {
	if w.Start < w.End {
		return hour >= w.Start && hour < w.End
	}
	return hour >= w.Start || hour < w.End
}

func formatWindow(w QuietHoursWindow) string {
	return fmt.Sprintf("%02d:00-%02d:00 UTC", w.Start, w.End)
}

// CheckQuietHours implements the quiet_hours guardrail. now is evaluated in
// UTC regardless of its original location.
func CheckQuietHours(now time.Time, start, end int) contracts.GuardrailResult {
	now = now.UTC()
	window, reason, ok := ResolveQuietHoursWindow(start, end)
	if !ok {
		return contracts.GuardrailResult{
			Name:    contracts.GuardrailQuietHours,
			Allowed: true,
			Reason:  reason,
			Metadata: map[string]any{
				"configured":  false,
				"currentTime": now.Format(time.RFC3339),
			},
		}
	}

	hour := now.Hour()
	allowed := !window.InWindow(hour)
	meta := map[string]any{
		"configured":  true,
		"window":      formatWindow(window),
		"currentTime": now.Format(time.RFC3339),
	}
	if allowed {
		return contracts.GuardrailResult{Name: contracts.GuardrailQuietHours, Allowed: true, Metadata: meta}
	}
	return contracts.GuardrailResult{
		Name:     contracts.GuardrailQuietHours,
		Allowed:  false,
		Reason:   fmt.Sprintf("current time falls within the quiet hours window %s", formatWindow(window)),
		Metadata: meta,
	}
}
