// File: internal/taint/safefilter.go
package taint

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// FilterSafeSinks drops every sink whose name or pattern equals or contains
// an allowlist entry, case-insensitively. Independent of the allowlist, a
// sql sink already proven parameterized is always dropped. The filter only
// removes; it never edits a surviving sink.
func FilterSafeSinks(sinks []Sink, allowlist []string) []Sink {
	lowered := make([]string, 0, len(allowlist))
	for _, entry := range allowlist {
		if entry != "" {
			lowered = append(lowered, strings.ToLower(entry))
		}
	}

	filtered := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink.Category == CategorySQL && sink.IsParameterized {
			continue
		}
		if matchesAllowlist(sink, lowered) {
			continue
		}
		filtered = append(filtered, sink)
	}
	return filtered
}

func matchesAllowlist(sink Sink, lowered []string) bool {
	name := strings.ToLower(sink.Name)
	pattern := strings.ToLower(sink.Pattern)
	for _, entry := range lowered {
		if name == entry || pattern == entry ||
			strings.Contains(name, entry) || strings.Contains(pattern, entry) {
			return true
		}
	}
	return false
}

// loadSafeAllowlist collects the framework safe-sink patterns discovered
// during indexing. Entries flagged unsafe are ignored.
func (e *Engine) loadSafeAllowlist(ctx context.Context) ([]string, error) {
	records, err := e.store.SafeSinks(ctx)
	if err != nil {
		return nil, err
	}
	var allowlist []string
	for _, record := range records {
		if record.IsSafe && record.Pattern != "" {
			allowlist = append(allowlist, record.Pattern)
		}
	}
	e.log.Debug("Safe-sink allowlist loaded.", zap.Int("entries", len(allowlist)))
	return allowlist, nil
}
