package openapi

import (
	"toolhost/internal/tools"
)

// ApplyAllowlist keeps contracts whose name matches an entry. Entries are
// operationIds or tool names; an empty list keeps everything.
func ApplyAllowlist(contracts []tools.Contract, allowlist []string) []tools.Contract {
	if len(contracts) == 0 {
		return nil
	}
	if len(allowlist) == 0 {
		return append([]tools.Contract(nil), contracts...)
	}

	allowed := make(map[string]bool, len(allowlist))
	for _, raw := range allowlist {
		name, err := ToolName(raw)
		if err != nil {
			continue
		}
		allowed[name] = true
	}

	filtered := make([]tools.Contract, 0, len(contracts))
	for _, c := range contracts {
		if allowed[c.Name] {
			filtered = append(filtered, c)
		}
	}
	return filtered
}
