package scope

import "strings"

const (
	// Wildcard grants every scope.
	Wildcard = "*"

	separator = ":"

	// Management scopes guarding the key-administration surface,
	// distinct from whatever scopes the managed keys themselves carry.
	ManagementRead  = "api-keys:read"
	ManagementWrite = "api-keys:write"
)

// Has reports whether the granted scope set satisfies the required scope.
// A grant satisfies when it is the global wildcard, matches exactly, or is
// "<resource>:*" for the required scope's resource. A required scope with
// no separator is itself a whole-resource request and only matches an
// identical grant or the global wildcard.
func Has(granted []string, required string) bool {
	resource, _, found := strings.Cut(required, separator)
	for _, g := range granted {
		if g == Wildcard || g == required {
			return true
		}
		if found && g == resource+separator+Wildcard {
			return true
		}
	}
	return false
}

// IsSubset reports whether every scope in candidate is present in current.
// Used to enforce narrowing-only key updates; matching is literal, a
// wildcard grant does not absorb narrower candidates.
func IsSubset(candidate, current []string) bool {
	if len(candidate) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(current))
	for _, s := range current {
		have[s] = struct{}{}
	}
	for _, s := range candidate {
		if _, ok := have[s]; !ok {
			return false
		}
	}
	return true
}

// Valid reports whether s is a well-formed scope: the global wildcard,
// "resource:action", or "resource:*".
func Valid(s string) bool {
	if s == Wildcard {
		return true
	}
	resource, action, found := strings.Cut(s, separator)
	if !found || resource == "" || action == "" {
		return false
	}
	return !strings.Contains(action, separator)
}

// Normalize deduplicates a scope set, preserving first-seen order.
func Normalize(scopes []string) []string {
	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
