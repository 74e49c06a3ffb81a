// Package kindid canonicalizes organism kind names typed by users.
package kindid

import "strings"

// Normalize lowercases name, folds separators to '-' and resolves the known
// aliases of the built-in kinds. Unknown names are returned normalized.
func Normalize(name string) string {
	normalized := strings.TrimSpace(strings.ToLower(name))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.Trim(normalized, "-")
	if normalized == "" {
		return ""
	}
	for _, candidate := range aliasCandidates(normalized) {
		if canonical, ok := canonicalKindName(candidate); ok {
			return canonical
		}
	}
	return normalized
}

func aliasCandidates(normalized string) []string {
	candidates := []string{normalized}
	trimmed := strings.Trim(strings.TrimSuffix(normalized, "example"), "-")
	if trimmed != "" && trimmed != normalized {
		candidates = append(candidates, trimmed)
	}
	if plural := strings.TrimSuffix(trimmed, "s"); plural != "" && plural != trimmed {
		candidates = append(candidates, plural)
	}
	return candidates
}

func canonicalKindName(alias string) (string, bool) {
	switch strings.ReplaceAll(alias, "-", "") {
	case "creature":
		return "creature", true
	case "linecraft", "map", "linecraftmap":
		return "linecraft", true
	default:
		return "", false
	}
}
