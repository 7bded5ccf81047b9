package discovery

import (
	"strings"
)

// Glob metacharacters that can be escaped with backslash in patterns.
const globEscapable = `*?[]{}\`

// NormalizePattern converts a user-provided glob pattern to canonical form.
//
// Normalization rules:
//   - Unescaped backslashes converted to forward slashes (Windows compat)
//   - Escaped backslashes and glob metacharacters preserved (\*, \?, \[, etc.)
//   - Leading "./" segments removed (patterns are relative to the root)
//
// Examples:
//
//	"experiments/**/metadata.yml"    → "experiments/**/metadata.yml"
//	"experiments\foo\metadata.yml"   → "experiments/foo/metadata.yml"
//	"./experiments/**/metadata.yml"  → "experiments/**/metadata.yml"
//	"data/file\*.yml"                → "data/file\*.yml"
func NormalizePattern(pattern string) string {
	if pattern == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(len(pattern))

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if r == '\\' && i+1 < len(runes) {
			next := runes[i+1]
			if strings.ContainsRune(globEscapable, next) {
				result.WriteRune('\\')
				result.WriteRune(next)
				i++
				continue
			}
			result.WriteRune('/')
			continue
		}

		if r == '\\' {
			result.WriteRune('/')
			continue
		}

		result.WriteRune(r)
	}

	normalized := result.String()
	for strings.HasPrefix(normalized, "./") {
		normalized = strings.TrimPrefix(normalized, "./")
	}
	return normalized
}

// IsHidden returns true if any path segment starts with a dot.
//
// Examples:
//
//	"experiments/a/metadata.yml"       → false
//	".cache/a/metadata.yml"            → true
//	"experiments/.draft/metadata.yml"  → true
func IsHidden(path string) bool {
	for _, seg := range strings.Split(path, "/") {
		if seg != "" && seg != "." && seg != ".." && strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
