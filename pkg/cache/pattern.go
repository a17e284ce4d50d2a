package cache

import "strings"

// MatchPattern reports whether key matches a glob pattern where '*' matches
// any run of characters (including none) and '?' matches exactly one.
// Unlike path.Match, '/' has no special meaning.
func MatchPattern(pattern, key string) bool {
	p, k := 0, 0
	starP, starK := -1, 0

	for k < len(key) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == key[k]):
			p++
			k++
		case p < len(pattern) && pattern[p] == '*':
			starP, starK = p, k
			p++
		case starP >= 0:
			// backtrack: let the last '*' swallow one more character
			starK++
			p, k = starP+1, starK
		default:
			return false
		}
	}

	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// PatternPrefix returns the literal prefix of pattern up to its first wildcard.
// Backends without native glob support scan by this prefix and filter with MatchPattern.
func PatternPrefix(pattern string) string {
	if i := strings.IndexAny(pattern, "*?"); i >= 0 {
		return pattern[:i]
	}
	return pattern
}

// IsLiteralPattern reports whether pattern contains no wildcards.
func IsLiteralPattern(pattern string) bool {
	return !strings.ContainsAny(pattern, "*?")
}
