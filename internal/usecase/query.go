package usecase

import (
	"regexp"
	"strings"
)

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9\s]`)
	multiSpace      = regexp.MustCompile(`\s+`)
)

// normalizeForCacheKey lowercases s and drops punctuation so equivalent
// queries share one cache entry.
func normalizeForCacheKey(s string) string {
	if s == "" {
		return ""
	}
	result := strings.ToLower(s)
	result = nonAlphanumeric.ReplaceAllString(result, "")
	result = multiSpace.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}
