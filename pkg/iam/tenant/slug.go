package tenant

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	invalidCharRe = regexp.MustCompile(`[^a-z0-9-]`)
	multiHyphenRe = regexp.MustCompile(`-+`)
)

// Slugify derives a subdomain slug from a display name: lowercase,
// whitespace to hyphens, everything outside [a-z0-9-] stripped, repeated
// hyphens collapsed, leading/trailing hyphens trimmed. May return "" when
// no valid characters remain; callers must treat that as invalid input.
func Slugify(name string) string {
	slug := strings.ToLower(name)
	slug = whitespaceRe.ReplaceAllString(slug, "-")
	slug = invalidCharRe.ReplaceAllString(slug, "")
	slug = multiHyphenRe.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	return slug
}

// SlugCandidate returns the nth collision-avoidance candidate for a base
// slug: the base itself for attempt 0, then "base-1", "base-2", ...
func SlugCandidate(base string, attempt int) string {
	if attempt == 0 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, attempt)
}
