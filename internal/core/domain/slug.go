package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// =============================================================================
// Slug Generation
// =============================================================================

var (
	schemePrefix = regexp.MustCompile(`^https?://`)
	portSuffix   = regexp.MustCompile(`:\d+$`)
	nonAlnumRuns = regexp.MustCompile(`[^a-z0-9]+`)
)

// GenerateSlug derives a deployment slug from its domain and sequence number.
//
// The scheme and port are stripped, every run of characters outside [a-z0-9]
// becomes a single hyphen, and the sequence number is appended in hex so two
// deployments never share a slug.
//
// This is a pure function with no side effects.
//
// Example:
//
//	GenerateSlug("https://Classly.ru:8080", 42)  // returns "classly-ru-2a"
func GenerateSlug(domain string, seq int64) string {
	d := schemePrefix.ReplaceAllString(strings.TrimSpace(domain), "")
	d = portSuffix.ReplaceAllString(d, "")
	base := strings.Trim(nonAlnumRuns.ReplaceAllString(strings.ToLower(d), "-"), "-")
	return base + "-" + strconv.FormatInt(seq, 16)
}
