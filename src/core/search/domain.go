package search

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	schemePattern = regexp.MustCompile(`(?i)^https?://`)
	// a dotted token ending in a two-letter-or-longer TLD, optionally
	// followed by a path
	domainPattern = regexp.MustCompile(`(?i)^\S+\.[a-z]{2,}(/|$)`)
)

// looksLikeURL reports whether text has an http(s) scheme or the shape of a
// bare domain.
func looksLikeURL(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	return schemePattern.MatchString(text) || domainPattern.MatchString(text)
}

// QueryDomain returns the host a URL-like query points at, lower-cased and
// without a leading "www.". It returns "" when text is not a URL or fails
// to parse, in which case the query is matched as plain text.
func QueryDomain(text string) string {
	text = strings.TrimSpace(text)
	if !looksLikeURL(text) {
		return ""
	}

	if !schemePattern.MatchString(text) {
		text = "https://" + text
	}

	u, err := url.Parse(text)
	if err != nil {
		return ""
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	return strings.TrimPrefix(host, "www.")
}
