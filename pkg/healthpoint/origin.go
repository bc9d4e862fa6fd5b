package healthpoint

import (
	"net/url"
	"regexp"
	"strings"
)

// versionedBasePattern matches an API base URL that ends in a versioned
// path, e.g. "https://api.example.com/api/v1".
var versionedBasePattern = regexp.MustCompile(`(?i)^(.*)/api/v\d+$`)

// deriveAPIOrigin strips a trailing "/api/v<N>" path from the base URL so
// that relative asset paths (profile photos served from /media/...) can be
// resolved against the server origin rather than the API prefix.
func deriveAPIOrigin(baseURL string) string {
	normalized := strings.TrimSuffix(baseURL, "/")
	if m := versionedBasePattern.FindStringSubmatch(normalized); m != nil {
		return m[1]
	}
	return normalized
}

// normalizePhotoURL resolves a relative photo URL against the API origin.
// Absolute URLs pass through untouched, which makes the normalization
// idempotent.
func normalizePhotoURL(photoURL, origin string) string {
	if photoURL == "" {
		return ""
	}
	if u, err := url.Parse(photoURL); err == nil && u.IsAbs() {
		return photoURL
	}
	if !strings.HasPrefix(photoURL, "/") {
		photoURL = "/" + photoURL
	}
	return origin + photoURL
}
