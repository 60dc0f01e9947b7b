package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var storeLabel = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// HashKey creates a SHA256 hash of the given parts joined by NUL.
// This is useful for creating consistent, safe keys for Redis.
func HashKey(parts ...string) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h.Sum(nil))
}

// ValidStore reports whether store can be used as a single DNS label.
func ValidStore(store string) bool {
	return storeLabel.MatchString(store)
}

// ValidReference reports whether reference is usable as a path segment.
func ValidReference(reference string) bool {
	r := strings.TrimSpace(reference)
	return r != "" && r == reference && !strings.ContainsAny(r, "/?#\\")
}

// ProductURL builds https://{store}.{domain}/produto/{reference}.
func ProductURL(domain, store, reference string) (string, error) {
	if !ValidStore(store) {
		return "", fmt.Errorf("invalid store %q", store)
	}
	if !ValidReference(reference) {
		return "", fmt.Errorf("invalid reference %q", reference)
	}
	u := url.URL{
		Scheme: "https",
		Host:   store + "." + domain,
		Path:   "/produto/" + reference,
	}
	return u.String(), nil
}

// ToAbsoluteURL converts a relative URL to an absolute URL given a base URL.
func ToAbsoluteURL(base, relative string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	relURL, err := url.Parse(relative)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(relURL).String(), nil
}
