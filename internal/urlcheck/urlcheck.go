// Package urlcheck validates feed URLs against an allowlist of safe
// schemes, preventing file disclosure and SSRF via schemes like file,
// data, or javascript.
package urlcheck

import (
	"fmt"
	"net/url"
	"strings"
)

var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
}

// Validate checks a feed URL before any network access. It returns nil
// when the URL is an http or https URL with a hostname, and a
// descriptive error otherwise. Pure; no I/O.
func Validate(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("feed URL must not be empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("feed URL scheme is not allowed: %w", err)
	}
	if !allowedSchemes[parsed.Scheme] {
		return fmt.Errorf("URL scheme %q is not allowed; only http:// and https:// feed URLs are supported", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("feed URL must include a hostname")
	}
	return nil
}
