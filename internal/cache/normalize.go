package cache

import (
	"fmt"
	"net/url"
	"strings"
)

// Canonical normalizes a raw URL into the canonical cache key: lowercase
// scheme and host, https assumed when no scheme is given, default ports and
// fragments dropped, and no trailing slash on the path. Query parameters are
// preserved because video identifiers commonly live there.
func Canonical(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("url is empty")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("url %q has unsupported scheme %q", raw, parsed.Scheme)
	}
	parsed.Scheme = scheme

	host := strings.ToLower(parsed.Host)
	switch {
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	}
	parsed.Host = host

	parsed.Fragment = ""
	if parsed.Path != "/" {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	} else {
		parsed.Path = ""
	}

	return parsed.String(), nil
}
