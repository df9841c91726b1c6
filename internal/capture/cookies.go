package capture

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// NormalizeTarget validates a target URL and prepends https:// when the
// scheme is missing. Returns the canonical URL string.
func NormalizeTarget(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("empty target URL")
	}

	if !strings.Contains(target, "://") {
		target = "https://" + target
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid target URL %q: %w", target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("target URL %q has no host", target)
	}

	return u.String(), nil
}

// ParseCookieString parses a "name=value; name2=value2" cookie string into
// cookies scoped to the target's host with path /.
func ParseCookieString(raw string, target string) ([]*http.Cookie, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL for cookies: %w", err)
	}
	domain := u.Hostname()

	cookies := make([]*http.Cookie, 0)
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("malformed cookie pair %q", pair)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("malformed cookie pair %q", pair)
		}
		cookies = append(cookies, &http.Cookie{
			Name:   name,
			Value:  strings.TrimSpace(value),
			Domain: domain,
			Path:   "/",
		})
	}

	return cookies, nil
}
