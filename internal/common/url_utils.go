package common

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveURL resolves target against base. Absolute targets are returned unchanged.
func ResolveURL(base, target string) (string, error) {
	if target == "" {
		return base, nil
	}
	t, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", target, err)
	}
	if t.IsAbs() || base == "" {
		return target, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", base, err)
	}
	if !strings.HasSuffix(b.Path, "/") && !strings.HasPrefix(target, "/") {
		b.Path += "/"
	}
	return b.ResolveReference(t).String(), nil
}
