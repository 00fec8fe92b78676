package cache

import (
	"net/url"
	"sort"
	"strings"

	"github.com/sitekit/sitekit/pkg/errors"
)

// KeyPrefix marks cache entries written by this library so that Clear can
// sweep a shared storage tier without touching unrelated entries.
const KeyPrefix = "sitekit-cache:"

// NormalizeKey maps a request URL to a canonical cache key:
// scheme + host + path + sorted query string, lowercased. Two logically
// identical requests differing only in query-parameter order normalize to
// the same key.
func NormalizeKey(rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidCacheKey, "unparseable request URL", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", errors.NewError(errors.ErrCodeInvalidCacheKey, "request URL must be absolute").
			WithDetail("url", rawURL)
	}

	path := strings.TrimSuffix(parsed.EscapedPath(), "/")

	var sb strings.Builder
	sb.WriteString(parsed.Scheme)
	sb.WriteString("://")
	sb.WriteString(parsed.Host)
	sb.WriteString(path)

	query := parsed.Query()
	if len(query) > 0 {
		names := make([]string, 0, len(query))
		for name := range query {
			names = append(names, name)
		}
		sort.Strings(names)

		sb.WriteString("?")
		first := true
		for _, name := range names {
			values := query[name]
			sort.Strings(values)
			for _, value := range values {
				if !first {
					sb.WriteString("&")
				}
				first = false
				sb.WriteString(url.QueryEscape(name))
				sb.WriteString("=")
				sb.WriteString(url.QueryEscape(value))
			}
		}
	}

	return KeyPrefix + strings.ToLower(sb.String()), nil
}
