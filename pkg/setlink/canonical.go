package setlink

import (
	"net/url"
	"sort"
	"strings"
)

// shortLinkHosts maps short-link hosts to the host they are rewritten to.
var shortLinkHosts = map[string]string{
	"on.soundcloud.com": "soundcloud.com",
}

// trackingParams are dropped from every canonical URL. Any utm_* key is dropped as well.
var trackingParams = map[string]struct{}{
	"si":            {},
	"t":             {},
	"time_continue": {},
}

// platformHosts is the detection allow-list, checked in order.
var platformHosts = []struct {
	platform Platform
	hosts    []string
}{
	{PlatformYouTube, []string{"youtube.com", "youtu.be"}},
	{PlatformSoundCloud, []string{"soundcloud.com"}},
}

// Canonicalize normalizes a raw URL into the catalog's deduplication key.
// Input that does not parse as an absolute http(s) URL is returned trimmed and otherwise untouched.
// Canonicalize(Canonicalize(x)) == Canonicalize(x) for every x.
func Canonicalize(raw string) string {
	trimmed := strings.TrimSpace(raw)

	u, err := url.Parse(trimmed)
	if err != nil || !isWebURL(u) {
		return trimmed
	}

	u.Host = strings.ToLower(u.Host)
	if canonicalHost, ok := shortLinkHosts[u.Host]; ok {
		u.Host = canonicalHost
	}

	u.RawQuery = stripTrackingParams(u.RawQuery)
	u.ForceQuery = false

	return u.String()
}

// NormalizeShortLink rewrites short-link hosts to their canonical host and leaves everything else alone.
func NormalizeShortLink(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return raw
	}
	if canonicalHost, ok := shortLinkHosts[strings.ToLower(u.Host)]; ok {
		u.Host = canonicalHost
		return u.String()
	}
	return raw
}

// Detect classifies a canonical URL by host. It never touches the network.
// Anything Canonicalize would leave untouched is unsupported.
func Detect(canonicalURL string) (Platform, error) {
	u, err := url.Parse(canonicalURL)
	if err != nil || !isWebURL(u) {
		return "", ErrUnsupportedPlatform
	}

	host := strings.ToLower(u.Hostname())
	for _, candidate := range platformHosts {
		for _, h := range candidate.hosts {
			if strings.Contains(host, h) {
				return candidate.platform, nil
			}
		}
	}

	return "", ErrUnsupportedPlatform
}

func isTrackingParam(key string) bool {
	lower := strings.ToLower(key)
	if strings.HasPrefix(lower, "utm_") {
		return true
	}
	_, ok := trackingParams[lower]
	return ok
}

func isWebURL(u *url.URL) bool {
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

// stripTrackingParams drops tracking pairs from a raw query and keeps every
// other pair byte for byte, ordered by key.
func stripTrackingParams(rawQuery string) string {
	type pair struct {
		key, raw string
	}

	var kept []pair
	for _, raw := range strings.Split(rawQuery, "&") {
		if raw == "" {
			continue
		}
		key, _, _ := strings.Cut(raw, "=")
		if unescaped, err := url.QueryUnescape(key); err == nil {
			key = unescaped
		}
		if isTrackingParam(key) {
			continue
		}
		kept = append(kept, pair{key: key, raw: raw})
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].key < kept[j].key })

	parts := make([]string, len(kept))
	for i, p := range kept {
		parts[i] = p.raw
	}
	return strings.Join(parts, "&")
}
