package markdown

import (
	"net/http"
	"net/url"
	"strings"
)

// forwardedProtoHeader carries the scheme hint set by upstream proxies.
const forwardedProtoHeader = "X-Forwarded-Proto"

// fallbackHost is used when a request carries no Host header. It exists for
// local testing ergonomics only; the SSRF validator still fails closed on a
// missing Host header, so it never participates in a trust decision.
const fallbackHost = "localhost:3000"

// ResolveTarget builds the absolute URL of the primary resource for a path
// that already had the marker suffix stripped.
//
// The scheme comes from the forwarded-scheme hint when it normalizes to
// exactly "http" or "https"; anything else defaults to https. The host comes
// from the Host header. Absolute-form request URLs keep their own host, which
// is exactly the case the SSRF validator exists to judge.
func ResolveTarget(r *http.Request, strippedPath string) *url.URL {
	if r.URL.IsAbs() {
		u := *r.URL
		u.Path = strippedPath
		return &u
	}

	scheme := "https"
	hint := strings.ToLower(strings.TrimSpace(r.Header.Get(forwardedProtoHeader)))
	if hint == "http" || hint == "https" {
		scheme = hint
	}

	host := r.Host
	if host == "" {
		host = fallbackHost
	}

	return &url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     strippedPath,
		RawQuery: r.URL.RawQuery,
	}
}

// HostWithoutPort strips a port suffix from a Host header value. Bracketed
// IPv6 literals are unbracketed by locating the closing bracket; a bare host
// with multiple colons is an unbracketed IPv6 literal and carries no port.
func HostWithoutPort(host string) string {
	if strings.HasPrefix(host, "[") {
		if end := strings.Index(host, "]"); end > 0 {
			return host[1:end]
		}
		return host
	}
	if strings.Count(host, ":") == 1 {
		return host[:strings.Index(host, ":")]
	}
	return host
}
