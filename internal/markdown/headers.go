package markdown

import (
	"net/http"
	"strings"
)

// forwardableHeaders is the fixed allow-list of request headers that may ever
// reach the outbound fetch. It is not configurable: the headers.forward
// option can only narrow it, never widen it.
var forwardableHeaders = map[string]bool{
	"user-agent":      true,
	"accept-language": true,
	"accept-encoding": true,
	"accept":          true,
	"referer":         true,
	"origin":          true,
}

// ForwardHeaders builds a fresh outbound header set from the inbound request
// headers. When forward is non-nil only names present in both forward and
// the allow-list are copied, so an explicit empty list forwards nothing;
// a nil forward copies every allow-listed header present on the request.
// Values are copied verbatim; absent headers are omitted, never set empty.
func ForwardHeaders(in http.Header, forward []string) http.Header {
	out := make(http.Header)

	if forward != nil {
		for _, name := range forward {
			lower := strings.ToLower(strings.TrimSpace(name))
			if !forwardableHeaders[lower] {
				continue
			}
			if v := in.Get(lower); v != "" {
				out.Set(lower, v)
			}
		}
		return out
	}

	for name := range forwardableHeaders {
		if v := in.Get(name); v != "" {
			out.Set(name, v)
		}
	}
	return out
}
