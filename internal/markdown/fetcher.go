package markdown

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// maxRedirects bounds redirect chains on the upstream fetch.
const maxRedirects = 5

// errRedirectBlocked marks redirect targets rejected by the origin check.
var errRedirectBlocked = errors.New("redirect blocked")

// Fetcher issues the outbound GET for the primary resource. The transport is
// shared across invocations; the per-request client only exists to carry the
// redirect policy for that request's origin.
type Fetcher struct {
	transport *http.Transport
	timeout   time.Duration
}

// NewFetcher creates a fetcher with the given per-fetch deadline.
func NewFetcher(timeout time.Duration) *Fetcher {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &Fetcher{
		transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
		},
		timeout: timeout,
	}
}

// Timeout returns the configured fetch deadline.
func (f *Fetcher) Timeout() time.Duration {
	return f.timeout
}

// Do performs the GET with the allow-listed outbound headers. The caller owns
// ctx, which should already carry the fetch deadline, and must close the
// response body. Redirect targets are re-validated against the same origin
// rules so a redirecting upstream cannot smuggle the fetch off-origin.
func (f *Fetcher) Do(ctx context.Context, targetURL string, hdr http.Header, requestHost string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header = hdr

	client := &http.Client{
		Transport: f.transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects (max %d)", maxRedirects)
			}
			if vr := ValidateTarget(req.URL.Hostname(), requestHost); !vr.Valid {
				return fmt.Errorf("%w: %s", errRedirectBlocked, vr.Reason)
			}
			return nil
		},
	}

	return client.Do(req)
}
