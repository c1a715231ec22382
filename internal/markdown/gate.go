package markdown

import (
	"compress/flate"
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"

	apierr "github.com/wudi/mdgate/internal/errors"
)

// Gate validates the upstream response before the body is materialized:
// status, content type, declared length, then realized length.
type Gate struct {
	maxSize int64
}

// NewGate creates a gate with the given payload ceiling in bytes.
func NewGate(maxSize int64) *Gate {
	return &Gate{maxSize: maxSize}
}

// convertibleContentType reports whether the upstream content type is one the
// transformer accepts.
func convertibleContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

// Check validates the response and returns the decoded body. The checks run
// in a fixed order so cheap rejections happen before any body read: a 404
// passes through as NotFound, other non-success statuses as their own code,
// then content type, then the declared Content-Length, and finally the
// realized body length for upstreams that omit or lie about the length.
func (g *Gate) Check(resp *http.Response) ([]byte, *apierr.RenderError) {
	if resp.StatusCode == http.StatusNotFound {
		return nil, apierr.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apierr.Upstream(resp.StatusCode)
	}

	if !convertibleContentType(resp.Header.Get("Content-Type")) {
		return nil, apierr.ErrUnsupportedMediaType
	}

	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > g.maxSize {
			return nil, apierr.ErrPayloadTooLarge
		}
	}

	reader, err := decodeBody(resp)
	if err != nil {
		return nil, apierr.ErrUnsupportedMediaType
	}

	// Read one byte past the ceiling so an over-limit body is detected
	// without materializing all of it.
	body, err := io.ReadAll(io.LimitReader(reader, g.maxSize+1))
	if err != nil {
		return nil, apierr.Wrap(err, http.StatusInternalServerError, "Internal Server Error")
	}
	if int64(len(body)) > g.maxSize {
		return nil, apierr.ErrPayloadTooLarge
	}

	return body, nil
}

// decodeBody wraps the response body with the decoder matching its
// Content-Encoding. Forwarding Accept-Encoding means the upstream may answer
// compressed; the decoded stream stays subject to the size ceiling.
func decodeBody(resp *http.Response) (io.Reader, error) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "", "identity":
		return resp.Body, nil
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "deflate":
		return flate.NewReader(resp.Body), nil
	case "br":
		return brotli.NewReader(resp.Body), nil
	case "zstd":
		dec, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	default:
		return nil, errUnknownEncoding
	}
}

var errUnknownEncoding = errors.New("unsupported content encoding")
