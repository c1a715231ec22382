package markdown

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wudi/mdgate/config"
)

// newTestRenderer builds a renderer and a loopback server whose handler runs
// the renderer middleware in front of a small HTML site. Marker requests go
// back to the same server, so origin validation sees loopback addresses.
func newTestRenderer(t *testing.T, cfg config.MarkdownConfig) (*Renderer, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, `<html><head><title>About Us</title></head><body><h1>Test</h1><p>Hello <a href="/contact">contact</a></p></body></html>`)
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html><body><p>"+strings.Repeat("a", 4096)+"</p></body></html>")
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok":true}`)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html><body>late</body></html>")
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "pass-through content")
	})

	rd, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	srv := httptest.NewServer(rd.Middleware()(mux))
	t.Cleanup(srv.Close)
	return rd, srv
}

// getMarkdown issues a marker request with the scheme hint the loopback
// server needs, since resolution defaults to https.
func getMarkdown(t *testing.T, srv *httptest.Server, path string, mod func(*http.Request)) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Forwarded-Proto", "http")
	if mod != nil {
		mod(req)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func intPtr(v int) *int { return &v }

func TestRendererRendersMarkdown(t *testing.T) {
	cfg := config.MarkdownConfig{
		Cache:   config.CacheConfig{Enabled: true, MaxAge: intPtr(60)},
		Headers: config.HeadersConfig{Custom: map[string]string{"X-Robots-Tag": "noindex"}},
	}
	_, srv := newTestRenderer(t, cfg)

	resp := getMarkdown(t, srv, "/about.md", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/markdown; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=60" {
		t.Errorf("Cache-Control = %q", cc)
	}
	if resp.Header.Get("X-Robots-Tag") != "noindex" {
		t.Error("custom header missing")
	}
	if resp.Header.Get("X-Markdown-Title") != "About Us" {
		t.Errorf("X-Markdown-Title = %q", resp.Header.Get("X-Markdown-Title"))
	}
	if resp.Header.Get("ETag") == "" {
		t.Error("ETag missing")
	}

	body, _ := io.ReadAll(resp.Body)
	md := string(body)
	if !strings.Contains(md, "# Test") {
		t.Errorf("markdown missing heading: %q", md)
	}
	if !strings.Contains(md, srv.URL+"/contact") {
		t.Errorf("relative link not resolved against origin: %q", md)
	}
}

func TestRendererCacheExplicitZeroMaxAge(t *testing.T) {
	_, srv := newTestRenderer(t, config.MarkdownConfig{
		Cache: config.CacheConfig{Enabled: true, MaxAge: intPtr(0)},
	})
	resp := getMarkdown(t, srv, "/about.md", nil)
	resp.Body.Close()
	if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=0" {
		t.Errorf("Cache-Control = %q, explicit 0 must not become the default", cc)
	}
}

func TestRendererEmptyForwardListSendsNoHeaders(t *testing.T) {
	var upstreamHeaders http.Header
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		upstreamHeaders = r.Header.Clone()
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html><body><h1>Page</h1></body></html>")
	})

	rd, err := New(config.MarkdownConfig{
		Headers: config.HeadersConfig{Forward: []string{}},
	})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(rd.Middleware()(mux))
	defer srv.Close()

	resp := getMarkdown(t, srv, "/page.md", func(r *http.Request) {
		r.Header.Set("User-Agent", "client-agent/9.9")
		r.Header.Set("Accept-Language", "fr-FR")
	})
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := upstreamHeaders.Get("User-Agent"); got == "client-agent/9.9" {
		t.Error("client User-Agent forwarded despite empty forward list")
	}
	if got := upstreamHeaders.Get("Accept-Language"); got != "" {
		t.Errorf("Accept-Language = %q, want nothing forwarded", got)
	}
}

func TestRendererCacheDisabled(t *testing.T) {
	_, srv := newTestRenderer(t, config.MarkdownConfig{})
	resp := getMarkdown(t, srv, "/about.md", nil)
	resp.Body.Close()
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}
}

func TestRendererPassThrough(t *testing.T) {
	_, srv := newTestRenderer(t, config.MarkdownConfig{})

	resp, err := srv.Client().Get(srv.URL + "/plain")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "pass-through content" {
		t.Errorf("non-marker path intercepted: %q", body)
	}
}

func TestRendererPassesNonGetThrough(t *testing.T) {
	_, srv := newTestRenderer(t, config.MarkdownConfig{})

	resp, err := srv.Client().Post(srv.URL+"/about.md", "text/plain", strings.NewReader("x"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	// The inner mux has no /about.md route, so pass-through means its 404,
	// not the pipeline's JSON error.
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		t.Error("POST went through the pipeline")
	}
}

func TestRendererBlocksForeignHost(t *testing.T) {
	rd, err := New(config.MarkdownConfig{})
	if err != nil {
		t.Fatal(err)
	}
	handler := rd.Middleware()(http.NotFoundHandler())

	// Absolute-form request URL targeting a foreign host.
	req := httptest.NewRequest(http.MethodGet, "http://evil.test/steal.md", nil)
	req.Host = "example.com"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	var body struct {
		Message string `json:"message"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Message != "Forbidden" {
		t.Errorf("message = %q", body.Message)
	}
	if !strings.Contains(body.Details, "evil.test") {
		t.Errorf("details = %q, should echo rejected hostname", body.Details)
	}
}

func TestRendererErrorMapping(t *testing.T) {
	rd, srv := newTestRenderer(t, config.MarkdownConfig{
		MaxRequestSize: 1024,
		FetchTimeout:   200 * time.Millisecond,
	})

	tests := []struct {
		path string
		want int
	}{
		{"/missing.md", http.StatusNotFound},
		{"/big.md", http.StatusRequestEntityTooLarge},
		{"/data.md", http.StatusUnsupportedMediaType},
		{"/slow.md", http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := getMarkdown(t, srv, tt.path, nil)
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("error Content-Type = %q", ct)
			}
		})
	}

	stats := rd.Stats()
	for _, key := range []string{"not_found", "payload_too_large", "unsupported_media_type", "timeouts"} {
		if stats[key].(int64) != 1 {
			t.Errorf("stats[%s] = %v, want 1", key, stats[key])
		}
	}
}

func TestRendererETagRevalidation(t *testing.T) {
	_, srv := newTestRenderer(t, config.MarkdownConfig{})

	first := getMarkdown(t, srv, "/about.md", nil)
	io.Copy(io.Discard, first.Body)
	first.Body.Close()
	etag := first.Header.Get("ETag")
	if etag == "" {
		t.Fatal("no ETag on first response")
	}

	second := getMarkdown(t, srv, "/about.md", func(r *http.Request) {
		r.Header.Set("If-None-Match", etag)
	})
	body, _ := io.ReadAll(second.Body)
	second.Body.Close()

	if second.StatusCode != http.StatusNotModified {
		t.Errorf("status = %d, want 304", second.StatusCode)
	}
	if len(body) != 0 {
		t.Errorf("304 carried a body: %q", body)
	}
}

func TestRendererETagDisabled(t *testing.T) {
	off := false
	_, srv := newTestRenderer(t, config.MarkdownConfig{
		ETag: config.ETagConfig{Enabled: &off},
	})

	resp := getMarkdown(t, srv, "/about.md", nil)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.Header.Get("ETag") != "" {
		t.Error("ETag emitted despite being disabled")
	}
}

func TestRendererHead(t *testing.T) {
	_, srv := newTestRenderer(t, config.MarkdownConfig{})

	req, _ := http.NewRequest(http.MethodHead, srv.URL+"/about.md", nil)
	req.Header.Set("X-Forwarded-Proto", "http")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/markdown; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) != 0 {
		t.Errorf("HEAD carried a body: %q", body)
	}
}

func TestRendererErrorHook(t *testing.T) {
	rd, srv := newTestRenderer(t, config.MarkdownConfig{})
	rd.OnError(func(err error, r *http.Request) *ErrorResponse {
		return &ErrorResponse{
			Status: http.StatusTeapot,
			Header: http.Header{"Content-Type": []string{"text/plain"}},
			Body:   []byte("custom error page"),
		}
	})

	resp := getMarkdown(t, srv, "/missing.md", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("status = %d, want hook override 418", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "custom error page" {
		t.Errorf("body = %q", body)
	}
}

func TestRendererErrorHookFallback(t *testing.T) {
	rd, srv := newTestRenderer(t, config.MarkdownConfig{})
	rd.OnError(func(err error, r *http.Request) *ErrorResponse {
		return nil // defer to the default mapping
	})

	resp := getMarkdown(t, srv, "/missing.md", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want default 404", resp.StatusCode)
	}
}

func TestRendererRootMarker(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html><body><h1>Home</h1></body></html>")
	})

	rd, err := New(config.MarkdownConfig{})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(rd.Middleware()(mux))
	defer srv.Close()

	resp := getMarkdown(t, srv, "/.md", nil)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %q", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "# Home") {
		t.Errorf("markdown = %q", body)
	}
}
