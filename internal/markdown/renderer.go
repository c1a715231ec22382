package markdown

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/wudi/mdgate/config"
	apierr "github.com/wudi/mdgate/internal/errors"
	"github.com/wudi/mdgate/internal/logging"
	"github.com/wudi/mdgate/internal/middleware"
)

// ErrorResponse is a caller-built replacement for the default error mapping.
type ErrorResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// ErrorHook lets the embedding application override error responses. A nil
// return falls back to the default mapping.
type ErrorHook func(err error, r *http.Request) *ErrorResponse

// Renderer intercepts requests for markdown renditions of same-origin pages:
// it fetches the primary resource and converts it to markdown, or maps the
// failure onto a status code.
type Renderer struct {
	classifier   *Classifier
	fetcher      *Fetcher
	gate         *Gate
	transformer  *Transformer
	forward      []string
	custom       map[string]string
	cacheControl string
	etagEnabled  bool
	onError      ErrorHook
	metrics      rendererMetrics
}

// New creates a Renderer from config. Unset fields get defaults; explicit
// false/zero values are preserved.
func New(cfg config.MarkdownConfig) (*Renderer, error) {
	cfg.Normalize()

	classifier, err := NewClassifier(cfg.Exclude)
	if err != nil {
		return nil, err
	}

	cacheControl := "no-store"
	if cfg.Cache.Enabled {
		cacheControl = fmt.Sprintf("public, max-age=%d", cfg.Cache.MaxAgeSeconds())
	}

	return &Renderer{
		classifier:   classifier,
		fetcher:      NewFetcher(cfg.FetchTimeout),
		gate:         NewGate(cfg.MaxRequestSize),
		transformer:  NewTransformer(cfg.Convert),
		forward:      cfg.Headers.Forward,
		custom:       cfg.Headers.Custom,
		cacheControl: cacheControl,
		etagEnabled:  cfg.ETag.ETagEnabled(),
	}, nil
}

// OnError installs the error-override hook.
func (rd *Renderer) OnError(hook ErrorHook) {
	rd.onError = hook
}

// Middleware returns a middleware that handles eligible paths and passes
// everything else through.
func (rd *Renderer) Middleware() middleware.Middleware {
	return middleware.WrapFunc(func(w http.ResponseWriter, r *http.Request, next http.Handler) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		if !rd.classifier.Eligible(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		rd.handle(w, r)
	})
}

// handle runs the pipeline for one eligible request. Stages execute strictly
// in order; the first failure short-circuits into the error mapping.
func (rd *Renderer) handle(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error("markdown pipeline panic",
				zap.Any("panic", rec),
				zap.String("path", r.URL.Path),
			)
			rd.writeError(w, r, apierr.ErrInternalServer)
		}
	}()

	rd.metrics.total.Add(1)

	stripped := StripMarker(r.URL.Path)
	if stripped == "" {
		stripped = "/"
	}

	target := ResolveTarget(r, stripped)

	if vr := ValidateTarget(target.Hostname(), r.Host); !vr.Valid {
		rd.writeError(w, r, apierr.ErrForbidden.WithDetails(vr.Reason))
		return
	}

	outbound := ForwardHeaders(r.Header, rd.forward)

	ctx, cancel := context.WithTimeout(r.Context(), rd.fetcher.Timeout())
	defer cancel()

	resp, err := rd.fetcher.Do(ctx, target.String(), outbound, r.Host)
	if err != nil {
		rd.writeError(w, r, classifyFetchError(err))
		return
	}
	defer resp.Body.Close()

	body, gerr := rd.gate.Check(resp)
	if gerr != nil {
		// Body reads aborted by the fetch deadline surface as wrapped
		// internal errors; reclassify them.
		if gerr.Code == http.StatusInternalServerError && ctx.Err() == context.DeadlineExceeded {
			gerr = apierr.ErrGatewayTimeout
		}
		rd.writeError(w, r, gerr)
		return
	}

	rendered, terr := rd.transformer.Transform(body, target.String())
	if terr != nil {
		rd.writeError(w, r, apierr.Wrap(terr, http.StatusInternalServerError, "Internal Server Error"))
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/markdown; charset=utf-8")
	h.Set("Cache-Control", rd.cacheControl)
	for name, value := range rd.custom {
		h.Set(name, value)
	}
	if title := ExtractTitle(body); title != "" {
		h.Set("X-Markdown-Title", headerSafe(title))
	}

	if rd.etagEnabled {
		etag := generateETag([]byte(rendered))
		h.Set("ETag", etag)
		if inm := r.Header.Get("If-None-Match"); inm != "" && matchETag(inm, etag) {
			rd.metrics.notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	rd.metrics.rendered.Add(1)
	if r.Method == http.MethodHead {
		return
	}
	w.Write([]byte(rendered))
}

// classifyFetchError maps transport failures onto pipeline errors: deadline
// and net timeouts become gateway timeouts, blocked redirects become
// forbidden, anything else is internal.
func classifyFetchError(err error) *apierr.RenderError {
	if errors.Is(err, context.DeadlineExceeded) {
		return apierr.ErrGatewayTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return apierr.ErrGatewayTimeout
	}
	if errors.Is(err, errRedirectBlocked) {
		return apierr.ErrForbidden.WithDetails("redirect target not allowed")
	}
	return apierr.Wrap(err, http.StatusInternalServerError, "Internal Server Error")
}

// writeError counts the outcome and writes the response, honoring the
// override hook first. Error bodies stay generic; the only caller data they
// may echo is the rejected hostname inside the Forbidden details.
func (rd *Renderer) writeError(w http.ResponseWriter, r *http.Request, rerr *apierr.RenderError) {
	switch rerr.Code {
	case http.StatusForbidden:
		rd.metrics.forbidden.Add(1)
	case http.StatusNotFound:
		rd.metrics.notFound.Add(1)
	case http.StatusRequestEntityTooLarge:
		rd.metrics.payloadTooBig.Add(1)
	case http.StatusUnsupportedMediaType:
		rd.metrics.unsupported.Add(1)
	case http.StatusGatewayTimeout:
		rd.metrics.timeouts.Add(1)
	case http.StatusInternalServerError:
		rd.metrics.internalErrors.Add(1)
	default:
		rd.metrics.upstreamErrors.Add(1)
	}

	if err := errors.Unwrap(rerr); err != nil {
		logging.Error("markdown pipeline error",
			zap.Int("status", rerr.Code),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}

	if rd.onError != nil {
		if resp := rd.onError(rerr, r); resp != nil {
			for name, values := range resp.Header {
				for _, v := range values {
					w.Header().Add(name, v)
				}
			}
			w.WriteHeader(resp.Status)
			w.Write(resp.Body)
			return
		}
	}

	if id := middleware.GetRequestID(r); id != "" {
		rerr = rerr.WithRequestID(id)
	}
	rerr.WriteJSON(w)
}

// Stats returns pipeline metrics for the admin API.
func (rd *Renderer) Stats() map[string]interface{} {
	snap := rd.metrics.snapshot()
	return map[string]interface{}{
		"total":                  snap.Total,
		"rendered":               snap.Rendered,
		"not_modified":           snap.NotModified,
		"forbidden":              snap.Forbidden,
		"not_found":              snap.NotFound,
		"payload_too_large":      snap.PayloadTooBig,
		"unsupported_media_type": snap.Unsupported,
		"timeouts":               snap.Timeouts,
		"upstream_errors":        snap.UpstreamErrors,
		"internal_errors":        snap.InternalErrors,
	}
}
