package markdown

import "sync/atomic"

// rendererMetrics tracks pipeline outcomes using atomics (no mutex).
type rendererMetrics struct {
	total          atomic.Int64 // eligible requests entering the pipeline
	rendered       atomic.Int64
	notModified    atomic.Int64
	forbidden      atomic.Int64
	notFound       atomic.Int64
	payloadTooBig  atomic.Int64
	unsupported    atomic.Int64
	timeouts       atomic.Int64
	upstreamErrors atomic.Int64
	internalErrors atomic.Int64
}

// Snapshot is the JSON-serializable metrics form.
type Snapshot struct {
	Total          int64 `json:"total"`
	Rendered       int64 `json:"rendered"`
	NotModified    int64 `json:"not_modified"`
	Forbidden      int64 `json:"forbidden"`
	NotFound       int64 `json:"not_found"`
	PayloadTooBig  int64 `json:"payload_too_large"`
	Unsupported    int64 `json:"unsupported_media_type"`
	Timeouts       int64 `json:"timeouts"`
	UpstreamErrors int64 `json:"upstream_errors"`
	InternalErrors int64 `json:"internal_errors"`
}

func (m *rendererMetrics) snapshot() Snapshot {
	return Snapshot{
		Total:          m.total.Load(),
		Rendered:       m.rendered.Load(),
		NotModified:    m.notModified.Load(),
		Forbidden:      m.forbidden.Load(),
		NotFound:       m.notFound.Load(),
		PayloadTooBig:  m.payloadTooBig.Load(),
		Unsupported:    m.unsupported.Load(),
		Timeouts:       m.timeouts.Load(),
		UpstreamErrors: m.upstreamErrors.Load(),
		InternalErrors: m.internalErrors.Load(),
	}
}
