package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// RenderError is an error the pipeline can return to clients. The message is
// always generic; Details may carry the rejected hostname for SSRF denials
// but never upstream bodies or internal error text.
type RenderError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	underlying error
}

func (e *RenderError) Error() string {
	if e.underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.underlying)
	}
	return e.Message
}

func (e *RenderError) Unwrap() error {
	return e.underlying
}

// WriteJSON writes the error as JSON to the response.
// Base singletons use pre-serialized bytes to avoid per-request encoding.
func (e *RenderError) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Code)
	if pre, ok := preSerialized[e]; ok {
		w.Write(pre)
		return
	}
	json.NewEncoder(w).Encode(e)
}

// One singleton per pipeline failure kind.
var (
	ErrForbidden = &RenderError{
		Code:    http.StatusForbidden,
		Message: "Forbidden",
	}

	ErrNotFound = &RenderError{
		Code:    http.StatusNotFound,
		Message: "Not Found",
	}

	ErrPayloadTooLarge = &RenderError{
		Code:    http.StatusRequestEntityTooLarge,
		Message: "Payload Too Large",
	}

	ErrUnsupportedMediaType = &RenderError{
		Code:    http.StatusUnsupportedMediaType,
		Message: "Unsupported Media Type",
	}

	ErrGatewayTimeout = &RenderError{
		Code:    http.StatusGatewayTimeout,
		Message: "Gateway Timeout",
	}

	ErrInternalServer = &RenderError{
		Code:    http.StatusInternalServerError,
		Message: "Internal Server Error",
	}
)

// preSerialized holds JSON-encoded bytes for the base singletons.
var preSerialized map[*RenderError][]byte

func init() {
	bases := []*RenderError{
		ErrForbidden, ErrNotFound, ErrPayloadTooLarge,
		ErrUnsupportedMediaType, ErrGatewayTimeout, ErrInternalServer,
	}
	preSerialized = make(map[*RenderError][]byte, len(bases))
	for _, e := range bases {
		b, _ := json.Marshal(e)
		b = append(b, '\n') // match json.Encoder behavior
		preSerialized[e] = b
	}
}

// New creates a RenderError with an arbitrary status code. Used for upstream
// status passthrough, where the message is the standard status text.
func New(code int, message string) *RenderError {
	return &RenderError{
		Code:    code,
		Message: message,
	}
}

// Upstream maps a non-success upstream status onto a RenderError carrying
// the standard status text. The upstream body is never included.
func Upstream(status int) *RenderError {
	text := http.StatusText(status)
	if text == "" {
		text = "Upstream Error"
	}
	return &RenderError{
		Code:    status,
		Message: text,
	}
}

// Wrap attaches an underlying error for server-side logging. The underlying
// error is reachable via Unwrap but is never serialized to the client.
func Wrap(err error, code int, message string) *RenderError {
	return &RenderError{
		Code:       code,
		Message:    message,
		underlying: err,
	}
}

// WithDetails returns a copy with client-visible details attached.
func (e *RenderError) WithDetails(details string) *RenderError {
	return &RenderError{
		Code:       e.Code,
		Message:    e.Message,
		Details:    details,
		RequestID:  e.RequestID,
		underlying: e.underlying,
	}
}

// WithRequestID returns a copy carrying the request correlation ID.
func (e *RenderError) WithRequestID(requestID string) *RenderError {
	return &RenderError{
		Code:       e.Code,
		Message:    e.Message,
		Details:    e.Details,
		RequestID:  requestID,
		underlying: e.underlying,
	}
}
