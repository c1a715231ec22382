package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var panicky = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	panic("boom")
})

func TestRecovery(t *testing.T) {
	rec := httptest.NewRecorder()
	Recovery()(panicky).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Error("panic value leaked into response body")
	}
}

func TestRecoveryLogFunc(t *testing.T) {
	var loggedErr interface{}
	var loggedStack []byte

	cfg := RecoveryConfig{
		PrintStack: true,
		LogFunc: func(err interface{}, stack []byte) {
			loggedErr = err
			loggedStack = stack
		},
	}

	rec := httptest.NewRecorder()
	RecoveryWithConfig(cfg)(panicky).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	if loggedErr != "boom" {
		t.Errorf("logged err = %v, want boom", loggedErr)
	}
	if len(loggedStack) == 0 {
		t.Error("expected a stack trace")
	}
}

func TestRecoveryWithoutStack(t *testing.T) {
	var loggedStack []byte
	cfg := RecoveryConfig{
		PrintStack: false,
		LogFunc:    func(err interface{}, stack []byte) { loggedStack = stack },
	}

	rec := httptest.NewRecorder()
	RecoveryWithConfig(cfg)(panicky).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	if len(loggedStack) != 0 {
		t.Errorf("stack captured despite PrintStack=false: %d bytes", len(loggedStack))
	}
}

func TestRecoveryNoPanic(t *testing.T) {
	handler := Recovery()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fine"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "fine" {
		t.Errorf("response = %d %q", rec.Code, rec.Body.String())
	}
}

func TestRecoveryCarriesRequestID(t *testing.T) {
	handler := NewChain(RequestID(), RecoveryWithConfig(RecoveryConfig{})).Then(panicky)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "req-abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "req-abc-123") {
		t.Errorf("request ID missing from error body: %q", rec.Body.String())
	}
}
