package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestLogger_ReusesRequestID(t *testing.T) {
	var buf bytes.Buffer
	h := Logger(newTestLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		LoggerFrom(r.Context(), nil).Debug("inside handler")
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/playthroughs/abc", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "req-123", rr.Header().Get(RequestIDHeader))
	for _, marker := range []string{"method=GET", "path=/v1/playthroughs/abc", "status=204", "request_id=req-123", "msg=\"inside handler\""} {
		assert.Contains(t, buf.String(), marker)
	}
}

func TestLogger_GeneratesRequestIDAndImplicitStatus(t *testing.T) {
	var buf bytes.Buffer
	h := Logger(newTestLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
	assert.Contains(t, buf.String(), "status=200")
	assert.Contains(t, buf.String(), "bytes=2")
	assert.Contains(t, buf.String(), "latency=")
}

func TestLoggerFrom_Fallback(t *testing.T) {
	fallback := slog.Default()
	assert.Same(t, fallback, LoggerFrom(httptest.NewRequest(http.MethodGet, "/", nil).Context(), fallback))
}
