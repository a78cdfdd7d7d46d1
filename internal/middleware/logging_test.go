package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		xri        string
		remoteAddr string
		expected   string
	}{
		{name: "forwarded single", xff: "203.0.113.50", remoteAddr: "127.0.0.1:1234", expected: "203.0.113.50"},
		{name: "forwarded chain keeps first hop", xff: "203.0.113.50, 70.41.3.18", remoteAddr: "127.0.0.1:1234", expected: "203.0.113.50"},
		{name: "forwarded trims spaces", xff: "  203.0.113.50  ", remoteAddr: "127.0.0.1:1234", expected: "203.0.113.50"},
		{name: "real ip", xri: " 198.51.100.178 ", remoteAddr: "127.0.0.1:1234", expected: "198.51.100.178"},
		{name: "forwarded wins over real ip", xff: "203.0.113.50", xri: "198.51.100.178", remoteAddr: "127.0.0.1:1234", expected: "203.0.113.50"},
		{name: "remote addr with port", remoteAddr: "192.168.1.1:8080", expected: "192.168.1.1"},
		{name: "remote addr without port", remoteAddr: "192.168.1.1", expected: "192.168.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.expected, GetClientIP(req))
		})
	}
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	return line
}

func TestLoggingMiddleware_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		level  string
	}{
		{name: "ok", path: "/", status: http.StatusOK, level: "info"},
		{name: "health check", path: "/healthz", status: http.StatusOK, level: "debug"},
		{name: "client error", path: "/nope", status: http.StatusNotFound, level: "warn"},
		{name: "server error", path: "/readyz", status: http.StatusServiceUnavailable, level: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
			h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("body"))
			}))

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("X-Request-ID", "req-7")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			line := decodeLine(t, &buf)
			assert.Equal(t, tt.level, line["level"])
			assert.Equal(t, tt.path, line["path"])
			assert.EqualValues(t, tt.status, line["status"])
			assert.EqualValues(t, 4, line["bytes"])
			assert.Equal(t, "req-7", line["request_id"])
		})
	}
}

func TestLoggingMiddleware_ImplicitOK(t *testing.T) {
	var buf bytes.Buffer
	h := LoggingMiddleware(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	line := decodeLine(t, &buf)
	assert.EqualValues(t, http.StatusOK, line["status"])
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	h := Recover(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	line := decodeLine(t, &buf)
	assert.Equal(t, "error", line["level"])
	assert.Contains(t, line["error"], "boom")
}
