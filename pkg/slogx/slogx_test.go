package slogx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/authgate/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestHTTPMiddleware_RequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{Service: "test", Format: "json", Output: &buf})

	var inner string
	h := slogx.HTTPMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := slogx.WithAttrs(r.Context(), "realm", "operator")
		slogx.FromContext(ctx).Info("inside")
		inner = "called"
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/operator/session", nil)
	req.Header.Set(slogx.RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, "called", inner)
	require.Equal(t, "req-123", rec.Header().Get(slogx.RequestIDHeader))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, last map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &last))

	require.Equal(t, "inside", first["msg"])
	require.Equal(t, "req-123", first["req_id"])
	require.Equal(t, "operator", first["realm"])

	require.Equal(t, "http_request", last["msg"])
	require.EqualValues(t, http.StatusTeapot, last["status"])
}

func TestHTTPMiddleware_GeneratesRequestID(t *testing.T) {
	logger := slogx.New(slogx.Config{Service: "test", Output: &bytes.Buffer{}})
	h := slogx.HTTPMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))

	require.Len(t, rec.Header().Get(slogx.RequestIDHeader), 26, "ULID string")
}

func TestRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{Service: "test", Format: "json", Output: &buf})

	var seen string
	h := slogx.HTTPMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = slogx.RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	req.Header.Set(slogx.RequestIDHeader, "req-456")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, "req-456", seen)
	require.Equal(t, 1, strings.Count(buf.String(), `"req_id":"req-456"`))
}

func TestFromContext_Defaults(t *testing.T) {
	ctx := context.Background()
	require.Same(t, slog.Default(), slogx.FromContext(ctx))
	require.Empty(t, slogx.RequestID(ctx))

	ctx = slogx.WithContext(ctx, nil)
	require.Same(t, slog.Default(), slogx.FromContext(ctx))
}

func TestNew_RedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{Service: "test", Format: "json", Output: &buf})

	logger.Info("login", "email", "a@example.com", "password", "hunter2", "Refresh_Token", "eyJ...")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "a@example.com", line["email"])
	require.Equal(t, slogx.Redacted, line["password"])
	require.Equal(t, slogx.Redacted, line["Refresh_Token"])
	require.NotContains(t, buf.String(), "hunter2")
}
