package logger

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, slog.LevelInfo, "json").Info("snapshot_ready", "buildings", 3)
	if !strings.Contains(buf.String(), `"msg":"snapshot_ready"`) {
		t.Fatalf("output = %s, want JSON record", buf.String())
	}
}

func TestAccessMiddlewareLogsAndSetsRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelDebug, "text")
	h := AccessMiddleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("hi"))
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/buildings", nil)
	req.Header.Set(RequestIDHeader, "abc")
	h.ServeHTTP(rec, req)

	if rec.Header().Get(RequestIDHeader) != "abc" {
		t.Fatalf("request id not echoed: %q", rec.Header().Get(RequestIDHeader))
	}
	out := buf.String()
	for _, want := range []string{"http_access", "status=418", "bytes=2", "path=/api/buildings", "request_id=abc"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log %q missing %q", out, want)
		}
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("request id not generated")
	}
}
