package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogs 把默认 logger 临时替换为写入缓冲区的 logger。
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	original := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(original) })
	return &buf
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestLogging(t *testing.T) {
	logs := captureLogs(t)
	h := RequestID(Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "http://gordonbeeming.com/some-path", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := logs.String()
	assert.Contains(t, out, "http request")
	assert.Contains(t, out, "/some-path")
	assert.Contains(t, out, "status=418")
	assert.Contains(t, out, "host=gordonbeeming.com")
	assert.Contains(t, out, "client_ip=203.0.113.7")
	assert.Contains(t, out, "request_id=")
}

func TestLogging_AddLogFields(t *testing.T) {
	logs := captureLogs(t)
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddLogFields(r.Context(), "host_class", "csp")
		AddLogFields(r.Context(), "csp", "rewritten")
		w.Write([]byte("hello"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	out := logs.String()
	assert.Contains(t, out, "bytes=5")
	assert.Contains(t, out, "host_class=csp")
	assert.Contains(t, out, "csp=rewritten")

	// Logging 之外调用不会出错
	AddLogFields(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "k", "v")
}

func TestLogging_UnwrapSupportsFlush(t *testing.T) {
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("a"))
		require.NoError(t, http.NewResponseController(w).Flush())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, rec.Flushed)
}

func TestHealthCheck(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	h := HealthCheck(next)

	cases := []struct {
		remote string
		path   string
		want   int
	}{
		{"127.0.0.1:5000", "/healthz", http.StatusOK},
		{"[::1]:5000", "/healthz", http.StatusOK},
		{"198.51.100.4:5000", "/healthz", http.StatusForbidden},
		{"garbage", "/healthz", http.StatusForbidden},
		{"198.51.100.4:5000", "/", http.StatusAccepted},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, c.path, nil)
		req.RemoteAddr = c.remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, c.want, rec.Code, "%s %s", c.remote, c.path)
	}
}

func TestRecovery(t *testing.T) {
	logs := captureLogs(t)
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, logs.String(), "panic recovered")
}

func TestRecovery_RepanicsAbortHandler(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestWriteJSONError(t *testing.T) {
	captureLogs(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)

	WriteJSONError(rec, req, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "源站不可用")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(strings.NewReader(rec.Body.String())).Decode(&resp))
	assert.Equal(t, "UPSTREAM_UNAVAILABLE", resp.Error.Code)
	assert.Equal(t, "源站不可用", resp.Error.Message)
}

func TestPipelineMetrics_Concurrency(t *testing.T) {
	m := NewPipelineMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordRequest()
			m.RecordRewritten()
		}()
	}
	wg.Wait()
	m.RecordUpstreamError()
	m.RecordNonceError()

	s := m.GetSnapshot()
	assert.EqualValues(t, 100, s.TotalRequests)
	assert.EqualValues(t, 100, s.Rewritten)
	assert.InDelta(t, 2.0, s.GetErrorRate(), 0.0001)
	assert.Zero(t, PipelineMetricsSnapshot{}.GetErrorRate())
}
