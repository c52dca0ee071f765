package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The registry is process-global, so the disabled case must run first.
func TestMetricsLifecycle(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		require.False(t, IsEnabled())

		m := NewHTTPMetrics()
		assert.IsType(t, noopHTTPMetrics{}, m)
		assert.Nil(t, NewS3Metrics())

		rec := httptest.NewRecorder()
		NewServer(ServerConfig{}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("enabled", func(t *testing.T) {
		InitRegistry()
		InitRegistry()
		require.True(t, IsEnabled())

		m := NewHTTPMetrics()
		m.RecordRequest("GET", 200, 3*time.Millisecond)
		m.RecordRequest("GET", 404, time.Millisecond)
		m.RecordBytesSent(512)
		m.RecordRateLimited()
		m.RecordConnectionAccepted()
		m.RecordConnectionClosed()
		m.RecordConnectionRejected("queue_full")
		m.RecordConnectionForceClosed()
		m.SetActiveConnections(3)
		m.SetWorkerPool(2, 5)

		s3m := NewS3Metrics()
		require.NotNil(t, s3m)
		s3m.ObserveOperation("Stat", time.Millisecond, nil)
		s3m.ObserveOperation("ReadAll", time.Millisecond, errors.New("boom"))
		s3m.RecordBytes("read", 100)

		srv := NewServer(ServerConfig{})
		assert.Equal(t, 9090, srv.Port())

		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		body, err := io.ReadAll(rec.Body)
		require.NoError(t, err)
		text := string(body)

		assert.Contains(t, text, `dittoserve_http_requests_total{method="GET",status="200"} 1`)
		assert.Contains(t, text, `dittoserve_http_requests_total{method="GET",status="404"} 1`)
		assert.Contains(t, text, "dittoserve_http_bytes_sent_total 512")
		assert.Contains(t, text, `dittoserve_http_connections_rejected_total{reason="queue_full"} 1`)
		assert.Contains(t, text, "dittoserve_http_active_connections 3")
		assert.Contains(t, text, "dittoserve_http_queue_depth 5")
		assert.Contains(t, text, `dittoserve_s3_errors_total{operation="ReadAll"} 1`)
		assert.Contains(t, text, `dittoserve_s3_bytes_transferred_total{operation="read"} 100`)
	})
}

func TestServerAuxiliaryEndpoints(t *testing.T) {
	srv := NewServer(ServerConfig{Port: 9191})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), ":9191/metrics"))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
