package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/drivebook/internal/gateway"
)

// TestCollector_RecordsRequests はリクエストメトリクスの記録と公開を検証する。
func TestCollector_RecordsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequest(http.MethodGet, 200, 120*time.Millisecond)
	c.RecordRequest(http.MethodGet, 200, 80*time.Millisecond)
	c.RecordRequest(http.MethodPost, 500, 30*time.Millisecond)
	c.RecordAuthFailure()
	c.RecordTimeout()
	c.RecordSyncFailure("registrations")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	wantLines := []string{
		`drivebook_api_requests_total{method="GET",status_code="200"} 2`,
		`drivebook_api_requests_total{method="POST",status_code="500"} 1`,
		`drivebook_auth_failures_total 1`,
		`drivebook_request_timeouts_total 1`,
		`drivebook_sync_failures_total{store="registrations"} 1`,
		`drivebook_api_request_latency_seconds_count 3`,
	}
	for _, want := range wantLines {
		if !strings.Contains(bodyStr, want) {
			t.Errorf("metrics output should contain %q", want)
		}
	}
}

// TestCollector_ImplementsMetricsRecorder はgateway.MetricsRecorderへの適合を検証する。
func TestCollector_ImplementsMetricsRecorder(t *testing.T) {
	var _ gateway.MetricsRecorder = NewCollector(prometheus.NewRegistry())
}
