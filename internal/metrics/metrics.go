// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はAPIリクエストのメトリクスを収集する。
// gateway.MetricsRecorderを実装する。
type Collector struct {
	requests       *prometheus.CounterVec
	requestLatency prometheus.Histogram
	authFailures   prometheus.Counter
	timeouts       prometheus.Counter
	syncFailures   *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drivebook_api_requests_total",
			Help: "APIリクエストの合計数（メソッド・ステータスコード別）",
		}, []string{"method", "status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "drivebook_api_request_latency_seconds",
			Help:    "APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drivebook_auth_failures_total",
			Help: "認証エラー応答（401/403）の合計数",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drivebook_request_timeouts_total",
			Help: "タイムアウトで中断されたリクエストの合計数",
		}),
		syncFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drivebook_sync_failures_total",
			Help: "ストア同期の失敗数（ストア別）",
		}, []string{"store"}),
	}

	reg.MustRegister(
		c.requests,
		c.requestLatency,
		c.authFailures,
		c.timeouts,
		c.syncFailures,
	)

	return c
}

// RecordRequest はAPIリクエストの完了を記録する。
func (c *Collector) RecordRequest(method string, status int, duration time.Duration) {
	c.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.requestLatency.Observe(duration.Seconds())
}

// RecordAuthFailure は認証エラー応答を記録する。
func (c *Collector) RecordAuthFailure() {
	c.authFailures.Inc()
}

// RecordTimeout はタイムアウトによるリクエスト中断を記録する。
func (c *Collector) RecordTimeout() {
	c.timeouts.Inc()
}

// RecordSyncFailure はストア同期の失敗を記録する。
func (c *Collector) RecordSyncFailure(store string) {
	c.syncFailures.WithLabelValues(store).Inc()
}

// Handler は指定されたレジストリのメトリクスを公開するHTTPハンドラーを返す。
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
