// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービス、ハンドラー、期限切れ掃除ジョブから利用する。
type MetricsCollector interface {
	RecordAuthOperation(operation, result string)
	RecordIncidentList(count int, duration time.Duration)
	RecordIncidentListFailure()
	RecordHTTPStatus(statusCode int)
	RecordSessionsExpired(count int)
	SetEventSubscribers(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authOps          *prometheus.CounterVec
	incidentListed   prometheus.Counter
	incidentListFail prometheus.Counter
	incidentLatency  prometheus.Histogram
	httpStatus       *prometheus.CounterVec
	sessionsExpired  prometheus.Counter
	eventSubscribers prometheus.Gauge
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "civicdesk_auth_operations_total",
			Help: "認証操作の合計数（操作・結果別）",
		}, []string{"operation", "result"}),
		incidentListed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "civicdesk_incidents_listed_total",
			Help: "一覧取得で返却した通報の合計数",
		}),
		incidentListFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "civicdesk_incident_list_fail_total",
			Help: "通報一覧取得失敗の合計数",
		}),
		incidentLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "civicdesk_incident_list_latency_seconds",
			Help:    "通報一覧取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "civicdesk_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		sessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "civicdesk_sessions_expired_total",
			Help: "期限切れで削除されたセッションの合計数",
		}),
		eventSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "civicdesk_auth_event_subscribers",
			Help: "認証状態変更通知の購読者数",
		}),
	}

	reg.MustRegister(
		c.authOps,
		c.incidentListed,
		c.incidentListFail,
		c.incidentLatency,
		c.httpStatus,
		c.sessionsExpired,
		c.eventSubscribers,
	)

	return c
}

// RecordAuthOperation は認証操作の結果を記録する。resultはsuccessまたはfailure。
func (c *Collector) RecordAuthOperation(operation, result string) {
	c.authOps.WithLabelValues(operation, result).Inc()
}

// RecordIncidentList は一覧取得の成功を記録する。
func (c *Collector) RecordIncidentList(count int, duration time.Duration) {
	c.incidentListed.Add(float64(count))
	c.incidentLatency.Observe(duration.Seconds())
}

// RecordIncidentListFailure は一覧取得の失敗を記録する。
func (c *Collector) RecordIncidentListFailure() {
	c.incidentListFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSessionsExpired は期限切れセッションの削除件数を記録する。
func (c *Collector) RecordSessionsExpired(count int) {
	c.sessionsExpired.Add(float64(count))
}

// SetEventSubscribers は通知購読者数を設定する。
func (c *Collector) SetEventSubscribers(count int) {
	c.eventSubscribers.Set(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
