// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証結果のラベル値。
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー層とワーカーから利用する。
type MetricsCollector interface {
	RecordLogin(method, outcome string)
	RecordRegistration(outcome string)
	RecordFollowToggle(action string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(route string, duration time.Duration)
	RecordTokensScrubbed(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins         *prometheus.CounterVec
	registrations  *prometheus.CounterVec
	followToggles  *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	tokensScrubbed prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "konnect_login_total",
			Help: "ログイン試行数（method: password/プロバイダー名, outcome: success/failure/error）",
		}, []string{"method", "outcome"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "konnect_registration_total",
			Help: "ユーザー登録試行数",
		}, []string{"outcome"}),
		followToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "konnect_follow_toggle_total",
			Help: "フォロー切り替え数（action: followed/unfollowed）",
		}, []string{"action"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "konnect_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "konnect_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		tokensScrubbed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "konnect_account_tokens_scrubbed_total",
			Help: "保持期間を過ぎて消去した外部アカウントトークンの数",
		}),
	}

	reg.MustRegister(
		c.logins,
		c.registrations,
		c.followToggles,
		c.httpStatus,
		c.requestLatency,
		c.tokensScrubbed,
	)

	return c
}

// RecordLogin はログイン試行を記録する。
func (c *Collector) RecordLogin(method, outcome string) {
	c.logins.WithLabelValues(method, outcome).Inc()
}

// RecordRegistration はユーザー登録試行を記録する。
func (c *Collector) RecordRegistration(outcome string) {
	c.registrations.WithLabelValues(outcome).Inc()
}

// RecordFollowToggle はフォロー切り替えを記録する。
func (c *Collector) RecordFollowToggle(action string) {
	c.followToggles.WithLabelValues(action).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(route string, duration time.Duration) {
	c.requestLatency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordTokensScrubbed は消去したトークン数を記録する。
func (c *Collector) RecordTokensScrubbed(count int) {
	c.tokensScrubbed.Add(float64(count))
}

// NewHTTPMiddleware はステータスコードと処理時間を記録するミドルウェアを返す。
// routeラベルにはchiのルートパターンを使い、未一致のパスは"unmatched"にまとめる。
func NewHTTPMiddleware(c MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			c.RecordHTTPStatus(status)
			c.RecordRequestLatency(route, time.Since(start))
		})
	}
}

// NopCollector は何も記録しないMetricsCollector。
type NopCollector struct{}

func (NopCollector) RecordLogin(string, string)                 {}
func (NopCollector) RecordRegistration(string)                  {}
func (NopCollector) RecordFollowToggle(string)                  {}
func (NopCollector) RecordHTTPStatus(int)                       {}
func (NopCollector) RecordRequestLatency(string, time.Duration) {}
func (NopCollector) RecordTokensScrubbed(int)                   {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
