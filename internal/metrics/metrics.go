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
// 取り込み処理・閲覧記録・認証サービスから利用する。
type MetricsCollector interface {
	RecordIngestSuccess()
	RecordIngestFailure(kind string)
	RecordArticlesStored(count int)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordViewTracked()
	RecordLogin(result string)
	RecordPurged(target string, count int64)
}

// ログイン結果のラベル値
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
)

// 一括削除対象のラベル値
const (
	PurgeArticles = "articles"
	PurgeSessions = "sessions"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	ingestSuccess  prometheus.Counter
	ingestFail     *prometheus.CounterVec
	articlesStored prometheus.Counter
	httpStatus     *prometheus.CounterVec
	fetchLatency   prometheus.Histogram
	viewsTracked   prometheus.Counter
	logins         *prometheus.CounterVec
	purged         *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ingestSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newshub_ingest_success_total",
			Help: "記事取り込み成功の合計数",
		}),
		ingestFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newshub_ingest_fail_total",
			Help: "エラー種別ごとの記事取り込み失敗数",
		}, []string{"kind"}),
		articlesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newshub_articles_stored_total",
			Help: "新規に保存された記事の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newshub_provider_http_status_total",
			Help: "プロバイダー応答のHTTPステータスコード別件数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "newshub_fetch_latency_seconds",
			Help:    "外部フェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		viewsTracked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newshub_views_tracked_total",
			Help: "記録された記事閲覧の合計数",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newshub_login_total",
			Help: "結果別のログイン試行数",
		}, []string{"result"}),
		purged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newshub_purged_total",
			Help: "保持期間切れで削除された行数",
		}, []string{"target"}),
	}

	reg.MustRegister(
		c.ingestSuccess,
		c.ingestFail,
		c.articlesStored,
		c.httpStatus,
		c.fetchLatency,
		c.viewsTracked,
		c.logins,
		c.purged,
	)

	return c
}

// RecordIngestSuccess は取り込み成功を記録する。
func (c *Collector) RecordIngestSuccess() {
	c.ingestSuccess.Inc()
}

// RecordIngestFailure はエラー種別付きで取り込み失敗を記録する。
func (c *Collector) RecordIngestFailure(kind string) {
	c.ingestFail.WithLabelValues(kind).Inc()
}

// RecordArticlesStored は新規保存された記事数を記録する。
func (c *Collector) RecordArticlesStored(count int) {
	c.articlesStored.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordViewTracked は閲覧記録を1件記録する。
func (c *Collector) RecordViewTracked() {
	c.viewsTracked.Inc()
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordPurged は一括削除で消えた行数を対象別に記録する。
func (c *Collector) RecordPurged(target string, count int64) {
	c.purged.WithLabelValues(target).Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。CLIの単発コマンドなどで使用する。
type Nop struct{}

func (Nop) RecordIngestSuccess()             {}
func (Nop) RecordIngestFailure(string)       {}
func (Nop) RecordArticlesStored(int)         {}
func (Nop) RecordHTTPStatus(int)             {}
func (Nop) RecordFetchLatency(time.Duration) {}
func (Nop) RecordViewTracked()               {}
func (Nop) RecordLogin(string)               {}
func (Nop) RecordPurged(string, int64)       {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 収集中のエラーはスキップして取得できたメトリクスだけを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
