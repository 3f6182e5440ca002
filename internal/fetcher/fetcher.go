// Package fetcher は外部HTTPエンドポイントへの単発GETを提供する。
// 通信失敗はGoのエラーではなくResultに格納して返し、リトライは行わない。
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	neturl "net/url"
	"time"

	"github.com/hitoshi/newshub/internal/metrics"
)

// デフォルト値
const (
	DefaultTimeout        = 20 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultMaxBodySize    = 5 * 1024 * 1024
	DefaultUserAgent      = "NewsHub/1.0"
)

// ErrBodyTooLarge はレスポンスボディが上限を超えた場合のエラー。
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// Result はフェッチ結果を表す。
// Successは通信が成立したかどうかを示し、HTTPステータスが2xx以外でも本文を受信できればtrueとなる。
type Result struct {
	Success    bool
	StatusCode int
	Body       []byte
	Error      string
}

// Options はClientの設定。ゼロ値の項目はデフォルト値で補完される。
type Options struct {
	Timeout        time.Duration
	ConnectTimeout time.Duration
	MaxBodySize    int64
	UserAgent      string
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.MaxBodySize <= 0 {
		o.MaxBodySize = DefaultMaxBodySize
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	return o
}

// Client は単発GETを行うフェッチクライアント。
type Client struct {
	httpClient  *http.Client
	userAgent   string
	maxBodySize int64
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
}

// New は標準のトランスポートを使用するClientを生成する。
// 接続タイムアウトはnet.Dialer、全体タイムアウトはhttp.Clientで制御する。
// TLS証明書は常に検証し、リダイレクトはnet/httpのデフォルト（最大10回）に従う。
func New(opts Options, mc metrics.MetricsCollector, logger *slog.Logger) *Client {
	opts = opts.withDefaults()

	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: opts.ConnectTimeout,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
	}

	return NewWithHTTPClient(&http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
	}, opts, mc, logger)
}

// NewWithHTTPClient は任意のhttp.Clientを使用するClientを生成する。
// SSRFガード付きクライアントを差し込む場合に使用する。
func NewWithHTTPClient(hc *http.Client, opts Options, mc metrics.MetricsCollector, logger *slog.Logger) *Client {
	opts = opts.withDefaults()
	if hc.Timeout <= 0 {
		hc.Timeout = opts.Timeout
	}
	if t, ok := hc.Transport.(*http.Transport); ok && t.TLSHandshakeTimeout == 0 {
		t.TLSHandshakeTimeout = opts.ConnectTimeout
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Client{
		httpClient:  hc,
		userAgent:   opts.UserAgent,
		maxBodySize: opts.MaxBodySize,
		metrics:     mc,
		logger:      logger,
	}
}

// Fetch は指定URLへGETリクエストを1回だけ送信する。
func (c *Client) Fetch(ctx context.Context, url string) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Error: fmt.Sprintf("invalid request: %v", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordFetchLatency(time.Since(start))
		c.logger.Warn("外部リクエストに失敗しました",
			slog.String("url", redactQuery(url)),
			slog.String("error", describeError(err)),
		)
		return Result{Error: describeError(err)}
	}
	defer resp.Body.Close()

	body, err := readLimited(resp.Body, c.maxBodySize)
	duration := time.Since(start)
	c.metrics.RecordFetchLatency(duration)
	c.metrics.RecordHTTPStatus(resp.StatusCode)

	if err != nil {
		c.logger.Warn("レスポンスの読み取りに失敗しました",
			slog.String("url", redactQuery(url)),
			slog.Int("http_status", resp.StatusCode),
			slog.String("error", err.Error()),
		)
		return Result{StatusCode: resp.StatusCode, Error: err.Error()}
	}

	c.logger.Debug("外部リクエストが完了しました",
		slog.String("url", redactQuery(url)),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("bytes", len(body)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return Result{
		Success:    true,
		StatusCode: resp.StatusCode,
		Body:       body,
	}
}

// readLimited は最大maxバイトまで読み取る。上限を超えた場合はErrBodyTooLargeを返す。
func readLimited(r io.Reader, max int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > max {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}

// redactQuery はログ出力用にAPIキーを伏せたURLを返す。
func redactQuery(raw string) string {
	u, err := neturl.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	for _, key := range []string{"apiKey", "apikey", "api_key"} {
		if q.Has(key) {
			q.Set(key, "***")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// describeError はURLを含まないエラー説明を返す。
// *url.ErrorのメッセージにはAPIキー付きのURLが含まれるため、内側のエラーのみを使う。
func describeError(err error) string {
	var ue *neturl.Error
	if errors.As(err, &ue) {
		return ue.Err.Error()
	}
	return err.Error()
}
