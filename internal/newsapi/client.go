// Package newsapi はNewsAPI.org形式のニュースプロバイダーAPIクライアントを提供する。
// 見出し・全文検索・ソース一覧の各エンドポイントへのURL構築とレスポンスの解釈を行う。
package newsapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/hitoshi/newshub/internal/fetcher"
	"github.com/hitoshi/newshub/internal/model"
)

const (
	// DefaultBaseURL はプロバイダーAPIのベースURL。
	DefaultBaseURL = "https://newsapi.org/v2/"
	// pageSize は1リクエストで取得する最大記事数。
	pageSize = 100
)

// Fetcher はURLへの単発GETを行うインターフェース。
type Fetcher interface {
	Fetch(ctx context.Context, url string) fetcher.Result
}

// Query は記事取得リクエストのパラメータ。
// Qが空でない場合は全文検索エンドポイント、それ以外は見出しエンドポイントを使用する。
type Query struct {
	Category model.Category
	Country  string
	Sources  string
	Q        string
}

// ArticlesResult は記事取得の結果。
type ArticlesResult struct {
	TotalResults int
	Articles     []model.ProviderArticle
}

// wireSource はレスポンス内の記事ソース。
type wireSource struct {
	ID   *string `json:"id"`
	Name string  `json:"name"`
}

// wireArticle はレスポンス内の記事。
type wireArticle struct {
	Source      wireSource `json:"source"`
	Author      *string    `json:"author"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	URL         string     `json:"url"`
	URLToImage  *string    `json:"urlToImage"`
	PublishedAt string     `json:"publishedAt"`
	Content     *string    `json:"content"`
}

// articlesResponse は記事エンドポイントのレスポンス。
// エラー時は status="error" と code, message を含む。
type articlesResponse struct {
	Status       string        `json:"status"`
	Code         string        `json:"code"`
	Message      string        `json:"message"`
	TotalResults int           `json:"totalResults"`
	Articles     []wireArticle `json:"articles"`
}

// wireSourceDetail はソース一覧エンドポイントの1件。
type wireSourceDetail struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Category    string `json:"category"`
	Language    string `json:"language"`
	Country     string `json:"country"`
}

// sourcesResponse はソース一覧エンドポイントのレスポンス。
type sourcesResponse struct {
	Status  string             `json:"status"`
	Code    string             `json:"code"`
	Message string             `json:"message"`
	Sources []wireSourceDetail `json:"sources"`
}

// Client はニュースプロバイダーAPIのクライアント。
type Client struct {
	fetcher Fetcher
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLが空の場合はDefaultBaseURLを使用する。
func NewClient(f Fetcher, apiKey, baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		fetcher: f,
		apiKey:  apiKey,
		baseURL: baseURL,
		logger:  logger,
	}
}

// HasAPIKey はAPIキーが設定されているかを返す。
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

// ArticlesURL は記事取得リクエストのURLを構築する。
// sourcesとcountryはプロバイダー側で併用できないため、sources指定時はcountryを除外する。
func (c *Client) ArticlesURL(q Query) string {
	params := url.Values{}
	params.Set("apiKey", c.apiKey)
	params.Set("pageSize", strconv.Itoa(pageSize))

	endpoint := "top-headlines"
	if q.Q != "" {
		endpoint = "everything"
		params.Set("q", q.Q)
		params.Set("sortBy", "publishedAt")
	} else {
		if !q.Category.IsFilterAll() {
			params.Set("category", string(q.Category))
		}
		if q.Country != "" {
			params.Set("country", q.Country)
		}
	}

	if q.Sources != "" {
		params.Set("sources", q.Sources)
		params.Del("country")
	}

	return c.baseURL + endpoint + "?" + params.Encode()
}

// SourcesURL はソース一覧取得リクエストのURLを構築する。
func (c *Client) SourcesURL() string {
	params := url.Values{}
	params.Set("apiKey", c.apiKey)
	return c.baseURL + "sources?" + params.Encode()
}

// FetchArticles はプロバイダーから記事を取得する。
// 返すエラーは全て*model.APIErrorで、Categoryにエラー種別を持つ。
func (c *Client) FetchArticles(ctx context.Context, q Query) (*ArticlesResult, error) {
	if !c.HasAPIKey() {
		return nil, model.NewAPIKeyMissingError()
	}

	var resp articlesResponse
	if err := c.get(ctx, c.ArticlesURL(q), &resp); err != nil {
		return nil, err
	}
	if resp.Status != "ok" {
		c.logger.Warn("プロバイダーがエラーを返しました",
			slog.String("code", resp.Code),
			slog.String("message", resp.Message),
		)
		return nil, model.NewProviderError(resp.Message)
	}

	result := &ArticlesResult{
		TotalResults: resp.TotalResults,
		Articles:     make([]model.ProviderArticle, 0, len(resp.Articles)),
	}
	for _, a := range resp.Articles {
		result.Articles = append(result.Articles, toProviderArticle(a))
	}
	return result, nil
}

// FetchSources はプロバイダーからソース一覧を取得する。
func (c *Client) FetchSources(ctx context.Context) ([]model.Source, error) {
	if !c.HasAPIKey() {
		return nil, model.NewAPIKeyMissingError()
	}

	var resp sourcesResponse
	if err := c.get(ctx, c.SourcesURL(), &resp); err != nil {
		return nil, err
	}
	if resp.Status != "ok" {
		c.logger.Warn("プロバイダーがエラーを返しました",
			slog.String("code", resp.Code),
			slog.String("message", resp.Message),
		)
		return nil, model.NewProviderError(resp.Message)
	}

	sources := make([]model.Source, 0, len(resp.Sources))
	for _, s := range resp.Sources {
		if s.ID == "" || s.Name == "" {
			continue
		}
		sources = append(sources, model.Source{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			URL:         s.URL,
			Category:    s.Category,
			Language:    s.Language,
			Country:     s.Country,
		})
	}
	return sources, nil
}

// get はURLをフェッチしてJSONをデコードする。
// 2xx以外のステータスでも本文にプロバイダーのエラーJSONがあればデコードに成功させ、
// 呼び出し元がstatusフィールドで判定する。
func (c *Client) get(ctx context.Context, rawURL string, v any) error {
	res := c.fetcher.Fetch(ctx, rawURL)
	if !res.Success {
		return model.NewFetchFailedError(res.Error, res.StatusCode)
	}

	if err := json.Unmarshal(res.Body, v); err != nil {
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return model.NewFetchFailedError("unexpected response body", res.StatusCode)
		}
		c.logger.Error("プロバイダーのレスポンスのパースに失敗しました",
			slog.Int("http_status", res.StatusCode),
			slog.String("error", err.Error()),
		)
		return model.NewParseFailedError(err.Error())
	}
	return nil
}

func toProviderArticle(a wireArticle) model.ProviderArticle {
	return model.ProviderArticle{
		Title:       strings.TrimSpace(a.Title),
		Description: deref(a.Description),
		Content:     deref(a.Content),
		URL:         strings.TrimSpace(a.URL),
		ImageURL:    deref(a.URLToImage),
		PublishedAt: a.PublishedAt,
		Author:      deref(a.Author),
		SourceID:    deref(a.Source.ID),
		SourceName:  a.Source.Name,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
