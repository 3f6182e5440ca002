package newsapi

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/newshub/internal/fetcher"
	"github.com/hitoshi/newshub/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// mockFetcher はFetcherのモック。
type mockFetcher struct {
	fetchFn func(ctx context.Context, url string) fetcher.Result
	urls    []string
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) fetcher.Result {
	m.urls = append(m.urls, url)
	return m.fetchFn(ctx, url)
}

func okFetcher(body string) *mockFetcher {
	return &mockFetcher{fetchFn: func(ctx context.Context, url string) fetcher.Result {
		return fetcher.Result{Success: true, StatusCode: http.StatusOK, Body: []byte(body)}
	}}
}

func parseQuery(t *testing.T, raw string) (string, url.Values) {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q) error = %v", raw, err)
	}
	return u.Path, u.Query()
}

func TestNewClient_DefaultsBaseURL(t *testing.T) {
	var buf bytes.Buffer
	c := NewClient(okFetcher("{}"), "key", "", newTestLogger(&buf))
	if c.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultBaseURL)
	}

	c = NewClient(okFetcher("{}"), "key", "https://example.com/v2", newTestLogger(&buf))
	if c.baseURL != "https://example.com/v2/" {
		t.Errorf("末尾スラッシュが補完されていない: %q", c.baseURL)
	}
}

func TestArticlesURL(t *testing.T) {
	var buf bytes.Buffer
	c := NewClient(nil, "secret", "https://newsapi.org/v2/", newTestLogger(&buf))

	tests := []struct {
		name       string
		query      Query
		wantPath   string
		wantParams map[string]string
		absent     []string
	}{
		{
			name:     "見出し（カテゴリと国）",
			query:    Query{Category: model.CategoryBusiness, Country: "us"},
			wantPath: "/v2/top-headlines",
			wantParams: map[string]string{
				"category": "business", "country": "us", "pageSize": "100", "apiKey": "secret",
			},
			absent: []string{"q", "sortBy", "sources"},
		},
		{
			name:       "allはカテゴリを省略する",
			query:      Query{Category: model.CategoryAll, Country: "gb"},
			wantPath:   "/v2/top-headlines",
			wantParams: map[string]string{"country": "gb"},
			absent:     []string{"category"},
		},
		{
			name:       "国が空なら省略する",
			query:      Query{Category: model.CategoryHealth},
			wantPath:   "/v2/top-headlines",
			wantParams: map[string]string{"category": "health"},
			absent:     []string{"country"},
		},
		{
			name:       "検索語がある場合は全文検索",
			query:      Query{Q: "climate change", Category: model.CategoryScience, Country: "us"},
			wantPath:   "/v2/everything",
			wantParams: map[string]string{"q": "climate change", "sortBy": "publishedAt", "pageSize": "100"},
			absent:     []string{"category", "country"},
		},
		{
			name:       "sources指定時はcountryを除外する",
			query:      Query{Category: model.CategoryAll, Country: "us", Sources: "bbc-news,cnn"},
			wantPath:   "/v2/top-headlines",
			wantParams: map[string]string{"sources": "bbc-news,cnn"},
			absent:     []string{"country"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, params := parseQuery(t, c.ArticlesURL(tt.query))
			if path != tt.wantPath {
				t.Errorf("path = %q, want %q", path, tt.wantPath)
			}
			for k, v := range tt.wantParams {
				if got := params.Get(k); got != v {
					t.Errorf("param %s = %q, want %q", k, got, v)
				}
			}
			for _, k := range tt.absent {
				if params.Has(k) {
					t.Errorf("param %s should be absent, got %q", k, params.Get(k))
				}
			}
		})
	}
}

func TestFetchArticles_Success(t *testing.T) {
	body := `{
		"status": "ok",
		"totalResults": 2,
		"articles": [
			{"source": {"id": "bbc-news", "name": "BBC News"}, "author": "Jane", "title": " Headline ",
			 "description": "Desc", "url": "https://bbc.co.uk/a", "urlToImage": "https://img/a.jpg",
			 "publishedAt": "2024-03-10T08:00:00Z", "content": "Body"},
			{"source": {"id": null, "name": "Blog"}, "author": null, "title": "Second",
			 "description": null, "url": "https://blog.example/b", "urlToImage": null,
			 "publishedAt": "", "content": null}
		]
	}`
	mf := okFetcher(body)
	var buf bytes.Buffer
	c := NewClient(mf, "key", "", newTestLogger(&buf))

	res, err := c.FetchArticles(context.Background(), Query{Category: model.CategoryGeneral, Country: "us"})
	if err != nil {
		t.Fatalf("FetchArticles() error = %v", err)
	}
	if res.TotalResults != 2 || len(res.Articles) != 2 {
		t.Fatalf("result = %+v", res)
	}

	first := res.Articles[0]
	if first.Title != "Headline" || first.SourceID != "bbc-news" || first.SourceName != "BBC News" ||
		first.Author != "Jane" || first.ImageURL != "https://img/a.jpg" || first.Content != "Body" {
		t.Errorf("first = %+v", first)
	}

	second := res.Articles[1]
	if second.SourceID != "" || second.Author != "" || second.Description != "" || second.ImageURL != "" {
		t.Errorf("nullフィールドは空文字列になるべき: %+v", second)
	}

	if len(mf.urls) != 1 || !strings.Contains(mf.urls[0], "top-headlines") {
		t.Errorf("fetched urls = %v", mf.urls)
	}
}

func TestFetchArticles_MissingAPIKey_FailsFast(t *testing.T) {
	mf := okFetcher(`{"status":"ok"}`)
	var buf bytes.Buffer
	c := NewClient(mf, "", "", newTestLogger(&buf))

	_, err := c.FetchArticles(context.Background(), Query{})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *model.APIError", err)
	}
	if apiErr.Category != model.KindConfig {
		t.Errorf("Category = %q, want config", apiErr.Category)
	}
	if len(mf.urls) != 0 {
		t.Error("APIキー未設定時はリクエストを送信してはならない")
	}
}

func TestFetchArticles_TransportFailure(t *testing.T) {
	mf := &mockFetcher{fetchFn: func(ctx context.Context, url string) fetcher.Result {
		return fetcher.Result{Error: "dial tcp: i/o timeout"}
	}}
	var buf bytes.Buffer
	c := NewClient(mf, "key", "", newTestLogger(&buf))

	_, err := c.FetchArticles(context.Background(), Query{})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *model.APIError", err)
	}
	if apiErr.Category != model.KindTransport {
		t.Errorf("Category = %q, want transport", apiErr.Category)
	}
	if apiErr.Message != "HTTP request failed: dial tcp: i/o timeout (HTTP 0)" {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

// TestFetchArticles_ProviderError は2xx以外でもプロバイダーのエラーJSONを解釈することを検証する。
func TestFetchArticles_ProviderError(t *testing.T) {
	mf := &mockFetcher{fetchFn: func(ctx context.Context, url string) fetcher.Result {
		return fetcher.Result{
			Success:    true,
			StatusCode: http.StatusUnauthorized,
			Body:       []byte(`{"status":"error","code":"apiKeyInvalid","message":"Your API key is invalid or incorrect."}`),
		}
	}}
	var buf bytes.Buffer
	c := NewClient(mf, "bad", "", newTestLogger(&buf))

	_, err := c.FetchArticles(context.Background(), Query{})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *model.APIError", err)
	}
	if apiErr.Category != model.KindProvider {
		t.Errorf("Category = %q, want provider", apiErr.Category)
	}
	if apiErr.Message != "API Error: Your API key is invalid or incorrect." {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestFetchArticles_ProviderErrorWithoutMessage(t *testing.T) {
	var buf bytes.Buffer
	c := NewClient(okFetcher(`{"status":"error"}`), "key", "", newTestLogger(&buf))

	_, err := c.FetchArticles(context.Background(), Query{})
	if err == nil || !strings.Contains(err.Error(), "Unknown API error") {
		t.Errorf("error = %v, want Unknown API error", err)
	}
}

func TestFetchArticles_InvalidJSON(t *testing.T) {
	var buf bytes.Buffer
	c := NewClient(okFetcher(`<html>not json</html>`), "key", "", newTestLogger(&buf))

	_, err := c.FetchArticles(context.Background(), Query{})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *model.APIError", err)
	}
	if apiErr.Code != model.ErrCodeParseFailed || apiErr.Category != model.KindProvider {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if !strings.Contains(buf.String(), "パースに失敗") {
		t.Errorf("パース失敗がログに記録されていない: %s", buf.String())
	}
}

func TestFetchArticles_Non2xxWithoutJSON(t *testing.T) {
	mf := &mockFetcher{fetchFn: func(ctx context.Context, url string) fetcher.Result {
		return fetcher.Result{Success: true, StatusCode: http.StatusBadGateway, Body: []byte("Bad Gateway")}
	}}
	var buf bytes.Buffer
	c := NewClient(mf, "key", "", newTestLogger(&buf))

	_, err := c.FetchArticles(context.Background(), Query{})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *model.APIError", err)
	}
	if apiErr.Category != model.KindTransport || !strings.Contains(apiErr.Message, "HTTP 502") {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestFetchSources(t *testing.T) {
	body := `{"status":"ok","sources":[
		{"id":"abc-news","name":"ABC News","description":"d","url":"https://abcnews.go.com","category":"general","language":"en","country":"us"},
		{"id":"","name":"No ID"}
	]}`
	mf := okFetcher(body)
	var buf bytes.Buffer
	c := NewClient(mf, "key", "", newTestLogger(&buf))

	sources, err := c.FetchSources(context.Background())
	if err != nil {
		t.Fatalf("FetchSources() error = %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("len = %d, want 1 (IDなしは除外)", len(sources))
	}
	if sources[0].ID != "abc-news" || sources[0].Country != "us" || sources[0].Language != "en" {
		t.Errorf("source = %+v", sources[0])
	}
	if path, _ := parseQuery(t, mf.urls[0]); path != "/v2/sources" {
		t.Errorf("path = %q, want /v2/sources", path)
	}
}

func TestFetchSources_MissingAPIKey(t *testing.T) {
	var buf bytes.Buffer
	c := NewClient(okFetcher(`{}`), "", "", newTestLogger(&buf))
	if _, err := c.FetchSources(context.Background()); err == nil {
		t.Fatal("APIキー未設定時はエラーを返すべき")
	}
}

// TestFetchArticles_WithHTTPServer は実際のフェッチクライアントと組み合わせた動作を検証する。
func TestFetchArticles_WithHTTPServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/everything" {
			t.Errorf("path = %s, want /v2/everything", r.URL.Path)
		}
		if r.URL.Query().Get("q") != "golang" {
			t.Errorf("q = %s, want golang", r.URL.Query().Get("q"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","totalResults":1,"articles":[{"source":{"name":"Go Blog"},"title":"Go 1.25","url":"https://go.dev/blog/go1.25"}]}`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	f := fetcher.New(fetcher.Options{}, nil, logger)
	c := NewClient(f, "key", server.URL+"/v2/", logger)

	res, err := c.FetchArticles(context.Background(), Query{Q: "golang"})
	if err != nil {
		t.Fatalf("FetchArticles() error = %v", err)
	}
	if len(res.Articles) != 1 || res.Articles[0].Title != "Go 1.25" {
		t.Errorf("result = %+v", res)
	}
}
