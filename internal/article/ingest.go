package article

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/newshub/internal/model"
	"github.com/hitoshi/newshub/internal/newsapi"
	"github.com/hitoshi/newshub/internal/security"
)

// 記事テーブルの列長
const (
	maxTitleLength  = 500
	maxURLLength    = 1000
	maxShortLength  = 200
	maxSourceIDSize = 100
)

// IngestRequest は記事取り込みのリクエスト。
type IngestRequest struct {
	Category model.Category
	Country  string
	Sources  string
	Query    string
}

// IngestResult は記事取り込みの結果。
// Goのエラーは返さず、失敗はSuccess=falseとKindで表す。
type IngestResult struct {
	Success       bool
	TotalReported int
	StoredCount   int
	Message       string
	Kind          model.ErrorKind
}

// validateIngest はI/Oの前にカテゴリと国コードを検証する。
func validateIngest(category model.Category, country string) error {
	if !category.IsFilterAll() && !category.IsKnown() {
		return model.NewInvalidCategoryError(string(category))
	}
	if country != "" && !model.IsKnownCountry(country) {
		return model.NewInvalidCountryError(country)
	}
	return nil
}

// storedCategory は保存時のカテゴリを返す。allまたは空の場合はgeneral。
func storedCategory(c model.Category) model.Category {
	if c.IsFilterAll() {
		return model.CategoryGeneral
	}
	return c
}

// SetIngestDefaults はカテゴリや国が省略された取り込みリクエストに使う既定値を設定する。
func (s *Service) SetIngestDefaults(category model.Category, country string) {
	s.defaults = IngestRequest{Category: category, Country: country}
}

// FetchAndStore はプロバイダーから記事を取得して保存する。
// URLが既に存在する記事は無視され、StoredCountには実際に挿入された件数のみが入る。
func (s *Service) FetchAndStore(ctx context.Context, req IngestRequest) IngestResult {
	if req.Category == "" {
		req.Category = s.defaults.Category
	}
	req.Country = strings.ToLower(strings.TrimSpace(req.Country))
	if req.Country == "" {
		req.Country = s.defaults.Country
	}
	if err := validateIngest(req.Category, req.Country); err != nil {
		return s.fail(err)
	}

	resp, err := s.provider.FetchArticles(ctx, newsapi.Query{
		Category: req.Category,
		Country:  req.Country,
		Sources:  strings.TrimSpace(req.Sources),
		Q:        strings.TrimSpace(req.Query),
	})
	if err != nil {
		return s.fail(err)
	}

	stored := s.storeAll(ctx, resp.Articles, storedCategory(req.Category))
	s.metrics.RecordIngestSuccess()
	s.metrics.RecordArticlesStored(stored)

	s.logger.Info("記事の取り込みが完了しました",
		slog.String("category", string(req.Category)),
		slog.String("country", req.Country),
		slog.Int("total_results", resp.TotalResults),
		slog.Int("received", len(resp.Articles)),
		slog.Int("stored", stored),
	)

	return IngestResult{
		Success:       true,
		TotalReported: resp.TotalResults,
		StoredCount:   stored,
		Message:       fmt.Sprintf("Successfully fetched and stored %d articles", stored),
	}
}

// fail はエラーを失敗結果に変換し、メトリクスとログに記録する。
func (s *Service) fail(err error) IngestResult {
	kind := KindOf(err)
	msg := err.Error()
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		msg = apiErr.Message
	}

	s.metrics.RecordIngestFailure(string(kind))
	s.logger.Warn("記事の取り込みに失敗しました",
		slog.String("kind", string(kind)),
		slog.String("error", msg),
	)

	return IngestResult{
		Message: "Failed to fetch articles: " + msg,
		Kind:    kind,
	}
}

// KindOf はエラーの種別を返す。*model.APIErrorでない場合はpersistenceとみなす。
func KindOf(err error) model.ErrorKind {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category
	}
	return model.KindPersistence
}

// storeAll は取得した記事を正規化して1件ずつ挿入し、挿入件数を返す。
// 1件の保存失敗は他の記事の保存を妨げない。
func (s *Service) storeAll(ctx context.Context, records []model.ProviderArticle, category model.Category) int {
	now := s.now()
	stored := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			s.logger.Warn("取り込みが中断されました", slog.String("error", ctx.Err().Error()))
			break
		}

		a, ok := s.toArticle(rec, category, now)
		if !ok {
			continue
		}

		inserted, err := s.repo.Insert(ctx, a)
		if err != nil {
			s.logger.Warn("記事の保存に失敗しました",
				slog.String("url", a.URL),
				slog.String("error", err.Error()),
			)
			continue
		}
		if inserted {
			stored++
		}
	}
	return stored
}

// toArticle はプロバイダーの記事を保存用に正規化する。
// タイトルまたはURLが欠けている記事、URLが長すぎる記事はfalseを返す。
func (s *Service) toArticle(rec model.ProviderArticle, category model.Category, now time.Time) (*model.Article, bool) {
	title := s.sanitizer.PlainText(rec.Title)
	link := strings.TrimSpace(rec.URL)
	if title == "" || link == "" || len(link) > maxURLLength {
		return nil, false
	}

	summary := rec.Description
	if strings.TrimSpace(summary) == "" {
		summary = rec.Content
	}
	content := rec.Content
	if strings.TrimSpace(content) == "" {
		content = rec.Description
	}

	image := security.SafeImageURL(s.guard, rec.ImageURL)
	if len(image) > maxURLLength {
		image = ""
	}

	return &model.Article{
		Title:       truncateRunes(title, maxTitleLength),
		Summary:     s.sanitizer.PlainText(summary),
		Content:     s.sanitizer.SanitizeContent(content),
		URL:         link,
		ImageURL:    image,
		PublishedAt: parsePublishedAt(rec.PublishedAt, now),
		SourceName:  truncateRunes(strings.TrimSpace(rec.SourceName), maxShortLength),
		SourceID:    truncateRunes(strings.TrimSpace(rec.SourceID), maxSourceIDSize),
		Author:      truncateRunes(s.sanitizer.PlainText(rec.Author), maxShortLength),
		Category:    category,
	}, true
}

// parsePublishedAt はRFC3339形式の日時を解析する。解析できない場合はfallbackを返す。
func parsePublishedAt(raw string, fallback time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fallback
	}
	return t
}

// truncateRunes は文字列をmax文字（rune単位）に切り詰める。
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max]))
}
