// Package article は記事の取り込みと閲覧系の読み取り機能を提供する。
package article

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/newshub/internal/fetcher"
	"github.com/hitoshi/newshub/internal/metrics"
	"github.com/hitoshi/newshub/internal/model"
	"github.com/hitoshi/newshub/internal/newsapi"
	"github.com/hitoshi/newshub/internal/repository"
	"github.com/hitoshi/newshub/internal/security"
)

// ページングのデフォルト値
const (
	DefaultPageSize = 12
	MaxPageSize     = 100
	// trendingWindow はトレンド記事の対象期間。
	trendingWindow = 24 * time.Hour
)

// ArticleProvider はニュースプロバイダーから記事を取得するインターフェース。
type ArticleProvider interface {
	FetchArticles(ctx context.Context, q newsapi.Query) (*newsapi.ArticlesResult, error)
}

// FeedFetcher はRSS/Atomフィードを取得するインターフェース。
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) fetcher.Result
}

// Service は記事の取り込み・一覧・集計を行うサービス。
type Service struct {
	repo      repository.ArticleRepository
	provider  ArticleProvider
	feeds     FeedFetcher
	guard     security.URLValidator
	sanitizer security.Sanitizer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	pageSize  int
	defaults  IngestRequest
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// pageSizeが0以下の場合はDefaultPageSizeを使用する。
func NewService(
	repo repository.ArticleRepository,
	provider ArticleProvider,
	feeds FeedFetcher,
	guard security.URLValidator,
	sanitizer security.Sanitizer,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
	pageSize int,
) *Service {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		repo:      repo,
		provider:  provider,
		feeds:     feeds,
		guard:     guard,
		sanitizer: sanitizer,
		metrics:   mc,
		logger:    logger,
		pageSize:  pageSize,
		now:       time.Now,
	}
}

// ListQuery は記事一覧の検索条件。
type ListQuery struct {
	Category model.Category
	Search   string
	Page     int
	PageSize int
}

// PageResult はページ付き記事一覧の結果。
type PageResult struct {
	Articles   []model.Article
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// normalize はページ番号とページサイズを有効範囲に丸める。
func (s *Service) normalize(q ListQuery) ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = s.pageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	return q
}

func filterOf(q ListQuery) repository.ArticleFilter {
	return repository.ArticleFilter{Category: q.Category, Search: q.Search}
}

// List は条件に一致する記事を公開日時の新しい順に返す。
// 永続化エラーはログに記録し、空の一覧を返す。
func (s *Service) List(ctx context.Context, q ListQuery) []model.Article {
	q = s.normalize(q)
	articles, err := s.repo.List(ctx, filterOf(q), q.PageSize, (q.Page-1)*q.PageSize)
	if err != nil {
		s.logReadError("記事一覧の取得に失敗しました", err)
		return []model.Article{}
	}
	return nonNil(articles)
}

// Count は条件に一致する記事数を返す。エラー時は0を返す。
func (s *Service) Count(ctx context.Context, category model.Category, search string) int {
	n, err := s.repo.Count(ctx, repository.ArticleFilter{Category: category, Search: search})
	if err != nil {
		s.logReadError("記事数の取得に失敗しました", err)
		return 0
	}
	return n
}

// Page は記事一覧と総件数・総ページ数をまとめて返す。
func (s *Service) Page(ctx context.Context, q ListQuery) PageResult {
	q = s.normalize(q)
	total := s.Count(ctx, q.Category, q.Search)
	return PageResult{
		Articles:   s.List(ctx, q),
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: (total + q.PageSize - 1) / q.PageSize,
	}
}

// Get は指定IDの記事を返す。
func (s *Service) Get(ctx context.Context, id int64) (*model.Article, error) {
	if id < 1 {
		return nil, model.NewInvalidParameterError("id", "must be a positive integer")
	}
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		s.logReadError("記事の取得に失敗しました", err)
		return nil, model.NewDatabaseError()
	}
	if a == nil {
		return nil, model.NewArticleNotFoundError(id)
	}
	return a, nil
}

// Trending は直近24時間に公開された記事を閲覧数の多い順に返す。
// 閲覧数が同じ場合は公開日時の新しい順。
func (s *Service) Trending(ctx context.Context, limit int) []model.Article {
	since := s.now().Add(-trendingWindow)
	articles, err := s.repo.ListTrending(ctx, since, clampLimit(limit))
	if err != nil {
		s.logReadError("トレンド記事の取得に失敗しました", err)
		return []model.Article{}
	}
	return nonNil(articles)
}

// Popular は全期間の閲覧数上位の記事を返す。
func (s *Service) Popular(ctx context.Context, limit int) []model.Article {
	articles, err := s.repo.ListPopular(ctx, clampLimit(limit))
	if err != nil {
		s.logReadError("人気記事の取得に失敗しました", err)
		return []model.Article{}
	}
	return nonNil(articles)
}

// DailyPicks はdayのUTC暦日に公開された記事を閲覧数の多い順に返す。
func (s *Service) DailyPicks(ctx context.Context, day time.Time, limit int) []model.Article {
	d := day.UTC()
	from := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	articles, err := s.repo.ListPublishedBetween(ctx, from, to, clampLimit(limit))
	if err != nil {
		s.logReadError("本日のピックアップの取得に失敗しました", err)
		return []model.Article{}
	}
	return nonNil(articles)
}

// LatestByCategory はカテゴリごとに最新の記事をlimit件ずつ返す。
// 記事が1件もないカテゴリは結果に含めない。
func (s *Service) LatestByCategory(ctx context.Context, limit int) map[model.Category][]model.Article {
	result := make(map[model.Category][]model.Article)
	for _, c := range model.Categories {
		articles, err := s.repo.ListLatestByCategory(ctx, c, clampLimit(limit))
		if err != nil {
			s.logReadError("カテゴリ別最新記事の取得に失敗しました", err, slog.String("category", string(c)))
			continue
		}
		if len(articles) > 0 {
			result[c] = articles
		}
	}
	return result
}

// Stats は記事の集計値を返す。取得に失敗した場合はゼロ値の集計を返す。
func (s *Service) Stats(ctx context.Context) model.Stats {
	st, err := s.repo.Stats(ctx, s.now().Add(-trendingWindow))
	if err != nil || st == nil {
		if err != nil {
			s.logReadError("統計情報の取得に失敗しました", err)
		}
		return model.Stats{ByCategory: []model.CategoryCount{}}
	}
	if st.ByCategory == nil {
		st.ByCategory = []model.CategoryCount{}
	}
	return *st
}

// Categories は既知のカテゴリ一覧を表示順で返す。
func (s *Service) Categories() []model.Category {
	out := make([]model.Category, len(model.Categories))
	copy(out, model.Categories)
	return out
}

func (s *Service) logReadError(msg string, err error, attrs ...any) {
	args := append([]any{slog.String("error", err.Error())}, attrs...)
	s.logger.Error(msg, args...)
}

// clampLimit は件数指定を1〜MaxPageSizeに丸める。
func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

func nonNil(articles []model.Article) []model.Article {
	if articles == nil {
		return []model.Article{}
	}
	return articles
}
