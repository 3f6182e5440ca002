package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/newshub/internal/article"
	"github.com/hitoshi/newshub/internal/model"
)

// 一覧系エンドポイントのデフォルト件数
const (
	defaultTrendingLimit   = 5
	defaultPopularLimit    = 5
	defaultLatestLimit     = 3
	defaultDailyPicksLimit = 6
)

// ArticleReader は記事の閲覧系ハンドラーが必要とするサービスインターフェース。
type ArticleReader interface {
	Page(ctx context.Context, q article.ListQuery) article.PageResult
	Get(ctx context.Context, id int64) (*model.Article, error)
	Trending(ctx context.Context, limit int) []model.Article
	Popular(ctx context.Context, limit int) []model.Article
	DailyPicks(ctx context.Context, day time.Time, limit int) []model.Article
	LatestByCategory(ctx context.Context, limit int) map[model.Category][]model.Article
	Stats(ctx context.Context) model.Stats
	Categories() []model.Category
}

// EngagementTracker は閲覧数・いいねを記録するインターフェース。
type EngagementTracker interface {
	TrackView(ctx context.Context, articleID int64) bool
	Like(ctx context.Context, articleID int64) bool
}

// SourceLister はニュースソース一覧を返すインターフェース。
type SourceLister interface {
	List(ctx context.Context) []model.Source
}

// NewsHandler は公開ニュースAPIのHTTPハンドラー。
type NewsHandler struct {
	articles ArticleReader
	tracker  EngagementTracker
	sources  SourceLister
	now      func() time.Time
}

// NewNewsHandler はNewsHandlerを生成する。
func NewNewsHandler(articles ArticleReader, tracker EngagementTracker, sources SourceLister) *NewsHandler {
	return &NewsHandler{
		articles: articles,
		tracker:  tracker,
		sources:  sources,
		now:      time.Now,
	}
}

type categoryResponse struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type sourceResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	Category    string `json:"category,omitempty"`
	Language    string `json:"language,omitempty"`
	Country     string `json:"country,omitempty"`
}

type categoryCountResponse struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

type statsResponse struct {
	TotalArticles  int                     `json:"total_articles"`
	RecentArticles int                     `json:"recent_articles"`
	TotalViews     int                     `json:"total_views"`
	ByCategory     []categoryCountResponse `json:"by_category"`
}

func toStatsResponse(s model.Stats) statsResponse {
	resp := statsResponse{
		TotalArticles:  s.TotalArticles,
		RecentArticles: s.RecentArticles,
		TotalViews:     s.TotalViews,
		ByCategory:     make([]categoryCountResponse, 0, len(s.ByCategory)),
	}
	for _, c := range s.ByCategory {
		resp.ByCategory = append(resp.ByCategory, categoryCountResponse{Category: string(c.Category), Count: c.Count})
	}
	return resp
}

// Categories はカテゴリ一覧を返す。
// GET /api/categories
func (h *NewsHandler) Categories(w http.ResponseWriter, r *http.Request) {
	cats := h.articles.Categories()
	resp := make([]categoryResponse, len(cats))
	for i, c := range cats {
		resp[i] = categoryResponse{ID: string(c), Label: c.Label()}
	}
	writeJSON(w, resp)
}

// ListArticles はカテゴリ・検索語で絞り込んだ記事一覧をページ単位で返す。
// 未知のカテゴリは400を返す。
// GET /api/articles?category=&search=&page=&page_size=
func (h *NewsHandler) ListArticles(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	pageSize, err := queryInt(r, "page_size", 0)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	q := r.URL.Query()
	category := model.Category(q.Get("category"))
	if !category.IsFilterAll() && !category.IsKnown() {
		handleServiceError(w, r, model.NewInvalidCategoryError(string(category)))
		return
	}

	result := h.articles.Page(r.Context(), article.ListQuery{
		Category: category,
		Search:   q.Get("search"),
		Page:     page,
		PageSize: pageSize,
	})

	writeJSON(w, pageResponse{
		Articles:   toArticleResponses(result.Articles),
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	})
}

// GetArticle は記事詳細を返す。
// GET /api/articles/{id}
func (h *NewsHandler) GetArticle(w http.ResponseWriter, r *http.Request) {
	id, err := articleIDParam(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	a, err := h.articles.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, toArticleResponse(*a, true))
}

// Trending は直近24時間の閲覧数上位の記事を返す。
// GET /api/articles/trending?limit=
func (h *NewsHandler) Trending(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultTrendingLimit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, toArticleResponses(h.articles.Trending(r.Context(), limit)))
}

// Popular は累計閲覧数上位の記事を返す。
// GET /api/articles/popular?limit=
func (h *NewsHandler) Popular(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPopularLimit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, toArticleResponses(h.articles.Popular(r.Context(), limit)))
}

// LatestByCategory はカテゴリごとの最新記事を返す。記事の無いカテゴリは含まない。
// GET /api/articles/latest-by-category?limit=
func (h *NewsHandler) LatestByCategory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultLatestLimit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	groups := h.articles.LatestByCategory(r.Context(), limit)
	resp := make(map[string][]articleResponse, len(groups))
	for cat, articles := range groups {
		resp[string(cat)] = toArticleResponses(articles)
	}
	writeJSON(w, resp)
}

// DailyPicks は指定日（UTC、デフォルトは当日）に公開された記事を返す。
// GET /api/articles/daily-picks?date=YYYY-MM-DD&limit=
func (h *NewsHandler) DailyPicks(w http.ResponseWriter, r *http.Request) {
	day, err := queryDate(r, "date", h.now().UTC())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", defaultDailyPicksLimit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, toArticleResponses(h.articles.DailyPicks(r.Context(), day, limit)))
}

// TrackView は記事の閲覧を記録する。失敗してもステータスは200で、successで結果を返す。
// POST /api/articles/{id}/view
func (h *NewsHandler) TrackView(w http.ResponseWriter, r *http.Request) {
	id, err := articleIDParam(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, successResponse{Success: h.tracker.TrackView(r.Context(), id)})
}

// Like は記事のいいね数を加算する。
// POST /api/articles/{id}/like
func (h *NewsHandler) Like(w http.ResponseWriter, r *http.Request) {
	id, err := articleIDParam(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, successResponse{Success: h.tracker.Like(r.Context(), id)})
}

// Sources は保存済みのニュースソース一覧を返す。
// GET /api/sources
func (h *NewsHandler) Sources(w http.ResponseWriter, r *http.Request) {
	sources := h.sources.List(r.Context())
	resp := make([]sourceResponse, len(sources))
	for i, s := range sources {
		resp[i] = sourceResponse{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			URL:         s.URL,
			Category:    s.Category,
			Language:    s.Language,
			Country:     s.Country,
		}
	}
	writeJSON(w, resp)
}

// Stats は記事の集計値を返す。
// GET /api/stats
func (h *NewsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, toStatsResponse(h.articles.Stats(r.Context())))
}
