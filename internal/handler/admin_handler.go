package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/newshub/internal/article"
	"github.com/hitoshi/newshub/internal/database"
	"github.com/hitoshi/newshub/internal/middleware"
	"github.com/hitoshi/newshub/internal/model"
	"github.com/hitoshi/newshub/internal/source"
)

// ArticleIngester は記事の取り込みを行うインターフェース。
type ArticleIngester interface {
	FetchAndStore(ctx context.Context, req article.IngestRequest) article.IngestResult
	ImportFeed(ctx context.Context, feedURL string, category model.Category) article.IngestResult
}

// ArticlePurger は古い記事を削除するインターフェース。
type ArticlePurger interface {
	Purge(ctx context.Context, days int) (int64, error)
}

// SourceSyncer はニュースソースをプロバイダーと同期するインターフェース。
type SourceSyncer interface {
	Sync(ctx context.Context) source.SyncResult
}

// SchemaVersionFunc は適用済みスキーマのバージョンを返す関数。
type SchemaVersionFunc func() (database.SchemaVersion, error)

// AdminHandler は管理者向けAPIのHTTPハンドラー。
// ルーターでRequireRoleとCSRF検証を通過したリクエストのみが到達する。
type AdminHandler struct {
	ingester      ArticleIngester
	articles      ArticleReader
	purger        ArticlePurger
	sources       SourceSyncer
	schemaVersion SchemaVersionFunc
	logger        *slog.Logger
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(
	ingester ArticleIngester,
	articles ArticleReader,
	purger ArticlePurger,
	sources SourceSyncer,
	schemaVersion SchemaVersionFunc,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		ingester:      ingester,
		articles:      articles,
		purger:        purger,
		sources:       sources,
		schemaVersion: schemaVersion,
		logger:        logger,
	}
}

type fetchRequest struct {
	Category string `json:"category"`
	Country  string `json:"country"`
	Sources  string `json:"sources"`
	Query    string `json:"query"`
}

type importFeedRequest struct {
	FeedURL  string `json:"feed_url"`
	Category string `json:"category"`
}

type purgeRequest struct {
	Days int `json:"days"`
}

// ingestResponse は取り込み結果のレスポンス。失敗時はkindを含む。
type ingestResponse struct {
	Success       bool   `json:"success"`
	TotalReported int    `json:"total_reported"`
	StoredCount   int    `json:"stored_count"`
	Message       string `json:"message"`
	Kind          string `json:"kind,omitempty"`
}

type purgeResponse struct {
	Success bool  `json:"success"`
	Deleted int64 `json:"deleted"`
}

type syncResponse struct {
	Success bool   `json:"success"`
	Updated int    `json:"updated"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

type diagnosticsResponse struct {
	Stats         statsResponse `json:"stats"`
	SchemaVersion uint          `json:"schema_version"`
	SchemaDirty   bool          `json:"schema_dirty"`
	SchemaError   string        `json:"schema_error,omitempty"`
}

// writeIngestResult は取り込み結果を書き込む。失敗時はエラー種別に応じたステータスを使う。
func writeIngestResult(w http.ResponseWriter, res article.IngestResult) {
	status := http.StatusOK
	if !res.Success {
		status = middleware.StatusForKind(res.Kind)
	}
	writeJSONStatus(w, status, ingestResponse{
		Success:       res.Success,
		TotalReported: res.TotalReported,
		StoredCount:   res.StoredCount,
		Message:       res.Message,
		Kind:          string(res.Kind),
	})
}

// FetchArticles はニュースプロバイダーから記事を取得して保存する。
// POST /api/admin/articles/fetch
func (h *AdminHandler) FetchArticles(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res := h.ingester.FetchAndStore(r.Context(), article.IngestRequest{
		Category: model.Category(req.Category),
		Country:  req.Country,
		Sources:  req.Sources,
		Query:    req.Query,
	})
	h.logger.Info("admin fetch",
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.Bool("success", res.Success),
		slog.Int("stored", res.StoredCount),
	)
	writeIngestResult(w, res)
}

// ImportFeed はRSS/Atomフィードの記事を取り込む。
// POST /api/admin/articles/import-feed
func (h *AdminHandler) ImportFeed(w http.ResponseWriter, r *http.Request) {
	var req importFeedRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeIngestResult(w, h.ingester.ImportFeed(r.Context(), req.FeedURL, model.Category(req.Category)))
}

// PurgeArticles は指定日数より前に保存された記事を削除する。
// POST /api/admin/articles/purge
func (h *AdminHandler) PurgeArticles(w http.ResponseWriter, r *http.Request) {
	var req purgeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	deleted, err := h.purger.Purge(r.Context(), req.Days)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, purgeResponse{Success: true, Deleted: deleted})
}

// SyncSources はプロバイダーのソース一覧を取得して保存する。
// POST /api/admin/sources/sync
func (h *AdminHandler) SyncSources(w http.ResponseWriter, r *http.Request) {
	res := h.sources.Sync(r.Context())
	status := http.StatusOK
	if !res.Success {
		status = middleware.StatusForKind(res.Kind)
	}
	writeJSONStatus(w, status, syncResponse{
		Success: res.Success,
		Updated: res.Updated,
		Message: res.Message,
		Kind:    string(res.Kind),
	})
}

// Diagnostics は記事の集計値とスキーマのバージョンを返す。
// スキーマの読み取りに失敗しても集計値は返す。
// GET /api/admin/diagnostics
func (h *AdminHandler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	resp := diagnosticsResponse{Stats: toStatsResponse(h.articles.Stats(r.Context()))}

	if h.schemaVersion != nil {
		v, err := h.schemaVersion()
		if err != nil {
			h.logger.Error("スキーマバージョンの取得に失敗しました", slog.String("error", err.Error()))
			resp.SchemaError = "schema version unavailable"
		} else {
			resp.SchemaVersion = v.Version
			resp.SchemaDirty = v.Dirty
		}
	}
	writeJSON(w, resp)
}
