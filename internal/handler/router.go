package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/newshub/internal/metrics"
	"github.com/hitoshi/newshub/internal/middleware"
	"github.com/hitoshi/newshub/internal/model"
)

// Pinger はヘルスチェックでデータベースの疎通を確認するインターフェース。*sql.DBが実装する。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	SessionResolver   middleware.SessionResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// ヘルスチェック・メトリクス
	HealthChecker Pinger
	Gatherer      prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 記事・ソース
	Articles ArticleReader
	Ingester ArticleIngester
	Tracker  EngagementTracker
	Sources  SourceLister

	// 管理
	Purger        ArticlePurger
	SourceSyncer  SourceSyncer
	SchemaVersion SchemaVersionFunc
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → SecurityHeaders → CORS → Session → Logging
//
// 管理APIはさらに RequireRole(admin, editor) → CSRF → RateLimit(General) を通過する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSessionMiddleware(deps.SessionResolver))
	r.Use(middleware.NewLoggingMiddleware(logger))

	newsHandler := NewNewsHandler(deps.Articles, deps.Tracker, deps.Sources)
	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	adminHandler := NewAdminHandler(deps.Ingester, deps.Articles, deps.Purger, deps.SourceSyncer, deps.SchemaVersion, logger)

	// --- 公開ルート ---

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	r.Get("/api/categories", newsHandler.Categories)
	r.Route("/api/articles", func(r chi.Router) {
		r.Get("/", newsHandler.ListArticles)
		r.Get("/trending", newsHandler.Trending)
		r.Get("/popular", newsHandler.Popular)
		r.Get("/latest-by-category", newsHandler.LatestByCategory)
		r.Get("/daily-picks", newsHandler.DailyPicks)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", newsHandler.GetArticle)
			r.Post("/view", newsHandler.TrackView)
			r.Post("/like", newsHandler.Like)
		})
	})
	r.Get("/api/sources", newsHandler.Sources)
	r.Get("/api/stats", newsHandler.Stats)

	// --- 認証ルート ---

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// --- 管理ルート ---
	// ミドルウェアスタック: RequireRole → CSRF → RateLimit(General)
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.RequireRole(model.RoleAdmin, model.RoleEditor))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/articles/fetch", adminHandler.FetchArticles)
		r.Post("/articles/import-feed", adminHandler.ImportFeed)
		r.Post("/articles/purge", adminHandler.PurgeArticles)
		r.Post("/sources/sync", adminHandler.SyncSources)
		r.Get("/diagnostics", adminHandler.Diagnostics)
	})

	return r
}

// healthHandler はデータベースの疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, map[string]string{"status": "ok"})
	}
}
