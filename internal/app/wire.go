package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/hitoshi/newshub/internal/article"
	"github.com/hitoshi/newshub/internal/auth"
	"github.com/hitoshi/newshub/internal/config"
	"github.com/hitoshi/newshub/internal/database"
	"github.com/hitoshi/newshub/internal/fetcher"
	"github.com/hitoshi/newshub/internal/handler"
	"github.com/hitoshi/newshub/internal/metrics"
	"github.com/hitoshi/newshub/internal/middleware"
	"github.com/hitoshi/newshub/internal/newsapi"
	"github.com/hitoshi/newshub/internal/repository"
	"github.com/hitoshi/newshub/internal/security"
	"github.com/hitoshi/newshub/internal/source"
	"github.com/hitoshi/newshub/internal/tracker"
	"github.com/hitoshi/newshub/internal/worker/cleanup"
)

// components はDB接続プールを共有するドメインサービス群。
type components struct {
	db       *sql.DB
	registry *prometheus.Registry
	articles *article.Service
	tracker  *tracker.Tracker
	auth     *auth.Service
	sources  *source.Service
	cleanup  *cleanup.CleanupJob
}

// openDatabase はDB接続プールを開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	return database.Connect(ctx, cfg.DatabaseURL)
}

// newFetcher はリモート取得クライアントを生成する。
// FETCH_SSRF_GUARDが有効な場合はsafeurlのクライアントを差し込む。
func newFetcher(cfg *config.Config, mc metrics.MetricsCollector, logger *slog.Logger) *fetcher.Client {
	opts := fetcher.Options{
		Timeout:        cfg.FetchTimeout,
		ConnectTimeout: cfg.FetchConnectTimeout,
		MaxBodySize:    cfg.FetchMaxSize,
		UserAgent:      cfg.FetchUserAgent,
	}
	if !cfg.FetchSSRFGuard {
		return fetcher.New(opts, mc, logger)
	}
	return fetcher.NewWithHTTPClient(security.NewURLGuard().NewSafeClient(cfg.FetchTimeout, cfg.FetchConnectTimeout), opts, mc, logger)
}

// newComponents はリポジトリとサービスを組み立てる。
func newComponents(cfg *config.Config, db *sql.DB, logger *slog.Logger) (*components, error) {
	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mc := metrics.NewCollector(reg)

	// 2. リポジトリ
	articleRepo := repository.NewPostgresArticleRepo(db)
	viewRepo := repository.NewPostgresArticleViewRepo(db)
	sourceRepo := repository.NewPostgresSourceRepo(db)
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// 3. 外部取得
	remote := newFetcher(cfg, mc, logger)
	provider := newsapi.NewClient(remote, cfg.NewsAPIKey, cfg.NewsAPIBaseURL, logger)

	// 4. ドメインサービス
	articles := article.NewService(
		articleRepo, provider, remote,
		security.NewURLGuard(), security.NewArticleSanitizer(),
		mc, logger, cfg.ArticlesPerPage,
	)
	articles.SetIngestDefaults(cfg.DefaultCategory, cfg.DefaultCountry)

	authService, err := auth.NewService(userRepo, sessionRepo, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
		BcryptCost:    cfg.BcryptCost,
	}, mc, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth service: %w", err)
	}

	return &components{
		db:       db,
		registry: reg,
		articles: articles,
		tracker:  tracker.NewTracker(viewRepo, articleRepo, mc, logger),
		auth:     authService,
		sources:  source.NewService(sourceRepo, provider, logger),
		cleanup:  cleanup.NewCleanupJob(db, sessionRepo, mc, logger, cfg.PurgeRetentionDays),
	}, nil
}

// routerDeps はHTTPルーターの依存関係を構築する。
func (c *components) routerDeps(cfg *config.Config, logger *slog.Logger, rl *middleware.RateLimiter) *handler.RouterDeps {
	return &handler.RouterDeps{
		Logger:            logger,
		SessionResolver:   c.auth,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rl,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},

		HealthChecker: c.db,
		Gatherer:      c.registry,

		AuthService: c.auth,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		Articles: c.articles,
		Ingester: c.articles,
		Tracker:  c.tracker,
		Sources:  c.sources,

		Purger:       c.cleanup,
		SourceSyncer: c.sources,
		SchemaVersion: func() (database.SchemaVersion, error) {
			return database.CurrentVersion(cfg.DatabaseURL)
		},
	}
}

// runWithComponents はDBに接続してサービスを組み立て、fnを実行する。
// CLIの単発コマンド用。
func runWithComponents(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, fn func(c *components) error) error {
	db, err := openDatabase(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	c, err := newComponents(cfg, db, logger)
	if err != nil {
		return err
	}
	return fn(c)
}
