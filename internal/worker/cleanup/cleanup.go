// Package cleanup は保持期間を過ぎたデータの一括削除ジョブを提供する。
// 記事の閲覧記録はarticle_viewsのCASCADE削除で一緒に消える。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/newshub/internal/metrics"
	"github.com/hitoshi/newshub/internal/model"
)

// DefaultRetentionDays は記事のデフォルト保持日数。
const DefaultRetentionDays = 30

const purgeArticlesQuery = `DELETE FROM articles WHERE created_at < now() - $1::interval`

// Executor は*sql.DBと*sql.Txに共通するExecContext。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SessionExpirer は期限切れセッションを削除する。
type SessionExpirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Result は1回のジョブ実行で削除した件数。
type Result struct {
	Articles int64
	Sessions int64
}

// CleanupJob は管理APIとpurgeコマンドから呼ばれる削除ジョブ。
type CleanupJob struct {
	db            Executor
	sessions      SessionExpirer
	mc            metrics.MetricsCollector
	logger        *slog.Logger
	RetentionDays int
}

// NewCleanupJob はCleanupJobを生成する。
// retentionDaysが0以下ならDefaultRetentionDays、sessionsがnilならセッション削除を行わない。
func NewCleanupJob(db Executor, sessions SessionExpirer, mc metrics.MetricsCollector, logger *slog.Logger, retentionDays int) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &CleanupJob{
		db:            db,
		sessions:      sessions,
		mc:            mc,
		logger:        logger,
		RetentionDays: retentionDays,
	}
}

// Run はdays日より古い記事と期限切れセッションを削除する。
// daysが0なら設定済みの保持日数を使う。
func (j *CleanupJob) Run(ctx context.Context, days int) (Result, error) {
	if days == 0 {
		days = j.RetentionDays
	}
	var res Result
	var err error
	if res.Articles, err = j.Purge(ctx, days); err != nil {
		return res, err
	}
	if res.Sessions, err = j.PurgeExpiredSessions(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// Purge はcreated_atがdays日前より古い記事を削除し、削除件数を返す。
// daysが1未満の場合は何も削除せずvalidationエラーを返す。
func (j *CleanupJob) Purge(ctx context.Context, days int) (int64, error) {
	if days < 1 {
		return 0, model.NewInvalidParameterError("days", "must be at least 1")
	}

	start := time.Now()
	result, err := j.db.ExecContext(ctx, purgeArticlesQuery, fmt.Sprintf("%d days", days))
	if err != nil {
		j.logger.Error("古い記事の削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", days),
		)
		return 0, fmt.Errorf("記事の削除に失敗: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	j.mc.RecordPurged(metrics.PurgeArticles, deleted)

	j.logger.Info("古い記事を削除しました",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", days),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return deleted, nil
}

// PurgeExpiredSessions は有効期限切れのセッションを削除する。
func (j *CleanupJob) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	if j.sessions == nil {
		return 0, nil
	}
	deleted, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました", slog.String("error", err.Error()))
		return 0, err
	}
	j.mc.RecordPurged(metrics.PurgeSessions, deleted)

	if deleted > 0 {
		j.logger.Info("期限切れセッションを削除しました", slog.Int64("deleted_count", deleted))
	}
	return deleted, nil
}
