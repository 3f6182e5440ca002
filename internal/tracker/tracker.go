// Package tracker は記事の閲覧数・いいね数の記録を提供する。
package tracker

import (
	"context"
	"log/slog"

	"github.com/hitoshi/newshub/internal/metrics"
	"github.com/hitoshi/newshub/internal/repository"
)

// Tracker は記事の閲覧といいねを記録する。
// 記録の失敗は呼び出し元に伝播させず、falseとして返す。
type Tracker struct {
	viewRepo    repository.ArticleViewRepository
	articleRepo repository.ArticleRepository
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
}

// NewTracker はTrackerの新しいインスタンスを生成する。
func NewTracker(
	viewRepo repository.ArticleViewRepository,
	articleRepo repository.ArticleRepository,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
) *Tracker {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Tracker{
		viewRepo:    viewRepo,
		articleRepo: articleRepo,
		metrics:     mc,
		logger:      logger,
	}
}

// TrackView は記事の閲覧数を1増やす。
// article_viewsへの挿入または加算と、articles.viewsへの反映は1ステートメントで行われる。
func (t *Tracker) TrackView(ctx context.Context, articleID int64) bool {
	if articleID < 1 {
		return false
	}

	count, err := t.viewRepo.Track(ctx, articleID)
	if err != nil {
		t.logger.Warn("閲覧数の記録に失敗しました",
			slog.Int64("article_id", articleID),
			slog.String("error", err.Error()),
		)
		return false
	}

	t.metrics.RecordViewTracked()
	t.logger.Debug("閲覧数を記録しました",
		slog.Int64("article_id", articleID),
		slog.Int("view_count", count),
	)
	return true
}

// Like は記事のいいね数を1増やす。記事が存在しない場合はfalseを返す。
func (t *Tracker) Like(ctx context.Context, articleID int64) bool {
	if articleID < 1 {
		return false
	}

	ok, err := t.articleRepo.IncrementLikes(ctx, articleID)
	if err != nil {
		t.logger.Warn("いいねの記録に失敗しました",
			slog.Int64("article_id", articleID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return ok
}
