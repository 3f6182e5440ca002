package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/newshub/internal/model"
)

// PostgresArticleViewRepo はPostgreSQLを使用した閲覧数リポジトリ。
type PostgresArticleViewRepo struct {
	db *sql.DB
}

// NewPostgresArticleViewRepo はPostgresArticleViewRepoを生成する。
func NewPostgresArticleViewRepo(db *sql.DB) *PostgresArticleViewRepo {
	return &PostgresArticleViewRepo{db: db}
}

// Track は閲覧数を1増やし、更新後の閲覧数を返す。
// article_viewsのUPSERTとarticles.viewsへの反映を1ステートメントで行うため、
// 両者が食い違うことはない。記事が存在しない場合は外部キー違反のエラーを返す。
func (r *PostgresArticleViewRepo) Track(ctx context.Context, articleID int64) (int, error) {
	var viewCount int
	err := r.db.QueryRowContext(ctx,
		`WITH upserted AS (
		     INSERT INTO article_views (article_id, view_count, last_viewed)
		     VALUES ($1, 1, now())
		     ON CONFLICT (article_id) DO UPDATE SET
		         view_count = article_views.view_count + 1,
		         last_viewed = now()
		     RETURNING article_id, view_count
		 ), mirrored AS (
		     UPDATE articles a SET views = u.view_count
		     FROM upserted u
		     WHERE a.id = u.article_id
		 )
		 SELECT view_count FROM upserted`,
		articleID,
	).Scan(&viewCount)
	if err != nil {
		return 0, fmt.Errorf("閲覧数の更新に失敗しました: %w", err)
	}
	return viewCount, nil
}

// FindByArticleID は記事の閲覧記録を取得する。見つからない場合はnilを返す。
func (r *PostgresArticleViewRepo) FindByArticleID(ctx context.Context, articleID int64) (*model.ArticleView, error) {
	v := &model.ArticleView{}
	err := r.db.QueryRowContext(ctx,
		`SELECT article_id, view_count, last_viewed FROM article_views WHERE article_id = $1`,
		articleID,
	).Scan(&v.ArticleID, &v.ViewCount, &v.LastViewed)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("閲覧記録の取得に失敗しました: %w", err)
	}
	return v, nil
}

// compile-time interface check
var _ ArticleViewRepository = (*PostgresArticleViewRepo)(nil)
