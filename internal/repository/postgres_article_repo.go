package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/newshub/internal/model"
)

// PostgresArticleRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresArticleRepo struct {
	db *sql.DB
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
func NewPostgresArticleRepo(db *sql.DB) *PostgresArticleRepo {
	return &PostgresArticleRepo{db: db}
}

// articleColumns はSELECT対象のカラム。scanArticleの順序と一致させる。
const articleColumns = `a.id, a.title, a.summary, a.content, a.url, a.image_url,
	a.published_at, a.source_name, a.source_id, a.author, a.category,
	a.views, a.likes, a.created_at, a.updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanArticle は1行分の記事をスキャンする。
func scanArticle(s rowScanner) (*model.Article, error) {
	a := &model.Article{}
	var summary, content, imageURL, sourceName, sourceID, author sql.NullString
	var category string

	err := s.Scan(
		&a.ID, &a.Title, &summary, &content, &a.URL, &imageURL,
		&a.PublishedAt, &sourceName, &sourceID, &author, &category,
		&a.Views, &a.Likes, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Summary = nullStringValue(summary)
	a.Content = nullStringValue(content)
	a.ImageURL = nullStringValue(imageURL)
	a.SourceName = nullStringValue(sourceName)
	a.SourceID = nullStringValue(sourceID)
	a.Author = nullStringValue(author)
	a.Category = model.Category(category)
	return a, nil
}

// queryArticles はクエリを実行して記事一覧を返す。
func (r *PostgresArticleRepo) queryArticles(ctx context.Context, query string, args ...any) ([]model.Article, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	articles := make([]model.Article, 0)
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return articles, nil
}

// Insert は記事を挿入する。URLが既に存在する場合は何もせずfalseを返す。
func (r *PostgresArticleRepo) Insert(ctx context.Context, article *model.Article) (bool, error) {
	category := article.Category
	if category == "" {
		category = model.CategoryGeneral
	}
	publishedAt := article.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now()
	}

	var id int64
	var createdAt, updatedAt time.Time
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO articles (title, summary, content, url, image_url, published_at,
		                       source_name, source_id, author, category)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (url) DO NOTHING
		 RETURNING id, created_at, updated_at`,
		article.Title, nullString(article.Summary), nullString(article.Content),
		article.URL, nullString(article.ImageURL), publishedAt,
		nullString(article.SourceName), nullString(article.SourceID),
		nullString(article.Author), string(category),
	).Scan(&id, &createdAt, &updatedAt)

	// ON CONFLICT DO NOTHING の場合はRETURNINGが行を返さない
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("記事の挿入に失敗しました: %w", err)
	}

	article.ID = id
	article.Category = category
	article.PublishedAt = publishedAt
	article.CreatedAt = createdAt
	article.UpdatedAt = updatedAt
	return true, nil
}

// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
func (r *PostgresArticleRepo) FindByID(ctx context.Context, id int64) (*model.Article, error) {
	a, err := scanArticle(r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles a WHERE a.id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	return a, nil
}

// buildFilterClause はフィルタ条件からWHERE句と引数を組み立てる。
// プレースホルダは$1から順に割り当てる。
func buildFilterClause(filter ArticleFilter) (string, []any) {
	var conds []string
	var args []any

	if !filter.Category.IsFilterAll() {
		args = append(args, string(filter.Category))
		conds = append(conds, fmt.Sprintf("a.category = $%d", len(args)))
	}

	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(a.title ILIKE $%d OR a.summary ILIKE $%d OR a.content ILIKE $%d)", n, n, n,
		))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// escapeLike はLIKEパターンのワイルドカード文字をエスケープする。
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// List はフィルタ条件に一致する記事をpublished_at降順で取得する。
func (r *PostgresArticleRepo) List(ctx context.Context, filter ArticleFilter, limit, offset int) ([]model.Article, error) {
	where, args := buildFilterClause(filter)
	args = append(args, limit, offset)

	query := fmt.Sprintf(
		`SELECT %s FROM articles a%s ORDER BY a.published_at DESC, a.id DESC LIMIT $%d OFFSET $%d`,
		articleColumns, where, len(args)-1, len(args),
	)

	articles, err := r.queryArticles(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	return articles, nil
}

// Count はフィルタ条件に一致する記事数を返す。
func (r *PostgresArticleRepo) Count(ctx context.Context, filter ArticleFilter) (int, error) {
	where, args := buildFilterClause(filter)

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles a`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("記事数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// ListTrending はsince以降に公開された記事を閲覧数降順・公開日時降順で取得する。
func (r *PostgresArticleRepo) ListTrending(ctx context.Context, since time.Time, limit int) ([]model.Article, error) {
	articles, err := r.queryArticles(ctx,
		`SELECT `+articleColumns+`
		 FROM articles a
		 LEFT JOIN article_views av ON av.article_id = a.id
		 WHERE a.published_at >= $1
		 ORDER BY COALESCE(av.view_count, 0) DESC, a.published_at DESC, a.id DESC
		 LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("トレンド記事の取得に失敗しました: %w", err)
	}
	return articles, nil
}

// ListPopular は全期間の閲覧数降順で記事を取得する。
func (r *PostgresArticleRepo) ListPopular(ctx context.Context, limit int) ([]model.Article, error) {
	articles, err := r.queryArticles(ctx,
		`SELECT `+articleColumns+`
		 FROM articles a
		 ORDER BY a.views DESC, a.published_at DESC, a.id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("人気記事の取得に失敗しました: %w", err)
	}
	return articles, nil
}

// ListPublishedBetween は[from, to)に公開された記事を閲覧数降順・公開日時降順で取得する。
func (r *PostgresArticleRepo) ListPublishedBetween(ctx context.Context, from, to time.Time, limit int) ([]model.Article, error) {
	articles, err := r.queryArticles(ctx,
		`SELECT `+articleColumns+`
		 FROM articles a
		 WHERE a.published_at >= $1 AND a.published_at < $2
		 ORDER BY a.views DESC, a.published_at DESC, a.id DESC
		 LIMIT $3`,
		from, to, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("期間指定の記事取得に失敗しました: %w", err)
	}
	return articles, nil
}

// ListLatestByCategory は指定カテゴリの最新記事を取得する。
func (r *PostgresArticleRepo) ListLatestByCategory(ctx context.Context, category model.Category, limit int) ([]model.Article, error) {
	return r.List(ctx, ArticleFilter{Category: category}, limit, 0)
}

// Stats は記事の集計値を返す。sinceは直近記事数の起点。
func (r *PostgresArticleRepo) Stats(ctx context.Context, since time.Time) (*model.Stats, error) {
	stats := &model.Stats{ByCategory: make([]model.CategoryCount, 0)}

	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE published_at >= $1),
		        COALESCE(SUM(views), 0)
		 FROM articles`,
		since,
	).Scan(&stats.TotalArticles, &stats.RecentArticles, &stats.TotalViews)
	if err != nil {
		return nil, fmt.Errorf("記事集計の取得に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM articles GROUP BY category ORDER BY COUNT(*) DESC, category`,
	)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ別集計の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cc model.CategoryCount
		var category string
		if err := rows.Scan(&category, &cc.Count); err != nil {
			return nil, fmt.Errorf("カテゴリ別集計のスキャンに失敗しました: %w", err)
		}
		cc.Category = model.Category(category)
		stats.ByCategory = append(stats.ByCategory, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("カテゴリ別集計の走査に失敗しました: %w", err)
	}

	return stats, nil
}

// IncrementLikes はいいね数を1増やす。記事が存在しない場合はfalseを返す。
func (r *PostgresArticleRepo) IncrementLikes(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE articles SET likes = likes + 1, updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("いいね数の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	return rowsAffected == 1, nil
}

// nullString は空文字列をNULLとして扱うsql.NullStringを返す。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ ArticleRepository = (*PostgresArticleRepo)(nil)
