// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/newshub/internal/model"
)

// ErrDuplicateUsername はユーザー名の一意制約違反を表す。
var ErrDuplicateUsername = errors.New("username already exists")

// ArticleFilter は記事一覧・件数取得の絞り込み条件。
// Categoryが空または"all"の場合はカテゴリで絞り込まない。
// Searchが空の場合は全文検索を行わない。
type ArticleFilter struct {
	Category model.Category
	Search   string
}

// ArticleRepository は記事データの永続化インターフェース。
type ArticleRepository interface {
	// Insert は記事を挿入する。URLが既に存在する場合は何もせずfalseを返す。
	Insert(ctx context.Context, article *model.Article) (bool, error)

	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Article, error)

	// List はフィルタ条件に一致する記事をpublished_at降順で取得する。
	List(ctx context.Context, filter ArticleFilter, limit, offset int) ([]model.Article, error)

	// Count はフィルタ条件に一致する記事数を返す。
	Count(ctx context.Context, filter ArticleFilter) (int, error)

	// ListTrending はsince以降に公開された記事を閲覧数降順・公開日時降順で取得する。
	// 閲覧記録のない記事は閲覧数0として扱う。
	ListTrending(ctx context.Context, since time.Time, limit int) ([]model.Article, error)

	// ListPopular は全期間の閲覧数降順で記事を取得する。
	ListPopular(ctx context.Context, limit int) ([]model.Article, error)

	// ListPublishedBetween は[from, to)に公開された記事を閲覧数降順・公開日時降順で取得する。
	ListPublishedBetween(ctx context.Context, from, to time.Time, limit int) ([]model.Article, error)

	// ListLatestByCategory は指定カテゴリの最新記事を取得する。
	ListLatestByCategory(ctx context.Context, category model.Category, limit int) ([]model.Article, error)

	// Stats は記事の集計値を返す。sinceは直近記事数の起点。
	Stats(ctx context.Context, since time.Time) (*model.Stats, error)

	// IncrementLikes はいいね数を1増やす。記事が存在しない場合はfalseを返す。
	IncrementLikes(ctx context.Context, id int64) (bool, error)
}

// ArticleViewRepository は記事閲覧数の永続化インターフェース。
type ArticleViewRepository interface {
	// Track は閲覧数を1増やし、更新後の閲覧数を返す。
	// article_viewsとarticles.viewsは同一ステートメントで更新する。
	Track(ctx context.Context, articleID int64) (int, error)

	// FindByArticleID は記事の閲覧記録を取得する。見つからない場合はnilを返す。
	FindByArticleID(ctx context.Context, articleID int64) (*model.ArticleView, error)
}

// SourceRepository はニュースソースの永続化インターフェース。
type SourceRepository interface {
	// Upsert はソースを挿入し、既存の場合は全項目を上書きする。
	Upsert(ctx context.Context, source *model.Source) error

	// List は全ソースを名前順で取得する。
	List(ctx context.Context) ([]model.Source, error)
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。ユーザー名が重複する場合はErrDuplicateUsernameを返す。
	// 最初のユーザーは指定ロールに関わらずadminとして作成し、user.Roleに反映する。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Count は登録ユーザー数を返す。
	Count(ctx context.Context) (int, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションをユーザー名・ロール付きで取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は有効期限を過ぎたセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
