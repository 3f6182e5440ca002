package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/newshub/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// firstUserLockKey は最初のユーザー作成を直列化するアドバイザリロックのキー。
const firstUserLockKey = 7305001

// Create はユーザーを作成する。ユーザー名が重複する場合はErrDuplicateUsernameを返す。
// usersが空の場合は指定ロールに関わらずadminとして作成し、user.Roleを更新する。
// 空かどうかの判定と挿入は同じトランザクション内でロックを取って行う。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, firstUserLockKey); err != nil {
		return fmt.Errorf("failed to lock users: %w", err)
	}

	var role string
	err = tx.QueryRowContext(ctx,
		`INSERT INTO users (id, username, password_hash, email, role, created_at, updated_at)
		 SELECT $1, $2, $3, $4,
		        CASE WHEN EXISTS (SELECT 1 FROM users) THEN $5 ELSE $8 END,
		        $6, $7
		 RETURNING role`,
		user.ID, user.Username, user.PasswordHash, nullString(user.Email),
		string(user.Role), user.CreatedAt, user.UpdatedAt, string(model.RoleAdmin),
	).Scan(&role)
	if isUniqueViolation(err) {
		return ErrDuplicateUsername
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user: %w", err)
	}
	user.Role = model.Role(role)
	return nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, `WHERE id = $1`, id)
}

// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, `WHERE username = $1`, username)
}

func (r *PostgresUserRepo) findOne(ctx context.Context, where string, arg any) (*model.User, error) {
	user := &model.User{}
	var email sql.NullString
	var role string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, email, role, created_at, updated_at FROM users `+where,
		arg,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &email, &role, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	user.Email = nullStringValue(email)
	user.Role = model.Role(role)
	return user, nil
}

// Count は登録ユーザー数を返す。
func (r *PostgresUserRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// isUniqueViolation はエラーが一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
