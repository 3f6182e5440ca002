package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/newshub/internal/model"
)

// PostgresSourceRepo はPostgreSQLを使用したニュースソースリポジトリ。
type PostgresSourceRepo struct {
	db *sql.DB
}

// NewPostgresSourceRepo はPostgresSourceRepoを生成する。
func NewPostgresSourceRepo(db *sql.DB) *PostgresSourceRepo {
	return &PostgresSourceRepo{db: db}
}

// Upsert はソースを挿入し、既存の場合は全項目を上書きする。
func (r *PostgresSourceRepo) Upsert(ctx context.Context, source *model.Source) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sources (id, name, description, url, category, language, country)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		     name = EXCLUDED.name,
		     description = EXCLUDED.description,
		     url = EXCLUDED.url,
		     category = EXCLUDED.category,
		     language = EXCLUDED.language,
		     country = EXCLUDED.country,
		     updated_at = now()`,
		source.ID, source.Name, nullString(source.Description), nullString(source.URL),
		nullString(source.Category), nullString(source.Language), nullString(source.Country),
	)
	if err != nil {
		return fmt.Errorf("ソースのUPSERTに失敗しました: %w", err)
	}
	return nil
}

// List は全ソースを名前順で取得する。
func (r *PostgresSourceRepo) List(ctx context.Context) ([]model.Source, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description, url, category, language, country, created_at, updated_at
		 FROM sources
		 ORDER BY name, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("ソース一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	sources := make([]model.Source, 0)
	for rows.Next() {
		var s model.Source
		var description, url, category, language, country sql.NullString
		if err := rows.Scan(
			&s.ID, &s.Name, &description, &url, &category, &language, &country,
			&s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ソースのスキャンに失敗しました: %w", err)
		}
		s.Description = nullStringValue(description)
		s.URL = nullStringValue(url)
		s.Category = nullStringValue(category)
		s.Language = nullStringValue(language)
		s.Country = nullStringValue(country)
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ソース一覧の走査に失敗しました: %w", err)
	}
	return sources, nil
}

// compile-time interface check
var _ SourceRepository = (*PostgresSourceRepo)(nil)
