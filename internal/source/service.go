// Package source はニュースソース一覧の同期と参照を提供する。
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/newshub/internal/model"
	"github.com/hitoshi/newshub/internal/repository"
)

// SourceProvider はプロバイダーからソース一覧を取得するインターフェース。
type SourceProvider interface {
	FetchSources(ctx context.Context) ([]model.Source, error)
}

// SyncResult はソース同期の結果。
type SyncResult struct {
	Success bool
	Updated int
	Message string
	Kind    model.ErrorKind
}

// Service はニュースソースのサービス。
type Service struct {
	repo     repository.SourceRepository
	provider SourceProvider
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.SourceRepository, provider SourceProvider, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		provider: provider,
		logger:   logger,
	}
}

// Sync はプロバイダーのソース一覧を取得し、1件ずつUPSERTする。
// 個々のUPSERT失敗はログに記録して件数に含めない。
func (s *Service) Sync(ctx context.Context) SyncResult {
	sources, err := s.provider.FetchSources(ctx)
	if err != nil {
		kind := model.KindPersistence
		msg := err.Error()
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			kind = apiErr.Category
			msg = apiErr.Message
		}
		s.logger.Warn("ソース一覧の取得に失敗しました",
			slog.String("kind", string(kind)),
			slog.String("error", msg),
		)
		return SyncResult{Message: "Failed to fetch sources: " + msg, Kind: kind}
	}

	updated := 0
	for i := range sources {
		if err := s.repo.Upsert(ctx, &sources[i]); err != nil {
			s.logger.Warn("ソースの保存に失敗しました",
				slog.String("source_id", sources[i].ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		updated++
	}

	s.logger.Info("ソース一覧を同期しました",
		slog.Int("received", len(sources)),
		slog.Int("updated", updated),
	)

	return SyncResult{
		Success: true,
		Updated: updated,
		Message: fmt.Sprintf("Successfully updated %d sources", updated),
	}
}

// List は保存済みのソースを名前順で返す。エラー時は空の一覧を返す。
func (s *Service) List(ctx context.Context) []model.Source {
	sources, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("ソース一覧の取得に失敗しました", slog.String("error", err.Error()))
		return []model.Source{}
	}
	if sources == nil {
		return []model.Source{}
	}
	return sources
}
