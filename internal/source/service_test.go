package source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hitoshi/newshub/internal/model"
)

// mockSourceRepo はSourceRepositoryのモック。
type mockSourceRepo struct {
	upserted []model.Source
	upsertFn func(ctx context.Context, s *model.Source) error
	listFn   func(ctx context.Context) ([]model.Source, error)
}

func (m *mockSourceRepo) Upsert(ctx context.Context, s *model.Source) error {
	if m.upsertFn != nil {
		if err := m.upsertFn(ctx, s); err != nil {
			return err
		}
	}
	m.upserted = append(m.upserted, *s)
	return nil
}

func (m *mockSourceRepo) List(ctx context.Context) ([]model.Source, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return m.upserted, nil
}

// mockProvider はSourceProviderのモック。
type mockProvider struct {
	fetchSourcesFn func(ctx context.Context) ([]model.Source, error)
}

func (m *mockProvider) FetchSources(ctx context.Context) ([]model.Source, error) {
	return m.fetchSourcesFn(ctx)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestSync_UpsertsAll(t *testing.T) {
	repo := &mockSourceRepo{}
	provider := &mockProvider{fetchSourcesFn: func(context.Context) ([]model.Source, error) {
		return []model.Source{
			{ID: "bbc-news", Name: "BBC News"},
			{ID: "reuters", Name: "Reuters"},
		}, nil
	}}
	svc := NewService(repo, provider, newTestLogger())

	res := svc.Sync(context.Background())
	if !res.Success || res.Updated != 2 {
		t.Errorf("result = %+v", res)
	}
	if res.Message != "Successfully updated 2 sources" {
		t.Errorf("Message = %q", res.Message)
	}
	if len(repo.upserted) != 2 || repo.upserted[1].ID != "reuters" {
		t.Errorf("upserted = %+v", repo.upserted)
	}
}

func TestSync_PartialFailure(t *testing.T) {
	repo := &mockSourceRepo{upsertFn: func(_ context.Context, s *model.Source) error {
		if s.ID == "bad" {
			return errors.New("value too long")
		}
		return nil
	}}
	provider := &mockProvider{fetchSourcesFn: func(context.Context) ([]model.Source, error) {
		return []model.Source{{ID: "bad", Name: "Bad"}, {ID: "good", Name: "Good"}}, nil
	}}

	res := NewService(repo, provider, newTestLogger()).Sync(context.Background())
	if !res.Success || res.Updated != 1 {
		t.Errorf("result = %+v, want 1 updated", res)
	}
}

func TestSync_ProviderError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind model.ErrorKind
	}{
		{"missing key", model.NewAPIKeyMissingError(), model.KindConfig},
		{"transport", model.NewFetchFailedError("timeout", 0), model.KindTransport},
		{"provider", model.NewProviderError("rateLimited"), model.KindProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockSourceRepo{}
			provider := &mockProvider{fetchSourcesFn: func(context.Context) ([]model.Source, error) {
				return nil, tt.err
			}}

			res := NewService(repo, provider, newTestLogger()).Sync(context.Background())
			if res.Success {
				t.Fatal("Success = true, want false")
			}
			if res.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", res.Kind, tt.kind)
			}
			if len(repo.upserted) != 0 {
				t.Errorf("upserted = %d, want 0", len(repo.upserted))
			}
		})
	}
}

func TestList_ErrorReturnsEmpty(t *testing.T) {
	repo := &mockSourceRepo{listFn: func(context.Context) ([]model.Source, error) {
		return nil, errors.New("db down")
	}}
	svc := NewService(repo, nil, newTestLogger())

	if got := svc.List(context.Background()); got == nil || len(got) != 0 {
		t.Errorf("List() = %v, want empty slice", got)
	}
}
