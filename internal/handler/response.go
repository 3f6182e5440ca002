// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newshub/internal/middleware"
	"github.com/hitoshi/newshub/internal/model"
)

// dateLayout は日付クエリパラメータの形式。
const dateLayout = "2006-01-02"

// --- レスポンス型 ---

// articleResponse は記事のレスポンス。
type articleResponse struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Content     string    `json:"content,omitempty"` // サニタイズ済みHTML
	URL         string    `json:"url"`
	ImageURL    string    `json:"image_url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	SourceName  string    `json:"source_name"`
	SourceID    string    `json:"source_id,omitempty"`
	Author      string    `json:"author,omitempty"`
	Category    string    `json:"category"`
	Views       int       `json:"views"`
	Likes       int       `json:"likes"`
}

// pageResponse はページ付き記事一覧のレスポンス。
type pageResponse struct {
	Articles   []articleResponse `json:"articles"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

// successResponse は閲覧・いいねなど成否のみを返す操作のレスポンス。
type successResponse struct {
	Success bool `json:"success"`
}

// toArticleResponse は記事をレスポンス型に変換する。一覧では本文を含めない。
func toArticleResponse(a model.Article, withContent bool) articleResponse {
	resp := articleResponse{
		ID:          a.ID,
		Title:       a.Title,
		Summary:     a.Summary,
		URL:         a.URL,
		ImageURL:    a.ImageURL,
		PublishedAt: a.PublishedAt,
		SourceName:  a.SourceName,
		SourceID:    a.SourceID,
		Author:      a.Author,
		Category:    string(a.Category),
		Views:       a.Views,
		Likes:       a.Likes,
	}
	if withContent {
		resp.Content = a.Content
	}
	return resp
}

func toArticleResponses(articles []model.Article) []articleResponse {
	out := make([]articleResponse, len(articles))
	for i, a := range articles {
		out[i] = toArticleResponse(a, false)
	}
	return out
}

// --- 書き込みヘルパー ---

// writeJSON はステータス200でJSONを書き込む。
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// handleServiceError はサービス層から返されたエラーをエラー種別に応じたHTTPレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	middleware.WriteRequestError(w, r, err)
}

// decodeJSON はリクエストボディをJSONとして読み取る。
// 失敗した場合は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		handleServiceError(w, r, model.NewValidationError(model.ErrCodeInvalidParameter,
			"リクエストボディの解析に失敗しました。"))
		return false
	}
	return true
}

// --- パラメータ解析 ---

// queryInt は整数クエリパラメータを読み取る。未指定の場合はdefを返す。
// 整数でない場合はvalidationエラーを返す。
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.NewInvalidParameterError(name, "整数で指定してください")
	}
	return n, nil
}

// queryDate はYYYY-MM-DD形式の日付クエリパラメータをUTCで読み取る。未指定の場合はdefを返す。
func queryDate(r *http.Request, name string, def time.Time) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, model.NewInvalidParameterError(name, "YYYY-MM-DD形式で指定してください")
	}
	return t, nil
}

// articleIDParam はURLパスの記事IDを読み取る。
func articleIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, model.NewInvalidParameterError("id", "正の整数で指定してください")
	}
	return id, nil
}
