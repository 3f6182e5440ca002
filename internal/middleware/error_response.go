package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/newshub/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	Action    string `json:"action"`
	RequestID string `json:"request_id,omitempty"`
}

// codeStatus はエラー種別より優先するコード別のステータス。
var codeStatus = map[string]int{
	model.ErrCodeRateLimitExceeded: http.StatusTooManyRequests,
}

var kindStatus = map[model.ErrorKind]int{
	model.KindValidation: http.StatusBadRequest,
	model.KindAuth:       http.StatusUnauthorized,
	model.KindForbidden:  http.StatusForbidden,
	model.KindNotFound:   http.StatusNotFound,
	model.KindConflict:   http.StatusConflict,
	model.KindConfig:     http.StatusServiceUnavailable,
	model.KindTransport:  http.StatusBadGateway,
	model.KindProvider:   http.StatusBadGateway,
}

// StatusForKind はエラー種別に対応するHTTPステータスを返す。未知の種別は500。
func StatusForKind(kind model.ErrorKind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// StatusFor はAPIエラーのHTTPステータスを返す。
func StatusFor(apiErr *model.APIError) int {
	if status, ok := codeStatus[apiErr.Code]; ok {
		return status
	}
	return StatusForKind(apiErr.Category)
}

func internalError() *model.APIError {
	return &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: model.KindPersistence,
		Action:   "しばらく待ってから再度お試しください。",
	}
}

func writeErrorBody(w http.ResponseWriter, statusCode int, apiErr *model.APIError, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		Category:  string(apiErr.Category),
		Action:    apiErr.Action,
		RequestID: requestID,
	}); err != nil {
		slog.Error("failed to encode error response", slog.String("error", err.Error()))
	}
}

// WriteRequestError はエラーをStatusForのステータスで統一フォーマットに書き込む。
// *model.APIErrorでないエラーは詳細をログにだけ残して500を返す。
// レスポンスとログにはリクエストIDを含める。
func WriteRequestError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := RequestIDFromContext(r.Context())

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		slog.ErrorContext(r.Context(), "unexpected error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", requestID),
		)
		apiErr = internalError()
	}
	writeErrorBody(w, StatusFor(apiErr), apiErr, requestID)
}
