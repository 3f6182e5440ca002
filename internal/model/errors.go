// Package model はドメインモデルを定義する。
package model

import "fmt"

// ErrorKind はエラーの種別を表す閉じた列挙型。
// ハンドラーはこの種別からHTTPステータスを決定する。
type ErrorKind string

const (
	// KindConfig は設定不備（APIキー未設定など）。リトライしない。
	KindConfig ErrorKind = "config"
	// KindTransport はDNS・タイムアウト・TLSなどの通信失敗。
	KindTransport ErrorKind = "transport"
	// KindProvider はニュースプロバイダーが status != "ok" を返した場合。
	KindProvider ErrorKind = "provider"
	// KindPersistence はデータベース操作の失敗。
	KindPersistence ErrorKind = "persistence"
	// KindValidation は入力値の検証エラー。永続化の前に返される。
	KindValidation ErrorKind = "validation"
	// KindAuth は認証エラー。
	KindAuth ErrorKind = "auth"
	// KindForbidden は権限不足。
	KindForbidden ErrorKind = "forbidden"
	// KindConflict は一意制約違反。
	KindConflict ErrorKind = "conflict"
	// KindNotFound は対象リソースが存在しない場合。
	KindNotFound ErrorKind = "not_found"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string    // エラーコード
	Message  string    // エラーメッセージ
	Category ErrorKind // エラー種別
	Action   string    // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAPIKeyMissing      = "API_KEY_MISSING"
	ErrCodeFetchFailed        = "FETCH_FAILED"
	ErrCodeProviderError      = "PROVIDER_ERROR"
	ErrCodeParseFailed        = "PARSE_FAILED"
	ErrCodeInvalidCategory    = "INVALID_CATEGORY"
	ErrCodeInvalidCountry     = "INVALID_COUNTRY"
	ErrCodeInvalidParameter   = "INVALID_PARAMETER"
	ErrCodeInvalidURL         = "INVALID_URL"
	ErrCodeArticleNotFound    = "ARTICLE_NOT_FOUND"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeDuplicateUsername  = "DUPLICATE_USERNAME"
	ErrCodeInvalidUsername    = "INVALID_USERNAME"
	ErrCodeInvalidPassword    = "INVALID_PASSWORD"
	ErrCodeInvalidEmail       = "INVALID_EMAIL"
	ErrCodeInvalidRole        = "INVALID_ROLE"
	ErrCodeDatabase           = "DATABASE_ERROR"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeCSRFFailed         = "CSRF_VALIDATION_FAILED"
)

// NewAPIKeyMissingError はAPIキー未設定エラーを生成する。
func NewAPIKeyMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeAPIKeyMissing,
		Message:  "News API key is not configured",
		Category: KindConfig,
		Action:   "環境変数 NEWS_API_KEY を設定してください。",
	}
}

// NewFetchFailedError はHTTPリクエスト失敗エラーを生成する。
// statusCodeが0の場合は応答を受信できなかったことを示す。
func NewFetchFailedError(detail string, statusCode int) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("HTTP request failed: %s (HTTP %d)", detail, statusCode),
		Category: KindTransport,
		Action:   "ネットワーク接続を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewProviderError はプロバイダーがエラーを返した場合のエラーを生成する。
// メッセージはプロバイダーのmessageフィールドをそのまま含む。
func NewProviderError(providerMessage string) *APIError {
	if providerMessage == "" {
		providerMessage = "Unknown API error"
	}
	return &APIError{
		Code:     ErrCodeProviderError,
		Message:  "API Error: " + providerMessage,
		Category: KindProvider,
		Action:   "APIキーとリクエストパラメータを確認してください。",
	}
}

// NewParseFailedError はレスポンス解析失敗エラーを生成する。
func NewParseFailedError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeParseFailed,
		Message:  "Failed to parse API response: " + detail,
		Category: KindProvider,
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidCategoryError は無効なカテゴリエラーを生成する。
func NewInvalidCategoryError(category string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCategory,
		Message:  fmt.Sprintf("無効なカテゴリです: %s", category),
		Category: KindValidation,
		Action:   "カテゴリには all, general, business, entertainment, health, science, sports, technology のいずれかを指定してください。",
	}
}

// NewInvalidCountryError は無効な国コードエラーを生成する。
func NewInvalidCountryError(country string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCountry,
		Message:  fmt.Sprintf("無効な国コードです: %s", country),
		Category: KindValidation,
		Action:   "国コードには us, gb, ca, au, de, fr, jp, in のいずれかを指定してください。",
	}
}

// NewInvalidParameterError は不正なパラメータエラーを生成する。
func NewInvalidParameterError(name, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidParameter,
		Message:  fmt.Sprintf("パラメータ %s が不正です: %s", name, reason),
		Category: KindValidation,
		Action:   "パラメータの形式を確認してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: KindValidation,
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewArticleNotFoundError は記事未検出エラーを生成する。
func NewArticleNotFoundError(id int64) *APIError {
	return &APIError{
		Code:     ErrCodeArticleNotFound,
		Message:  fmt.Sprintf("指定された記事が見つかりません: %d", id),
		Category: KindNotFound,
		Action:   "記事IDを確認してください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// ユーザーの存在有無を区別しない汎用メッセージを返す。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid credentials",
		Category: KindAuth,
		Action:   "ユーザー名とパスワードを確認してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: KindAuth,
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: KindForbidden,
		Action:   "管理者アカウントでログインしてください。",
	}
}

// NewDuplicateUsernameError はユーザー名重複エラーを生成する。
func NewDuplicateUsernameError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUsername,
		Message:  fmt.Sprintf("ユーザー名は既に使用されています: %s", username),
		Category: KindConflict,
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewValidationError は登録入力の検証エラーを生成する。
func NewValidationError(code, message string) *APIError {
	return &APIError{
		Code:     code,
		Message:  message,
		Category: KindValidation,
		Action:   "入力内容を確認してください。",
	}
}

// NewDatabaseError はデータベースエラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewDatabaseError() *APIError {
	return &APIError{
		Code:     ErrCodeDatabase,
		Message:  "データベース処理に失敗しました。",
		Category: KindPersistence,
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
// HTTPステータスは429として書き込まれる。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "Too many requests. Please try again later.",
		Category: KindForbidden,
		Action:   "Retry-Afterに示された秒数待ってから再度お試しください。",
	}
}

// NewCSRFFailedError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  "CSRF token validation failed",
		Category: KindForbidden,
		Action:   "GET /api/csrf-token で取得したトークンをX-CSRF-Tokenヘッダーに設定してください。",
	}
}
