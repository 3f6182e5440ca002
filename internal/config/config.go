// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hitoshi/newshub/internal/model"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// News provider
	NewsAPIKey     string
	NewsAPIBaseURL string

	// Fetch
	FetchTimeout        time.Duration
	FetchConnectTimeout time.Duration
	FetchMaxSize        int64
	FetchUserAgent      string
	FetchSSRFGuard      bool

	// Ingestion defaults
	DefaultCategory    model.Category
	DefaultCountry     string
	ArticlesPerPage    int
	PurgeRetentionDays int

	// Session
	SessionMaxAge int
	BcryptCost    int

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitLogin   int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// LoadDotEnv は.envファイルの値を環境変数に読み込む。既に設定済みの環境変数は上書きしない。
// ファイルが存在しない場合は何もしない。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.NewsAPIKey = os.Getenv("NEWS_API_KEY")
	cfg.NewsAPIBaseURL = getEnvString("NEWS_API_BASE_URL", "https://newsapi.org/v2/")
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 20*time.Second)
	cfg.FetchConnectTimeout = getEnvDuration("FETCH_CONNECT_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.FetchUserAgent = getEnvString("FETCH_USER_AGENT", "NewsHub/1.0")
	cfg.FetchSSRFGuard = getEnvBool("FETCH_SSRF_GUARD", true)
	cfg.DefaultCategory = model.Category(getEnvString("DEFAULT_CATEGORY", string(model.CategoryGeneral)))
	cfg.DefaultCountry = strings.ToLower(getEnvString("DEFAULT_COUNTRY", "us"))
	cfg.ArticlesPerPage = getEnvInt("ARTICLES_PER_PAGE", 12)
	cfg.PurgeRetentionDays = getEnvInt("PURGE_RETENTION_DAYS", 30)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 10)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate は値の範囲を検証する。
func (c *Config) validate() error {
	var invalid []string

	if !c.DefaultCategory.IsKnown() {
		invalid = append(invalid, "DEFAULT_CATEGORY")
	}
	if !model.IsKnownCountry(c.DefaultCountry) {
		invalid = append(invalid, "DEFAULT_COUNTRY")
	}
	if c.ArticlesPerPage < 1 || c.ArticlesPerPage > 100 {
		invalid = append(invalid, "ARTICLES_PER_PAGE")
	}
	if c.PurgeRetentionDays < 1 {
		invalid = append(invalid, "PURGE_RETENTION_DAYS")
	}
	if c.SessionMaxAge < 1 {
		invalid = append(invalid, "SESSION_MAX_AGE")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		invalid = append(invalid, "BCRYPT_COST")
	}
	if c.RateLimitGeneral < 1 {
		invalid = append(invalid, "RATE_LIMIT_GENERAL")
	}
	if c.RateLimitLogin < 1 {
		invalid = append(invalid, "RATE_LIMIT_LOGIN")
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid environment variables: %v", invalid)
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
