package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/newshub/internal/article"
	"github.com/hitoshi/newshub/internal/metrics"
	"github.com/hitoshi/newshub/internal/middleware"
	"github.com/hitoshi/newshub/internal/model"
)

// mapResolver はセッションIDとユーザーの対応表で解決するSessionResolver。
type mapResolver map[string]*model.SessionUser

func (m mapResolver) CurrentUser(_ context.Context, id string) *model.SessionUser {
	return m[id]
}

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

// createTestRouter はテスト用の完全なルーターを構築するヘルパー。
func createTestRouter(t *testing.T, mutate func(*RouterDeps)) http.Handler {
	t.Helper()

	reg := prometheus.NewRegistry()
	metrics.NewCollector(reg)

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	deps := &RouterDeps{
		Logger: discardLogger(),
		SessionResolver: mapResolver{
			"admin-session":  {ID: "admin-1", Username: "root", Role: model.RoleAdmin},
			"editor-session": {ID: "editor-1", Username: "ed", Role: model.RoleEditor},
			"user-session":   {ID: "user-1", Username: "bob", Role: model.RoleUser},
		},
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		CSRFConfig:        middleware.CSRFConfig{},
		HealthChecker:     stubPinger{},
		Gatherer:          reg,
		AuthService:       &mockAuthService{},
		AuthConfig:        testAuthConfig(),
		Articles:          &mockArticleReader{},
		Ingester:          &mockIngester{},
		Tracker:           &mockTracker{},
		Sources:           &mockSourceLister{},
		Purger:            &mockPurger{},
		SourceSyncer:      &mockSourceSyncer{},
	}
	if mutate != nil {
		mutate(deps)
	}
	return NewRouter(deps)
}

func TestNewRouter_PublicRoutes(t *testing.T) {
	router := createTestRouter(t, func(d *RouterDeps) {
		d.Articles = &mockArticleReader{
			getFn: func(_ context.Context, id int64) (*model.Article, error) {
				a := sampleArticle(id)
				return &a, nil
			},
		}
	})

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/health"},
		{http.MethodGet, "/metrics"},
		{http.MethodGet, "/api/csrf-token"},
		{http.MethodGet, "/api/categories"},
		{http.MethodGet, "/api/articles"},
		{http.MethodGet, "/api/articles/trending"},
		{http.MethodGet, "/api/articles/popular"},
		{http.MethodGet, "/api/articles/latest-by-category"},
		{http.MethodGet, "/api/articles/daily-picks"},
		{http.MethodGet, "/api/articles/5"},
		{http.MethodPost, "/api/articles/5/view"},
		{http.MethodPost, "/api/articles/5/like"},
		{http.MethodGet, "/api/sources"},
		{http.MethodGet, "/api/stats"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(rt.method, rt.path, nil))
			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
			}
		})
	}
}

func TestNewRouter_SetsRequestIDAndSecurityHeaders(t *testing.T) {
	router := createTestRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/categories", nil))

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", w.Header().Get("X-Content-Type-Options"))
	}
}

func TestNewRouter_HealthUnavailable(t *testing.T) {
	router := createTestRouter(t, func(d *RouterDeps) {
		d.HealthChecker = stubPinger{err: errors.New("db down")}
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestNewRouter_AdminAccessControl(t *testing.T) {
	router := createTestRouter(t, nil)

	tests := []struct {
		name       string
		session    string
		wantStatus int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"plain user", "user-session", http.StatusForbidden},
		{"editor", "editor-session", http.StatusOK},
		{"admin", "admin-session", http.StatusOK},
		{"unknown session", "stale-session", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/diagnostics", nil)
			if tt.session != "" {
				req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: tt.session})
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestNewRouter_AdminPostRequiresCSRF(t *testing.T) {
	called := false
	router := createTestRouter(t, func(d *RouterDeps) {
		d.Ingester = &mockIngester{
			fetchFn: func(context.Context, article.IngestRequest) article.IngestResult {
				called = true
				return article.IngestResult{Success: true}
			},
		}
	})

	// CSRFトークンなし
	req := httptest.NewRequest(http.MethodPost, "/api/admin/articles/fetch", strings.NewReader(`{}`))
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "admin-session"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("without token: status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if called {
		t.Fatal("ingester must not run without CSRF token")
	}

	// Cookieとヘッダーのトークンが一致する
	req = httptest.NewRequest(http.MethodPost, "/api/admin/articles/fetch", strings.NewReader(`{}`))
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "admin-session"})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok-123"})
	req.Header.Set("X-CSRF-Token", "tok-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK || !called {
		t.Errorf("with token: status = %d, called = %v", w.Code, called)
	}
}

func TestNewRouter_AuthRoutes(t *testing.T) {
	router := createTestRouter(t, func(d *RouterDeps) {
		d.AuthService = &mockAuthService{
			loginFn: func(context.Context, string, string, string) (*model.Session, error) {
				return &model.Session{ID: "s-1", UserID: "user-1", Username: "bob", Role: model.RoleUser}, nil
			},
		}
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest(http.MethodPost, "/auth/login", `{"username":"bob","password":"secret1"}`))
	if w.Code != http.StatusOK {
		t.Errorf("login: status = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "user-session"})
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"bob"`) {
		t.Errorf("me: status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestNewRouter_LoginRateLimited(t *testing.T) {
	router := createTestRouter(t, func(d *RouterDeps) {
		cfg := middleware.DefaultRateLimiterConfig()
		cfg.LoginBurst = 2
		rl := middleware.NewRateLimiter(cfg)
		t.Cleanup(rl.Stop)
		d.RateLimiter = rl
	})

	var last int
	for i := 0; i < 3; i++ {
		req := jsonRequest(http.MethodPost, "/auth/login", `{"username":"bob","password":"bad"}`)
		req.RemoteAddr = "203.0.113.9:1000"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third attempt status = %d, want %d", last, http.StatusTooManyRequests)
	}
}

func TestNewRouter_UnknownRoute(t *testing.T) {
	router := createTestRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/feeds", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
